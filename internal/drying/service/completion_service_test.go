package service

import (
	"strings"
	"testing"
	"time"

	"github.com/restoros/drylog/internal/drying/dryerr"
	"github.com/restoros/drylog/internal/drying/entity"
)

// drySnapshot 五个分项全部通过的快照
func drySnapshot() *LogSnapshot {
	removedAt := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	return &LogSnapshot{
		Log: &entity.DryingLog{ID: "log1", JobID: "job1", SetupComplete: true},
		Chambers: []entity.Chamber{
			{ID: "c1", LogID: "log1", Name: "一层", Rooms: []entity.Room{
				{ID: "r1", ChamberID: "c1", Name: "客厅", RefPoints: []entity.ReferencePoint{
					{ID: "pt1", RoomID: "r1", RefNumber: 1, MaterialCode: "drywall"},
				}},
			}},
		},
		Baselines: []entity.Baseline{
			{ID: "b1", LogID: "log1", MaterialCode: "drywall", BaselineValue: 10},
		},
		Visits: []entity.Visit{
			{ID: "v1", LogID: "log1", VisitNumber: 1},
		},
		Moistures: []entity.MoistureReading{
			{ID: "m1", VisitID: "v1", RefPointID: "pt1", ReadingValue: 12},
		},
		Placements: []entity.EquipmentPlacement{
			{ID: "p1", DryingLogID: "log1", RoomID: "r1", EquipmentType: entity.EquipmentTypeAirMover,
				PlacedAt: removedAt.Add(-48 * time.Hour), RemovedAt: &removedAt},
		},
	}
}

func findCategory(t *testing.T, categories []dryerr.CategoryResult, key string) dryerr.CategoryResult {
	t.Helper()
	for _, c := range categories {
		if c.Key == key {
			return c
		}
	}
	t.Fatalf("category %s missing from %+v", key, categories)
	return dryerr.CategoryResult{}
}

func TestEvaluateAllPass(t *testing.T) {
	categories := Evaluate(drySnapshot())
	if len(categories) != 5 {
		t.Fatalf("got %d categories, want 5", len(categories))
	}
	for _, c := range categories {
		if !c.Passed {
			t.Errorf("category %s failed: %s", c.Key, c.Details)
		}
	}
}

func TestEvaluateWetPointFails(t *testing.T) {
	snap := drySnapshot()
	snap.Moistures[0].ReadingValue = 14.01 // 基准10+余量4=14，超出

	c := findCategory(t, Evaluate(snap), CategoryPointsDry)
	if c.Passed {
		t.Fatal("points_dry should fail for a wet point")
	}
	if !strings.Contains(c.Details, "未达标") {
		t.Errorf("details should name the wet point, got %q", c.Details)
	}
}

func TestEvaluateBoundaryReadingIsDry(t *testing.T) {
	snap := drySnapshot()
	snap.Moistures[0].ReadingValue = 14 // 正好 baseline+4

	if c := findCategory(t, Evaluate(snap), CategoryPointsDry); !c.Passed {
		t.Errorf("reading at baseline+margin should be dry: %s", c.Details)
	}
}

func TestEvaluateMissingBaselineIsIndeterminate(t *testing.T) {
	snap := drySnapshot()
	snap.Baselines = nil

	pointsDry := findCategory(t, Evaluate(snap), CategoryPointsDry)
	if pointsDry.Passed {
		t.Fatal("points_dry should fail without a baseline")
	}
	// 必须以无法判定出现，不得折算成未达标
	if !strings.Contains(pointsDry.Details, "无法判定") {
		t.Errorf("details should report indeterminate, got %q", pointsDry.Details)
	}
	if strings.Contains(pointsDry.Details, "未达标") {
		t.Errorf("indeterminate point must not be reported as wet, got %q", pointsDry.Details)
	}
	if c := findCategory(t, Evaluate(snap), CategoryBaselinesDefined); c.Passed {
		t.Error("baselines_defined should fail when a material has no baseline")
	}
}

func TestEvaluateZeroVisitsDoesNotCrash(t *testing.T) {
	snap := drySnapshot()
	snap.Visits = nil
	snap.Moistures = nil

	categories := Evaluate(snap)
	if c := findCategory(t, categories, CategoryVisitsRecorded); c.Passed {
		t.Error("visits_recorded should fail with zero visits")
	}
	if c := findCategory(t, categories, CategoryPointsDry); c.Passed {
		t.Error("points_dry should fail when the point has no reading")
	}
}

func TestEvaluateActiveEquipmentFails(t *testing.T) {
	snap := drySnapshot()
	snap.Placements[0].RemovedAt = nil

	if c := findCategory(t, Evaluate(snap), CategoryEquipmentRemoved); c.Passed {
		t.Error("equipment_removed should fail while a unit is still placed")
	}
}

func TestEvaluateDemolishedPointSkipped(t *testing.T) {
	snap := drySnapshot()
	visitID := "v1"
	now := time.Now()
	snap.Chambers[0].Rooms[0].RefPoints[0].DemolishedVisitID = &visitID
	snap.Chambers[0].Rooms[0].RefPoints[0].DemolishedAt = &now
	snap.Moistures = nil // 拆除点不再有读数要求
	snap.Baselines = nil

	categories := Evaluate(snap)
	if c := findCategory(t, categories, CategoryPointsDry); !c.Passed {
		t.Errorf("demolished point should not block points_dry: %s", c.Details)
	}
	if c := findCategory(t, categories, CategoryBaselinesDefined); !c.Passed {
		t.Errorf("demolished point should not require a baseline: %s", c.Details)
	}
}

func TestEvaluateUsesLatestReading(t *testing.T) {
	snap := drySnapshot()
	snap.Visits = append(snap.Visits, entity.Visit{ID: "v2", LogID: "log1", VisitNumber: 2})
	// 第1次湿、第2次干：按最近一次判定
	snap.Moistures = []entity.MoistureReading{
		{ID: "m1", VisitID: "v1", RefPointID: "pt1", ReadingValue: 30},
		{ID: "m2", VisitID: "v2", RefPointID: "pt1", ReadingValue: 11},
	}
	if c := findCategory(t, Evaluate(snap), CategoryPointsDry); !c.Passed {
		t.Errorf("latest reading is dry, category should pass: %s", c.Details)
	}
}

func TestEvaluateDryStatus(t *testing.T) {
	baseline := 10.0
	if got := EvaluateDryStatus(14, &baseline); got != PointStatusDry {
		t.Errorf("EvaluateDryStatus(14, 10) = %s, want dry", got)
	}
	if got := EvaluateDryStatus(14.01, &baseline); got != PointStatusWet {
		t.Errorf("EvaluateDryStatus(14.01, 10) = %s, want wet", got)
	}
	if got := EvaluateDryStatus(5, nil); got != PointStatusIndeterminate {
		t.Errorf("EvaluateDryStatus(5, nil) = %s, want indeterminate", got)
	}
}
