package service

import (
	"testing"
	"time"

	"github.com/restoros/drylog/internal/drying/entity"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestCompileZeroVisitsYieldsEmptyTables(t *testing.T) {
	snap := &LogSnapshot{
		Log: &entity.DryingLog{ID: "log1", JobID: "job1", Status: entity.LogStatusActive},
		Chambers: []entity.Chamber{
			{ID: "c1", LogID: "log1", Name: "一层", Rooms: []entity.Room{
				{ID: "r1", ChamberID: "c1", Name: "客厅", RefPoints: []entity.ReferencePoint{
					{ID: "pt1", RoomID: "r1", RefNumber: 1, MaterialCode: "drywall"},
				}},
			}},
		},
	}

	doc := Compile(snap, time.Now())
	if len(doc.Visits) != 0 {
		t.Errorf("expected no visit columns, got %d", len(doc.Visits))
	}
	if len(doc.SiteTrend) != 2 {
		t.Fatalf("site trend should still have its two rows, got %d", len(doc.SiteTrend))
	}
	for _, row := range doc.SiteTrend {
		if len(row.Cells) != 0 {
			t.Errorf("row %s should have no cells, got %d", row.Label, len(row.Cells))
		}
	}
	if len(doc.Chambers) != 1 || len(doc.Chambers[0].Rooms) != 1 {
		t.Fatalf("structure sections missing: %+v", doc.Chambers)
	}
	point := doc.Chambers[0].Rooms[0].Points[0]
	if len(point.Cells) != 0 {
		t.Errorf("point row should have no cells, got %d", len(point.Cells))
	}
	if len(doc.BillingSummary) != 0 {
		t.Errorf("billing summary should be empty, got %+v", doc.BillingSummary)
	}
}

func TestCompileTrendGrainDepressionAndDelta(t *testing.T) {
	chamberID := "c1"
	snap := &LogSnapshot{
		Log: &entity.DryingLog{ID: "log1", JobID: "job1"},
		Chambers: []entity.Chamber{
			{ID: chamberID, LogID: "log1", Name: "一层"},
		},
		Visits: []entity.Visit{
			{ID: "v1", LogID: "log1", VisitNumber: 1},
			{ID: "v2", LogID: "log1", VisitNumber: 2},
		},
		Atmospherics: []entity.AtmosphericReading{
			{ID: "a1", VisitID: "v1", ReadingType: entity.ReadingTypeUnaffectedArea, TempF: 70, RHPercent: 50, GPP: 54.0},
			{ID: "a2", VisitID: "v1", ReadingType: entity.ReadingTypeChamberIntake, ChamberID: strPtr(chamberID), TempF: 80, RHPercent: 60, GPP: 90.0},
			{ID: "a3", VisitID: "v2", ReadingType: entity.ReadingTypeUnaffectedArea, TempF: 70, RHPercent: 48, GPP: 52.0},
			{ID: "a4", VisitID: "v2", ReadingType: entity.ReadingTypeChamberIntake, ChamberID: strPtr(chamberID), TempF: 78, RHPercent: 50, GPP: 70.0},
			{ID: "a5", VisitID: "v2", ReadingType: entity.ReadingTypeChamberDehuExhaust, ChamberID: strPtr(chamberID), DehuNumber: intPtr(1), TempF: 95, RHPercent: 20, GPP: 35.0},
		},
	}

	doc := Compile(snap, time.Now())
	if len(doc.Chambers) != 1 {
		t.Fatalf("got %d chambers, want 1", len(doc.Chambers))
	}
	trend := doc.Chambers[0].Trend
	// 进风口一行 + 除湿机1一行
	if len(trend) != 2 {
		t.Fatalf("got %d trend rows, want 2: %+v", len(trend), trend)
	}

	intake := trend[0]
	if len(intake.Cells) != 2 {
		t.Fatalf("intake row has %d cells, want 2", len(intake.Cells))
	}
	// 格令降差 = 环境GPP − 读数GPP
	if intake.Cells[0].GrainDepression == nil || *intake.Cells[0].GrainDepression != 54.0-90.0 {
		t.Errorf("visit1 grain depression = %v, want -36", intake.Cells[0].GrainDepression)
	}
	// 首列无前值，差值为nil而不是0
	if intake.Cells[0].DeltaGPP != nil {
		t.Errorf("first visit delta should be nil, got %v", *intake.Cells[0].DeltaGPP)
	}
	if intake.Cells[1].DeltaGPP == nil || *intake.Cells[1].DeltaGPP != 70.0-90.0 {
		t.Errorf("visit2 delta = %v, want -20", intake.Cells[1].DeltaGPP)
	}

	dehu := trend[1]
	if dehu.DehuNumber == nil || *dehu.DehuNumber != 1 {
		t.Fatalf("second trend row should be dehu #1, got %+v", dehu)
	}
	// 第1次巡检没读该除湿机，格子为nil
	if dehu.Cells[0] != nil {
		t.Errorf("dehu visit1 cell should be nil, got %+v", dehu.Cells[0])
	}
	if dehu.Cells[1] == nil || dehu.Cells[1].GPP != 35.0 {
		t.Errorf("dehu visit2 cell = %+v, want gpp 35", dehu.Cells[1])
	}

	// 环境行自身不算格令降差
	if doc.SiteTrend[0].Cells[0].GrainDepression != nil {
		t.Error("unaffected area row must not carry grain depression")
	}
}

func TestCompileDeltaNilAfterMissingVisit(t *testing.T) {
	snap := &LogSnapshot{
		Log: &entity.DryingLog{ID: "log1", JobID: "job1"},
		Visits: []entity.Visit{
			{ID: "v1", LogID: "log1", VisitNumber: 1},
			{ID: "v2", LogID: "log1", VisitNumber: 2},
			{ID: "v3", LogID: "log1", VisitNumber: 3},
		},
		Atmospherics: []entity.AtmosphericReading{
			{ID: "a1", VisitID: "v1", ReadingType: entity.ReadingTypeOutside, TempF: 70, RHPercent: 55, GPP: 60.0},
			// 第2次巡检没读室外
			{ID: "a2", VisitID: "v3", ReadingType: entity.ReadingTypeOutside, TempF: 68, RHPercent: 50, GPP: 50.0},
		},
	}

	doc := Compile(snap, time.Now())
	outside := doc.SiteTrend[1]
	if outside.ReadingType != entity.ReadingTypeOutside {
		t.Fatalf("second site trend row should be outside, got %s", outside.ReadingType)
	}
	if len(outside.Cells) != 3 {
		t.Fatalf("got %d cells, want 3", len(outside.Cells))
	}
	if outside.Cells[1] != nil {
		t.Fatalf("visit2 cell should be nil, got %+v", outside.Cells[1])
	}
	// 紧邻的上一巡检缺读数，第3列差值为nil而不是跨巡检对比第1列
	if outside.Cells[2] == nil {
		t.Fatal("visit3 cell missing")
	}
	if outside.Cells[2].DeltaGPP != nil {
		t.Errorf("visit3 delta should be nil, got %v", *outside.Cells[2].DeltaGPP)
	}
}

func TestCompileDemolitionVisibility(t *testing.T) {
	demolishedAt := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	demolishedVisit := "v5"
	snap := &LogSnapshot{
		Log: &entity.DryingLog{ID: "log1", JobID: "job1"},
		Chambers: []entity.Chamber{
			{ID: "c1", LogID: "log1", Name: "一层", Rooms: []entity.Room{
				{ID: "r1", ChamberID: "c1", Name: "客厅", RefPoints: []entity.ReferencePoint{
					{ID: "pt1", RoomID: "r1", RefNumber: 1, MaterialCode: "drywall",
						DemolishedAt: &demolishedAt, DemolishedVisitID: &demolishedVisit},
				}},
			}},
		},
		Baselines: []entity.Baseline{
			{ID: "b1", LogID: "log1", MaterialCode: "drywall", BaselineValue: 10},
		},
	}
	for i := 1; i <= 6; i++ {
		snap.Visits = append(snap.Visits, entity.Visit{
			ID: "v" + string(rune('0'+i)), LogID: "log1", VisitNumber: i,
		})
		snap.Moistures = append(snap.Moistures, entity.MoistureReading{
			ID: "m" + string(rune('0'+i)), VisitID: "v" + string(rune('0'+i)),
			RefPointID: "pt1", ReadingValue: 20,
		})
	}

	doc := Compile(snap, time.Now())
	cells := doc.Chambers[0].Rooms[0].Points[0].Cells
	if len(cells) != 6 {
		t.Fatalf("got %d cells, want 6", len(cells))
	}
	// 第5次巡检拆除：1–4列照常显示读数，5、6列显示已拆除
	for i := 0; i < 4; i++ {
		if cells[i].Status == PointStatusDemolished {
			t.Errorf("visit %d view should show the point as active", i+1)
		}
		if cells[i].Value == nil || *cells[i].Value != 20 {
			t.Errorf("visit %d cell should carry the reading", i+1)
		}
	}
	for i := 4; i < 6; i++ {
		if cells[i].Status != PointStatusDemolished {
			t.Errorf("visit %d view should show demolished, got %s", i+1, cells[i].Status)
		}
	}
}

func TestVisibleAsOf(t *testing.T) {
	visitID := "v5"
	demolished := &entity.ReferencePoint{ID: "pt1", DemolishedVisitID: &visitID}
	active := &entity.ReferencePoint{ID: "pt2"}

	for view := 1; view <= 4; view++ {
		if !VisibleAsOf(demolished, 5, view) {
			t.Errorf("view %d should still see the point", view)
		}
	}
	for view := 5; view <= 7; view++ {
		if VisibleAsOf(demolished, 5, view) {
			t.Errorf("view %d should see the point demolished", view)
		}
	}
	if !VisibleAsOf(active, 0, 3) {
		t.Error("never-demolished point must always be visible")
	}
}

func TestCompileNotesTimeline(t *testing.T) {
	snap := &LogSnapshot{
		Log: &entity.DryingLog{ID: "log1", JobID: "job1"},
		Visits: []entity.Visit{
			{ID: "v1", LogID: "log1", VisitNumber: 1, VisitedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
			{ID: "v2", LogID: "log1", VisitNumber: 2, VisitedAt: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)},
		},
		Notes: []entity.VisitNote{
			{ID: "n1", VisitID: "v1", Content: "初次进场", Photos: entity.StringArray{"photo1.jpg"}},
			{ID: "n2", VisitID: "v2", Content: "墙面明显好转"},
		},
	}

	doc := Compile(snap, time.Now())
	if len(doc.Notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(doc.Notes))
	}
	if doc.Notes[0].VisitNumber != 1 || doc.Notes[0].Content != "初次进场" {
		t.Errorf("note[0] = %+v", doc.Notes[0])
	}
	if len(doc.Notes[0].Photos) != 1 || doc.Notes[0].Photos[0] != "photo1.jpg" {
		t.Errorf("note[0] photos = %v", doc.Notes[0].Photos)
	}
	if doc.Notes[1].VisitNumber != 2 {
		t.Errorf("note[1] visit number = %d, want 2", doc.Notes[1].VisitNumber)
	}
}
