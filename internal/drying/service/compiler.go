package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/restoros/drylog/internal/drying/entity"
	"github.com/restoros/drylog/internal/drying/psychro"
)

// 报告文档模型：交给外部渲染服务的规范化结构，不含任何排版标记。
// 编译是快照上的纯变换，零巡检的日志产出空表而不是报错。

// ReportDocument 完整干燥报告
type ReportDocument struct {
	JobID          string           `json:"job_id"`
	LogID          string           `json:"log_id"`
	Status         string           `json:"status"`
	GeneratedAt    time.Time        `json:"generated_at"`
	Visits         []VisitColumn    `json:"visits"`
	SiteTrend      []TrendRow       `json:"site_trend"`
	Chambers       []ChamberSection `json:"chambers"`
	BillingSummary []TypeSummary    `json:"billing_summary"`
	Notes          []NoteEntry      `json:"notes"`
}

// VisitColumn 表格列头：一次巡检
type VisitColumn struct {
	VisitID     string    `json:"visit_id"`
	VisitNumber int       `json:"visit_number"`
	VisitedAt   time.Time `json:"visited_at"`
}

// TrendRow 温湿度趋势行：一个读数键位横跨全部巡检
type TrendRow struct {
	Label       string       `json:"label"`
	ReadingType string       `json:"reading_type"`
	DehuNumber  *int         `json:"dehu_number,omitempty"`
	Cells       []*TrendCell `json:"cells"`
}

// TrendCell 趋势单元格，无该次读数时整格为nil
type TrendCell struct {
	TempF           float64  `json:"temp_f"`
	RHPercent       float64  `json:"rh_percent"`
	GPP             float64  `json:"gpp"`
	GrainDepression *float64 `json:"grain_depression,omitempty"`
	DeltaGPP        *float64 `json:"delta_gpp,omitempty"`
}

// ChamberSection 分区章节
type ChamberSection struct {
	ChamberID  string        `json:"chamber_id"`
	Name       string        `json:"name"`
	FloorLevel string        `json:"floor_level"`
	Color      string        `json:"color"`
	Trend      []TrendRow    `json:"trend"`
	Rooms      []RoomSection `json:"rooms"`
}

// RoomSection 房间章节：监测点矩阵 + 设备日活动
type RoomSection struct {
	RoomID        string        `json:"room_id"`
	Name          string        `json:"name"`
	Points        []PointRow    `json:"points"`
	DailyActivity []DayActivity `json:"daily_activity"`
}

// PointRow 监测点矩阵行，列与Visits对齐
type PointRow struct {
	PointID      string      `json:"point_id"`
	RefNumber    int         `json:"ref_number"`
	MaterialCode string      `json:"material_code"`
	Label        string      `json:"label"`
	Baseline     *float64    `json:"baseline,omitempty"`
	Cells        []PointCell `json:"cells"`
}

// PointCell 矩阵单元格。Status为demolished时该点对此列视图已拆除；
// 有值无基准值时为indeterminate。
type PointCell struct {
	Value  *float64 `json:"value,omitempty"`
	Status string   `json:"status"`
}

// NoteEntry 备注时间线条目
type NoteEntry struct {
	VisitNumber int       `json:"visit_number"`
	VisitedAt   time.Time `json:"visited_at"`
	Content     string    `json:"content"`
	Photos      []string  `json:"photos,omitempty"`
	CreatedBy   string    `json:"created_by"`
}

// Compile 把日志快照编译为报告文档
func Compile(snap *LogSnapshot, now time.Time) *ReportDocument {
	doc := &ReportDocument{
		JobID:       snap.Log.JobID,
		LogID:       snap.Log.ID,
		Status:      snap.Log.Status,
		GeneratedAt: now,
	}

	for _, v := range snap.Visits {
		doc.Visits = append(doc.Visits, VisitColumn{
			VisitID:     v.ID,
			VisitNumber: v.VisitNumber,
			VisitedAt:   v.VisitedAt,
		})
	}

	// 按(巡检, 键位)索引温湿度读数；环境GPP取同巡检unaffected_area
	readingByVisitKey := map[string]*entity.AtmosphericReading{}
	ambientByVisit := map[string]float64{}
	for i := range snap.Atmospherics {
		r := &snap.Atmospherics[i]
		readingByVisitKey[r.VisitID+"#"+readingKey(r.ReadingType, r.ChamberID, r.DehuNumber)] = r
		if r.ReadingType == entity.ReadingTypeUnaffectedArea {
			ambientByVisit[r.VisitID] = r.GPP
		}
	}

	doc.SiteTrend = []TrendRow{
		buildTrendRow(snap, readingByVisitKey, ambientByVisit, "未受灾区域", entity.ReadingTypeUnaffectedArea, nil, nil),
		buildTrendRow(snap, readingByVisitKey, ambientByVisit, "室外", entity.ReadingTypeOutside, nil, nil),
	}

	for _, chamber := range snap.Chambers {
		section := ChamberSection{
			ChamberID:  chamber.ID,
			Name:       chamber.Name,
			FloorLevel: chamber.FloorLevel,
			Color:      chamber.Color,
		}

		chamberID := chamber.ID
		section.Trend = append(section.Trend,
			buildTrendRow(snap, readingByVisitKey, ambientByVisit, "进风口", entity.ReadingTypeChamberIntake, &chamberID, nil))
		for _, dehu := range dehuNumbersFor(snap, chamber.ID) {
			n := dehu
			section.Trend = append(section.Trend,
				buildTrendRow(snap, readingByVisitKey, ambientByVisit, fmt.Sprintf("除湿机%d出风口", n), entity.ReadingTypeChamberDehuExhaust, &chamberID, &n))
		}

		for _, room := range chamber.Rooms {
			section.Rooms = append(section.Rooms, buildRoomSection(snap, room, now))
		}
		doc.Chambers = append(doc.Chambers, section)
	}

	doc.BillingSummary = BillingSummary(snap.Placements, now)
	doc.Notes = buildNotes(snap)

	return doc
}

// buildTrendRow 一个读数键位横跨全部巡检的趋势行。
// 格令降差只对非环境读数计算；GPP差值只对比紧邻的上一巡检，
// 上一巡检缺该键位读数时差值为nil。
func buildTrendRow(snap *LogSnapshot, index map[string]*entity.AtmosphericReading, ambient map[string]float64,
	label, readingType string, chamberID *string, dehuNumber *int) TrendRow {

	row := TrendRow{Label: label, ReadingType: readingType, DehuNumber: dehuNumber}
	key := readingKey(readingType, chamberID, dehuNumber)

	var priorGPP *float64
	for _, v := range snap.Visits {
		r, ok := index[v.ID+"#"+key]
		if !ok {
			row.Cells = append(row.Cells, nil)
			priorGPP = nil
			continue
		}
		cell := &TrendCell{TempF: r.TempF, RHPercent: r.RHPercent, GPP: r.GPP}
		if readingType != entity.ReadingTypeUnaffectedArea {
			if amb, has := ambient[v.ID]; has {
				depression := psychro.GrainDepression(amb, r.GPP)
				cell.GrainDepression = &depression
			}
		}
		cell.DeltaGPP = psychro.Delta(r.GPP, priorGPP)
		gpp := r.GPP
		priorGPP = &gpp
		row.Cells = append(row.Cells, cell)
	}
	return row
}

// dehuNumbersFor 分区内出现过的除湿机序号，升序
func dehuNumbersFor(snap *LogSnapshot, chamberID string) []int {
	seen := map[int]bool{}
	for _, r := range snap.Atmospherics {
		if r.ReadingType == entity.ReadingTypeChamberDehuExhaust &&
			r.ChamberID != nil && *r.ChamberID == chamberID && r.DehuNumber != nil {
			seen[*r.DehuNumber] = true
		}
	}
	numbers := make([]int, 0, len(seen))
	for n := range seen {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// buildRoomSection 房间章节：行=监测点，列=巡检。
// 单元格状态按双时态可见性裁剪：晚于本列巡检才拆除的点照常显示读数。
func buildRoomSection(snap *LogSnapshot, room entity.Room, now time.Time) RoomSection {
	section := RoomSection{RoomID: room.ID, Name: room.Name}

	for _, point := range room.RefPoints {
		p := point
		row := PointRow{
			PointID:      p.ID,
			RefNumber:    p.RefNumber,
			MaterialCode: p.MaterialCode,
			Label:        p.Label,
			Baseline:     snap.BaselineFor(p.MaterialCode),
		}
		demolishedNumber := 0
		if p.DemolishedVisitID != nil {
			demolishedNumber = snap.VisitNumberOf(*p.DemolishedVisitID)
		}

		for _, v := range snap.Visits {
			if !VisibleAsOf(&p, demolishedNumber, v.VisitNumber) {
				row.Cells = append(row.Cells, PointCell{Status: PointStatusDemolished})
				continue
			}
			reading := snap.MoistureFor(v.ID, p.ID)
			if reading == nil {
				row.Cells = append(row.Cells, PointCell{Status: PointStatusIndeterminate})
				continue
			}
			value := reading.ReadingValue
			row.Cells = append(row.Cells, PointCell{
				Value:  &value,
				Status: EvaluateDryStatus(value, row.Baseline),
			})
		}
		section.Points = append(section.Points, row)
	}

	var roomPlacements []entity.EquipmentPlacement
	for _, pl := range snap.Placements {
		if pl.RoomID == room.ID {
			roomPlacements = append(roomPlacements, pl)
		}
	}
	section.DailyActivity = DailyActivity(roomPlacements, now)

	return section
}

// buildNotes 备注时间线，按巡检序号排列
func buildNotes(snap *LogSnapshot) []NoteEntry {
	visitByID := map[string]*entity.Visit{}
	for i := range snap.Visits {
		visitByID[snap.Visits[i].ID] = &snap.Visits[i]
	}

	var entries []NoteEntry
	for _, note := range snap.Notes {
		entry := NoteEntry{
			Content:   note.Content,
			Photos:    note.Photos,
			CreatedBy: note.CreatedBy,
		}
		if v, ok := visitByID[note.VisitID]; ok {
			entry.VisitNumber = v.VisitNumber
			entry.VisitedAt = v.VisitedAt
		}
		entries = append(entries, entry)
	}
	return entries
}
