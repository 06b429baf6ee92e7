package entity

import (
	"time"
)

// Chamber 干燥分区（同一受灾区域的房间组），按position排序
type Chamber struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	LogID      string    `json:"log_id" gorm:"size:32;not null;index"`
	Name       string    `json:"name" gorm:"size:128;not null"`
	FloorLevel string    `json:"floor_level" gorm:"size:32"`
	Color      string    `json:"color" gorm:"size:16"`
	Position   int       `json:"position" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// 关联
	Rooms []Room `json:"rooms,omitempty" gorm:"foreignKey:ChamberID"`
}

func (Chamber) TableName() string {
	return "drying_chambers"
}

// Room 房间，属于唯一分区，按position排序
type Room struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	ChamberID string    `json:"chamber_id" gorm:"size:32;not null;index"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	Position  int       `json:"position" gorm:"not null;default:0"`
	// RefSeq 监测点序号计数器：只增不减，保证序号不复用
	RefSeq    int       `json:"-" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	RefPoints []ReferencePoint `json:"ref_points,omitempty" gorm:"foreignKey:RoomID"`
}

func (Room) TableName() string {
	return "drying_rooms"
}

// ReferencePoint 含水率监测点。RefNumber在房间内唯一，创建时分配，永不复用。
// DemolishedVisitID 记录触发拆除的巡检，历史视图按巡检序号裁剪（见VisitService.VisibleAsOf）
type ReferencePoint struct {
	ID                string     `json:"id" gorm:"primaryKey;size:32"`
	RoomID            string     `json:"room_id" gorm:"size:32;not null;index"`
	LogID             string     `json:"log_id" gorm:"size:32;not null;index"`
	RefNumber         int        `json:"ref_number" gorm:"not null"`
	MaterialCode      string     `json:"material_code" gorm:"size:32;not null"`
	Label             string     `json:"label" gorm:"size:128"`
	DemolishedAt      *time.Time `json:"demolished_at"`
	DemolishedVisitID *string    `json:"demolished_visit_id" gorm:"size:32"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// 关联
	DemolishedVisit *Visit `json:"demolished_visit,omitempty" gorm:"foreignKey:DemolishedVisitID"`
}

func (ReferencePoint) TableName() string {
	return "drying_ref_points"
}

// Baseline 材料干燥基准值，按materialCode在日志内唯一。干燥标准 = 基准值 + 4
type Baseline struct {
	ID            string    `json:"id" gorm:"primaryKey;size:32"`
	LogID         string    `json:"log_id" gorm:"size:32;not null;index:idx_baseline_log_material,unique"`
	MaterialCode  string    `json:"material_code" gorm:"size:32;not null;index:idx_baseline_log_material,unique"`
	BaselineValue float64   `json:"baseline_value" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Baseline) TableName() string {
	return "drying_baselines"
}

// DryStandardMargin 行业固定干燥余量：基准值+4以内视为已干
const DryStandardMargin = 4.0
