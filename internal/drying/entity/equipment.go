package entity

import (
	"time"
)

// EquipmentType 干燥设备类型
const (
	EquipmentTypeAirMover      = "air_mover"
	EquipmentTypeDehumidifier  = "dehumidifier"
	EquipmentTypeAirScrubber   = "air_scrubber"
	EquipmentTypeHeater        = "heater"
	EquipmentTypeInjectidry    = "injectidry"
)

// EquipmentPlacement 设备投放区间。与巡检记录无关，状态连续：
// RemovedAt为空表示仍在现场。
type EquipmentPlacement struct {
	ID            string     `json:"id" gorm:"primaryKey;size:32"`
	DryingLogID   string     `json:"drying_log_id" gorm:"size:32;not null;index"`
	RoomID        string     `json:"room_id" gorm:"size:32;not null;index"`
	EquipmentType string     `json:"equipment_type" gorm:"size:32;not null"`
	PlacedAt      time.Time  `json:"placed_at" gorm:"not null"`
	RemovedAt     *time.Time `json:"removed_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (EquipmentPlacement) TableName() string {
	return "drying_equipment_placements"
}

// Active 是否仍在现场
func (p *EquipmentPlacement) Active() bool {
	return p.RemovedAt == nil
}
