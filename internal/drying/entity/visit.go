package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Visit 现场巡检记录。VisitNumber每日志从1严格递增，分配后不可变，
// 是唯一排序键；VisitedAt由用户填写、可回填修改，不参与排序。
type Visit struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	LogID       string    `json:"log_id" gorm:"size:32;not null;index:idx_visit_log_number,unique"`
	VisitNumber int       `json:"visit_number" gorm:"not null;index:idx_visit_log_number,unique"`
	VisitedAt   time.Time `json:"visited_at" gorm:"not null"`
	CreatedBy   string    `json:"created_by" gorm:"size:32;not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// 关联
	Atmospherics []AtmosphericReading `json:"atmospherics,omitempty" gorm:"foreignKey:VisitID"`
	Moistures    []MoistureReading    `json:"moistures,omitempty" gorm:"foreignKey:VisitID"`
	Notes        []VisitNote          `json:"notes,omitempty" gorm:"foreignKey:VisitID"`
}

func (Visit) TableName() string {
	return "drying_visits"
}

// AtmosphericReadingType 温湿度读数类型
const (
	ReadingTypeUnaffectedArea    = "unaffected_area"
	ReadingTypeOutside           = "outside"
	ReadingTypeChamberIntake     = "chamber_intake"
	ReadingTypeChamberDehuExhaust = "chamber_dehu_exhaust"
)

// AtmosphericReading 温湿度读数，按(类型, 分区, 除湿机序号)区分。
// GPP列只是派生缓存，写入时由心理测量学公式重算，读取端不得信任外部传入值。
type AtmosphericReading struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	VisitID     string    `json:"visit_id" gorm:"size:32;not null;index"`
	ReadingType string    `json:"reading_type" gorm:"size:32;not null"`
	ChamberID   *string   `json:"chamber_id" gorm:"size:32"`
	DehuNumber  *int      `json:"dehu_number"`
	TempF       float64   `json:"temp_f" gorm:"not null"`
	RHPercent   float64   `json:"rh_percent" gorm:"not null"`
	GPP         float64   `json:"gpp" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
}

func (AtmosphericReading) TableName() string {
	return "drying_atmospheric_readings"
}

// MoistureReading 监测点含水率读数，每巡检每监测点一条
type MoistureReading struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	VisitID      string    `json:"visit_id" gorm:"size:32;not null;index:idx_moisture_visit_point,unique"`
	RefPointID   string    `json:"ref_point_id" gorm:"size:32;not null;index:idx_moisture_visit_point,unique"`
	ReadingValue float64   `json:"reading_value" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
}

func (MoistureReading) TableName() string {
	return "drying_moisture_readings"
}

// StringArray JSONB字符串数组（照片引用等）
type StringArray []string

// Value 实现driver.Valuer
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	return string(b), err
}

// Scan 实现sql.Scanner
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for StringArray")
	}
	return json.Unmarshal(data, a)
}

// VisitNote 巡检备注，附照片引用
type VisitNote struct {
	ID        string      `json:"id" gorm:"primaryKey;size:32"`
	VisitID   string      `json:"visit_id" gorm:"size:32;not null;index"`
	Content   string      `json:"content" gorm:"type:text;not null"`
	Photos    StringArray `json:"photos" gorm:"type:jsonb"`
	CreatedBy string      `json:"created_by" gorm:"size:32;not null"`
	CreatedAt time.Time   `json:"created_at"`
}

func (VisitNote) TableName() string {
	return "drying_visit_notes"
}
