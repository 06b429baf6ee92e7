package entity

import (
	"time"
)

// DryingLog 干燥日志，每个工单(Job)唯一
type DryingLog struct {
	ID            string     `json:"id" gorm:"primaryKey;size:32"`
	JobID         string     `json:"job_id" gorm:"size:32;not null;uniqueIndex"`
	Status        string     `json:"status" gorm:"size:16;not null;default:active"`
	SetupComplete bool       `json:"setup_complete" gorm:"not null;default:false"`
	Locked        bool       `json:"locked" gorm:"not null;default:false"`
	// VisitSeq 巡检序号计数器，只能通过原子自增领取，禁止客户端计算
	VisitSeq    int        `json:"-" gorm:"not null;default:0"`
	CompletedAt *time.Time `json:"completed_at"`
	CompletedBy string     `json:"completed_by" gorm:"size:32"`
	CreatedBy   string     `json:"created_by" gorm:"size:32;not null"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// 关联
	Chambers []Chamber  `json:"chambers,omitempty" gorm:"foreignKey:LogID"`
	Visits   []Visit    `json:"visits,omitempty" gorm:"foreignKey:LogID"`
	Baselines []Baseline `json:"baselines,omitempty" gorm:"foreignKey:LogID"`
}

func (DryingLog) TableName() string {
	return "drying_logs"
}

// DryingLogStatus 日志状态
const (
	LogStatusActive   = "active"
	LogStatusComplete = "complete"
)
