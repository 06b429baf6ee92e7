package entity

import (
	"time"
)

// DryingReport 已生成报告的元数据。同一日志可累积多份，最新一份为当前有效报告。
// 日志锁定后仍允许追加（报告可随时从冻结数据重新生成）。
type DryingReport struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	DryingLogID string    `json:"drying_log_id" gorm:"size:32;not null;index"`
	JobID       string    `json:"job_id" gorm:"size:32;not null;index"`
	Filename    string    `json:"filename" gorm:"size:256;not null"`
	FilePath    string    `json:"file_path" gorm:"size:512;not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	GeneratedBy string    `json:"generated_by" gorm:"size:32;not null"`
	GeneratedAt time.Time `json:"generated_at" gorm:"not null"`
}

func (DryingReport) TableName() string {
	return "drying_reports"
}
