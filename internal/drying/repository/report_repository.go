package repository

import (
	"context"
	"errors"

	"github.com/restoros/drylog/internal/drying/entity"
	"gorm.io/gorm"
)

// ReportRepository 报告元数据仓库
type ReportRepository struct {
	db *gorm.DB
}

// NewReportRepository 创建报告仓库
func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create 记录一份已生成报告
func (r *ReportRepository) Create(ctx context.Context, report *entity.DryingReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

// FindByID 按ID查报告，校验归属日志
func (r *ReportRepository) FindByID(ctx context.Context, logID, reportID string) (*entity.DryingReport, error) {
	var report entity.DryingReport
	err := r.db.WithContext(ctx).
		Where("id = ? AND drying_log_id = ?", reportID, logID).
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &report, nil
}

// ListByLog 日志下全部报告，最新在前
func (r *ReportRepository) ListByLog(ctx context.Context, logID string) ([]entity.DryingReport, error) {
	var reports []entity.DryingReport
	err := r.db.WithContext(ctx).
		Where("drying_log_id = ?", logID).
		Order("generated_at DESC").
		Find(&reports).Error
	return reports, err
}
