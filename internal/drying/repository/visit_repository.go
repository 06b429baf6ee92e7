package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/restoros/drylog/internal/drying/entity"
	"gorm.io/gorm"
)

// VisitRepository 巡检记录仓库
type VisitRepository struct {
	db *gorm.DB
}

// NewVisitRepository 创建巡检仓库
func NewVisitRepository(db *gorm.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// Create 落库巡检记录。(log_id, visit_number)唯一索引兜底序号竞态。
func (r *VisitRepository) Create(ctx context.Context, visit *entity.Visit) error {
	return r.db.WithContext(ctx).Create(visit).Error
}

// IsDuplicateNumberError 是否为巡检序号唯一索引冲突
func IsDuplicateNumberError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "idx_visit_log_number") ||
		strings.Contains(err.Error(), "duplicate key")
}

// FindByID 按ID查巡检，校验归属日志
func (r *VisitRepository) FindByID(ctx context.Context, logID, visitID string) (*entity.Visit, error) {
	var visit entity.Visit
	err := r.db.WithContext(ctx).
		Where("id = ? AND log_id = ?", visitID, logID).
		First(&visit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &visit, nil
}

// List 按visit_number升序列出巡检（唯一排序键，不按visited_at）
func (r *VisitRepository) List(ctx context.Context, logID string) ([]entity.Visit, error) {
	var visits []entity.Visit
	err := r.db.WithContext(ctx).
		Where("log_id = ?", logID).
		Order("visit_number ASC").
		Find(&visits).Error
	return visits, err
}

// FindPrior 指定序号的前一次巡检。不存在时返回nil。
func (r *VisitRepository) FindPrior(ctx context.Context, logID string, visitNumber int) (*entity.Visit, error) {
	var visit entity.Visit
	err := r.db.WithContext(ctx).
		Where("log_id = ? AND visit_number < ?", logID, visitNumber).
		Order("visit_number DESC").
		First(&visit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &visit, nil
}

// UpdateVisitedAt 修改巡检时间。不触碰visit_number和读数关联。
func (r *VisitRepository) UpdateVisitedAt(ctx context.Context, visitID string, visitedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.Visit{}).
		Where("id = ?", visitID).
		Updates(map[string]interface{}{"visited_at": visitedAt, "updated_at": time.Now()}).Error
}

// CreateAtmospherics 批量写入温湿度读数
func (r *VisitRepository) CreateAtmospherics(ctx context.Context, readings []entity.AtmosphericReading) error {
	if len(readings) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&readings).Error
}

// CreateMoistures 批量写入含水率读数
func (r *VisitRepository) CreateMoistures(ctx context.Context, readings []entity.MoistureReading) error {
	if len(readings) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&readings).Error
}

// ListAtmosphericsByVisit 巡检的温湿度读数
func (r *VisitRepository) ListAtmosphericsByVisit(ctx context.Context, visitID string) ([]entity.AtmosphericReading, error) {
	var readings []entity.AtmosphericReading
	err := r.db.WithContext(ctx).
		Where("visit_id = ?", visitID).
		Order("reading_type ASC, chamber_id ASC, dehu_number ASC").
		Find(&readings).Error
	return readings, err
}

// ListAtmosphericsByLog 全日志温湿度读数
func (r *VisitRepository) ListAtmosphericsByLog(ctx context.Context, logID string) ([]entity.AtmosphericReading, error) {
	var readings []entity.AtmosphericReading
	err := r.db.WithContext(ctx).
		Joins("JOIN drying_visits ON drying_atmospheric_readings.visit_id = drying_visits.id").
		Where("drying_visits.log_id = ?", logID).
		Order("drying_visits.visit_number ASC").
		Find(&readings).Error
	return readings, err
}

// ListMoisturesByVisit 巡检的含水率读数
func (r *VisitRepository) ListMoisturesByVisit(ctx context.Context, visitID string) ([]entity.MoistureReading, error) {
	var readings []entity.MoistureReading
	err := r.db.WithContext(ctx).
		Where("visit_id = ?", visitID).
		Find(&readings).Error
	return readings, err
}

// ListMoisturesByLog 全日志含水率读数
func (r *VisitRepository) ListMoisturesByLog(ctx context.Context, logID string) ([]entity.MoistureReading, error) {
	var readings []entity.MoistureReading
	err := r.db.WithContext(ctx).
		Joins("JOIN drying_visits ON drying_moisture_readings.visit_id = drying_visits.id").
		Where("drying_visits.log_id = ?", logID).
		Order("drying_visits.visit_number ASC").
		Find(&readings).Error
	return readings, err
}

// CreateNote 写入巡检备注
func (r *VisitRepository) CreateNote(ctx context.Context, note *entity.VisitNote) error {
	return r.db.WithContext(ctx).Create(note).Error
}

// ListNotesByVisit 巡检的备注
func (r *VisitRepository) ListNotesByVisit(ctx context.Context, visitID string) ([]entity.VisitNote, error) {
	var notes []entity.VisitNote
	err := r.db.WithContext(ctx).
		Where("visit_id = ?", visitID).
		Order("created_at ASC").
		Find(&notes).Error
	return notes, err
}

// ListNotesByLog 全日志备注，按巡检序号时间线排列
func (r *VisitRepository) ListNotesByLog(ctx context.Context, logID string) ([]entity.VisitNote, error) {
	var notes []entity.VisitNote
	err := r.db.WithContext(ctx).
		Joins("JOIN drying_visits ON drying_visit_notes.visit_id = drying_visits.id").
		Where("drying_visits.log_id = ?", logID).
		Order("drying_visits.visit_number ASC, drying_visit_notes.created_at ASC").
		Find(&notes).Error
	return notes, err
}
