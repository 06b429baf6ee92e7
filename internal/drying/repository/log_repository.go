package repository

import (
	"context"
	"errors"
	"time"

	"github.com/restoros/drylog/internal/drying/entity"
	"gorm.io/gorm"
)

// LogRepository 干燥日志仓库
type LogRepository struct {
	db *gorm.DB
}

// NewLogRepository 创建干燥日志仓库
func NewLogRepository(db *gorm.DB) *LogRepository {
	return &LogRepository{db: db}
}

// Create 创建日志。每工单唯一，冲突由job_id唯一索引兜底。
func (r *LogRepository) Create(ctx context.Context, log *entity.DryingLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByID 按ID查找日志
func (r *LogRepository) FindByID(ctx context.Context, id string) (*entity.DryingLog, error) {
	var log entity.DryingLog
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}

// FindByJobID 按工单ID查找日志
func (r *LogRepository) FindByJobID(ctx context.Context, jobID string) (*entity.DryingLog, error) {
	var log entity.DryingLog
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}

// ClaimVisitNumber 原子领取下一个巡检序号。
// 单条UPDATE...RETURNING在Postgres里对同一行串行执行，
// 并发保存不会拿到相同序号；禁止用客户端MAX+1代替。
func (r *LogRepository) ClaimVisitNumber(ctx context.Context, logID string) (int, error) {
	var seq int
	err := r.db.WithContext(ctx).
		Raw("UPDATE drying_logs SET visit_seq = visit_seq + 1, updated_at = NOW() WHERE id = ? RETURNING visit_seq", logID).
		Scan(&seq).Error
	if err != nil {
		return 0, err
	}
	if seq == 0 {
		return 0, ErrNotFound
	}
	return seq, nil
}

// SetSetupComplete 更新布置完成标记
func (r *LogRepository) SetSetupComplete(ctx context.Context, logID string, complete bool) error {
	return r.db.WithContext(ctx).
		Model(&entity.DryingLog{}).
		Where("id = ?", logID).
		Updates(map[string]interface{}{"setup_complete": complete, "updated_at": time.Now()}).Error
}

// Lock 锁定日志并标记完成。只在未锁定时生效，返回受影响行数供调用方判断竞态。
func (r *LogRepository) Lock(ctx context.Context, logID, userID string) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&entity.DryingLog{}).
		Where("id = ? AND locked = false", logID).
		Updates(map[string]interface{}{
			"locked":       true,
			"status":       entity.LogStatusComplete,
			"completed_at": now,
			"completed_by": userID,
			"updated_at":   now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Reopen 解锁日志恢复可写。不重放、不重新校验，只恢复可变性。
func (r *LogRepository) Reopen(ctx context.Context, logID string) error {
	return r.db.WithContext(ctx).
		Model(&entity.DryingLog{}).
		Where("id = ?", logID).
		Updates(map[string]interface{}{
			"locked":       false,
			"status":       entity.LogStatusActive,
			"completed_at": nil,
			"completed_by": "",
			"updated_at":   time.Now(),
		}).Error
}
