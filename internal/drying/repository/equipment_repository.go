package repository

import (
	"context"
	"errors"
	"time"

	"github.com/restoros/drylog/internal/drying/entity"
	"gorm.io/gorm"
)

// EquipmentRepository 设备投放仓库
type EquipmentRepository struct {
	db *gorm.DB
}

// NewEquipmentRepository 创建设备仓库
func NewEquipmentRepository(db *gorm.DB) *EquipmentRepository {
	return &EquipmentRepository{db: db}
}

// CreateBatch 批量新增投放区间
func (r *EquipmentRepository) CreateBatch(ctx context.Context, placements []entity.EquipmentPlacement) error {
	if len(placements) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&placements).Error
}

// FindByID 按ID查投放区间，校验归属日志
func (r *EquipmentRepository) FindByID(ctx context.Context, logID, placementID string) (*entity.EquipmentPlacement, error) {
	var placement entity.EquipmentPlacement
	err := r.db.WithContext(ctx).
		Where("id = ? AND drying_log_id = ?", placementID, logID).
		First(&placement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &placement, nil
}

// ListByLog 日志下全部投放区间
func (r *EquipmentRepository) ListByLog(ctx context.Context, logID string) ([]entity.EquipmentPlacement, error) {
	var placements []entity.EquipmentPlacement
	err := r.db.WithContext(ctx).
		Where("drying_log_id = ?", logID).
		Order("room_id ASC, placed_at ASC").
		Find(&placements).Error
	return placements, err
}

// ListActiveByRoom 房间内在场设备
func (r *EquipmentRepository) ListActiveByRoom(ctx context.Context, roomID string) ([]entity.EquipmentPlacement, error) {
	var placements []entity.EquipmentPlacement
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND removed_at IS NULL", roomID).
		Order("placed_at ASC").
		Find(&placements).Error
	return placements, err
}

// ListActiveByLog 日志内在场设备
func (r *EquipmentRepository) ListActiveByLog(ctx context.Context, logID string) ([]entity.EquipmentPlacement, error) {
	var placements []entity.EquipmentPlacement
	err := r.db.WithContext(ctx).
		Where("drying_log_id = ? AND removed_at IS NULL", logID).
		Order("room_id ASC, placed_at ASC").
		Find(&placements).Error
	return placements, err
}

// MarkRemoved 撤场
func (r *EquipmentRepository) MarkRemoved(ctx context.Context, placementID string, removedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.EquipmentPlacement{}).
		Where("id = ? AND removed_at IS NULL", placementID).
		Updates(map[string]interface{}{"removed_at": removedAt, "updated_at": time.Now()}).Error
}

// RemoveNewestActive 收回房间内某类型最近投放的n台（保存巡检时的负向差量）
func (r *EquipmentRepository) RemoveNewestActive(ctx context.Context, roomID, equipmentType string, n int, removedAt time.Time) error {
	if n <= 0 {
		return nil
	}
	return r.db.WithContext(ctx).Exec(`
		UPDATE drying_equipment_placements SET removed_at = ?, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM drying_equipment_placements
			WHERE room_id = ? AND equipment_type = ? AND removed_at IS NULL
			ORDER BY placed_at DESC
			LIMIT ?
		)
	`, removedAt, roomID, equipmentType, n).Error
}
