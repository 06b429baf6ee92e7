package repository

import (
	"context"
	"errors"
	"time"

	"github.com/restoros/drylog/internal/drying/entity"
	"gorm.io/gorm"
)

// StructureRepository 物理结构仓库：分区/房间/监测点/基准值
type StructureRepository struct {
	db *gorm.DB
}

// NewStructureRepository 创建结构仓库
func NewStructureRepository(db *gorm.DB) *StructureRepository {
	return &StructureRepository{db: db}
}

// CreateChamber 创建分区
func (r *StructureRepository) CreateChamber(ctx context.Context, chamber *entity.Chamber) error {
	return r.db.WithContext(ctx).Create(chamber).Error
}

// UpdateChamber 更新分区
func (r *StructureRepository) UpdateChamber(ctx context.Context, chamber *entity.Chamber) error {
	return r.db.WithContext(ctx).Save(chamber).Error
}

// FindChamber 按ID查分区，校验归属日志
func (r *StructureRepository) FindChamber(ctx context.Context, logID, chamberID string) (*entity.Chamber, error) {
	var chamber entity.Chamber
	err := r.db.WithContext(ctx).
		Where("id = ? AND log_id = ?", chamberID, logID).
		First(&chamber).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &chamber, nil
}

// ListChambers 按position列出分区（含房间与监测点）
func (r *StructureRepository) ListChambers(ctx context.Context, logID string) ([]entity.Chamber, error) {
	var chambers []entity.Chamber
	err := r.db.WithContext(ctx).
		Where("log_id = ?", logID).
		Preload("Rooms", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Rooms.RefPoints", func(db *gorm.DB) *gorm.DB {
			return db.Order("ref_number ASC")
		}).
		Order("position ASC").
		Find(&chambers).Error
	return chambers, err
}

// CreateRoom 创建房间
func (r *StructureRepository) CreateRoom(ctx context.Context, room *entity.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

// UpdateRoom 更新房间
func (r *StructureRepository) UpdateRoom(ctx context.Context, room *entity.Room) error {
	return r.db.WithContext(ctx).Save(room).Error
}

// FindRoom 按ID查房间，校验归属日志（经分区join）
func (r *StructureRepository) FindRoom(ctx context.Context, logID, roomID string) (*entity.Room, error) {
	var room entity.Room
	err := r.db.WithContext(ctx).
		Joins("JOIN drying_chambers ON drying_rooms.chamber_id = drying_chambers.id").
		Where("drying_rooms.id = ? AND drying_chambers.log_id = ?", roomID, logID).
		First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// ClaimRefNumber 原子领取房间内下一个监测点序号（与巡检序号同一套领取纪律）
func (r *StructureRepository) ClaimRefNumber(ctx context.Context, roomID string) (int, error) {
	var seq int
	err := r.db.WithContext(ctx).
		Raw("UPDATE drying_rooms SET ref_seq = ref_seq + 1, updated_at = NOW() WHERE id = ? RETURNING ref_seq", roomID).
		Scan(&seq).Error
	if err != nil {
		return 0, err
	}
	if seq == 0 {
		return 0, ErrNotFound
	}
	return seq, nil
}

// CreateRefPoint 创建监测点
func (r *StructureRepository) CreateRefPoint(ctx context.Context, point *entity.ReferencePoint) error {
	return r.db.WithContext(ctx).Create(point).Error
}

// FindRefPoint 按ID查监测点，校验归属日志
func (r *StructureRepository) FindRefPoint(ctx context.Context, logID, pointID string) (*entity.ReferencePoint, error) {
	var point entity.ReferencePoint
	err := r.db.WithContext(ctx).
		Where("id = ? AND log_id = ?", pointID, logID).
		First(&point).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &point, nil
}

// ListRefPoints 列出日志下全部监测点（含拆除巡检信息）
func (r *StructureRepository) ListRefPoints(ctx context.Context, logID string) ([]entity.ReferencePoint, error) {
	var points []entity.ReferencePoint
	err := r.db.WithContext(ctx).
		Where("log_id = ?", logID).
		Preload("DemolishedVisit").
		Order("room_id ASC, ref_number ASC").
		Find(&points).Error
	return points, err
}

// CountReadingsForPoint 监测点已有读数条数（有读数后禁止物理删除）
func (r *StructureRepository) CountReadingsForPoint(ctx context.Context, pointID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.MoistureReading{}).
		Where("ref_point_id = ?", pointID).
		Count(&count).Error
	return count, err
}

// DeleteRefPoint 物理删除监测点。调用方必须先确认无任何读数。
func (r *StructureRepository) DeleteRefPoint(ctx context.Context, pointID string) error {
	return r.db.WithContext(ctx).Delete(&entity.ReferencePoint{}, "id = ?", pointID).Error
}

// SetDemolished 写入/清除拆除标记
func (r *StructureRepository) SetDemolished(ctx context.Context, pointID string, demolishedAt *time.Time, demolishedVisitID *string) error {
	return r.db.WithContext(ctx).
		Model(&entity.ReferencePoint{}).
		Where("id = ?", pointID).
		Updates(map[string]interface{}{
			"demolished_at":       demolishedAt,
			"demolished_visit_id": demolishedVisitID,
			"updated_at":          time.Now(),
		}).Error
}

// UpsertBaseline 创建或更新材料基准值
func (r *StructureRepository) UpsertBaseline(ctx context.Context, baseline *entity.Baseline) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO drying_baselines (id, log_id, material_code, baseline_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, NOW(), NOW())
		ON CONFLICT (log_id, material_code) DO UPDATE SET
			baseline_value = EXCLUDED.baseline_value,
			updated_at = NOW()
	`, baseline.ID, baseline.LogID, baseline.MaterialCode, baseline.BaselineValue).Error
}

// ListBaselines 列出日志基准值
func (r *StructureRepository) ListBaselines(ctx context.Context, logID string) ([]entity.Baseline, error) {
	var baselines []entity.Baseline
	err := r.db.WithContext(ctx).
		Where("log_id = ?", logID).
		Order("material_code ASC").
		Find(&baselines).Error
	return baselines, err
}
