package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/restoros/drylog/internal/drying/dryerr"
	"github.com/restoros/drylog/internal/drying/entity"
	"github.com/restoros/drylog/internal/drying/repository"
)

// StructureService 物理结构服务：分区、房间、监测点、材料基准值
type StructureService struct {
	repos *repository.Repositories
}

// NewStructureService 创建结构服务
func NewStructureService(repos *repository.Repositories) *StructureService {
	return &StructureService{repos: repos}
}

// requireStructureMutable 结构实体只在布置阶段可改：未锁定且setup_complete=false
func (s *StructureService) requireStructureMutable(ctx context.Context, logID string) (*entity.DryingLog, error) {
	log, err := requireUnlocked(ctx, s.repos, logID)
	if err != nil {
		return nil, err
	}
	if log.SetupComplete {
		return nil, ErrSetupComplete
	}
	return log, nil
}

// CreateChamberRequest 创建分区请求
type CreateChamberRequest struct {
	Name       string `json:"name" binding:"required"`
	FloorLevel string `json:"floor_level"`
	Color      string `json:"color"`
	Position   int    `json:"position"`
}

// CreateChamber 创建分区
func (s *StructureService) CreateChamber(ctx context.Context, logID string, req *CreateChamberRequest) (*entity.Chamber, error) {
	if _, err := s.requireStructureMutable(ctx, logID); err != nil {
		return nil, err
	}
	chamber := &entity.Chamber{
		ID:         newID(),
		LogID:      logID,
		Name:       req.Name,
		FloorLevel: req.FloorLevel,
		Color:      req.Color,
		Position:   req.Position,
	}
	if err := s.repos.Structure.CreateChamber(ctx, chamber); err != nil {
		return nil, fmt.Errorf("create chamber: %w", err)
	}
	return chamber, nil
}

// UpdateChamber 更新分区属性与排序位
func (s *StructureService) UpdateChamber(ctx context.Context, logID, chamberID string, req *CreateChamberRequest) (*entity.Chamber, error) {
	if _, err := s.requireStructureMutable(ctx, logID); err != nil {
		return nil, err
	}
	chamber, err := s.repos.Structure.FindChamber(ctx, logID, chamberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("chamber", chamberID)
		}
		return nil, fmt.Errorf("find chamber: %w", err)
	}
	chamber.Name = req.Name
	chamber.FloorLevel = req.FloorLevel
	chamber.Color = req.Color
	chamber.Position = req.Position
	if err := s.repos.Structure.UpdateChamber(ctx, chamber); err != nil {
		return nil, fmt.Errorf("update chamber: %w", err)
	}
	return chamber, nil
}

// ListChambers 按排序位列出分区（含房间与监测点树）
func (s *StructureService) ListChambers(ctx context.Context, logID string) ([]entity.Chamber, error) {
	if _, err := s.repos.Log.FindByID(ctx, logID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("drying log", logID)
		}
		return nil, fmt.Errorf("find drying log: %w", err)
	}
	return s.repos.Structure.ListChambers(ctx, logID)
}

// CreateRoomRequest 创建房间请求
type CreateRoomRequest struct {
	ChamberID string `json:"chamber_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Position  int    `json:"position"`
}

// CreateRoom 在分区下创建房间。分区不属于该日志时返回NotFoundError。
func (s *StructureService) CreateRoom(ctx context.Context, logID string, req *CreateRoomRequest) (*entity.Room, error) {
	if _, err := s.requireStructureMutable(ctx, logID); err != nil {
		return nil, err
	}
	if _, err := s.repos.Structure.FindChamber(ctx, logID, req.ChamberID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("chamber", req.ChamberID)
		}
		return nil, fmt.Errorf("find chamber: %w", err)
	}
	room := &entity.Room{
		ID:        newID(),
		ChamberID: req.ChamberID,
		Name:      req.Name,
		Position:  req.Position,
	}
	if err := s.repos.Structure.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

// UpdateRoom 更新房间
func (s *StructureService) UpdateRoom(ctx context.Context, logID, roomID string, name string, position int) (*entity.Room, error) {
	if _, err := s.requireStructureMutable(ctx, logID); err != nil {
		return nil, err
	}
	room, err := s.repos.Structure.FindRoom(ctx, logID, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("room", roomID)
		}
		return nil, fmt.Errorf("find room: %w", err)
	}
	room.Name = name
	room.Position = position
	if err := s.repos.Structure.UpdateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("update room: %w", err)
	}
	return room, nil
}

// CreateRefPointRequest 创建监测点请求
type CreateRefPointRequest struct {
	RoomID       string `json:"room_id" binding:"required"`
	MaterialCode string `json:"material_code" binding:"required"`
	Label        string `json:"label"`
}

// CreateRefPoint 创建监测点。序号按房间原子领取，永不复用。
// 拆除后补建替换点也走这里，替换与拆除是两次独立调用。
func (s *StructureService) CreateRefPoint(ctx context.Context, logID string, req *CreateRefPointRequest) (*entity.ReferencePoint, error) {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return nil, err
	}
	if _, err := s.repos.Structure.FindRoom(ctx, logID, req.RoomID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("room", req.RoomID)
		}
		return nil, fmt.Errorf("find room: %w", err)
	}

	refNumber, err := s.repos.Structure.ClaimRefNumber(ctx, req.RoomID)
	if err != nil {
		return nil, fmt.Errorf("claim ref number: %w", err)
	}
	point := &entity.ReferencePoint{
		ID:           newID(),
		RoomID:       req.RoomID,
		LogID:        logID,
		RefNumber:    refNumber,
		MaterialCode: req.MaterialCode,
		Label:        req.Label,
	}
	if err := s.repos.Structure.CreateRefPoint(ctx, point); err != nil {
		return nil, fmt.Errorf("create ref point: %w", err)
	}
	return point, nil
}

// ListRefPoints 列出日志下全部监测点（含拆除信息）
func (s *StructureService) ListRefPoints(ctx context.Context, logID string) ([]entity.ReferencePoint, error) {
	if _, err := s.repos.Log.FindByID(ctx, logID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("drying log", logID)
		}
		return nil, fmt.Errorf("find drying log: %w", err)
	}
	return s.repos.Structure.ListRefPoints(ctx, logID)
}

// DeleteRefPoint 物理删除监测点。一旦存在任何读数即拒绝，改走拆除流程。
func (s *StructureService) DeleteRefPoint(ctx context.Context, logID, pointID string) error {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return err
	}
	point, err := s.repos.Structure.FindRefPoint(ctx, logID, pointID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return dryerr.NewNotFound("ref point", pointID)
		}
		return fmt.Errorf("find ref point: %w", err)
	}
	count, err := s.repos.Structure.CountReadingsForPoint(ctx, point.ID)
	if err != nil {
		return fmt.Errorf("count readings: %w", err)
	}
	if count > 0 {
		return ErrPointHasReadings
	}
	return s.repos.Structure.DeleteRefPoint(ctx, point.ID)
}

// UpsertBaselineRequest 基准值请求。值取指针：0是合法基准值，
// 不能被required当零值拒掉。
type UpsertBaselineRequest struct {
	MaterialCode  string   `json:"material_code" binding:"required"`
	BaselineValue *float64 `json:"baseline_value" binding:"required"`
}

// UpsertBaseline 创建或更新材料基准值。
// 基准值在整个干燥周期内都可能补录，只受锁定约束，不受布置完成约束。
func (s *StructureService) UpsertBaseline(ctx context.Context, logID string, req *UpsertBaselineRequest) (*entity.Baseline, error) {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return nil, err
	}
	baseline := &entity.Baseline{
		ID:            newID(),
		LogID:         logID,
		MaterialCode:  req.MaterialCode,
		BaselineValue: *req.BaselineValue,
	}
	if err := s.repos.Structure.UpsertBaseline(ctx, baseline); err != nil {
		return nil, fmt.Errorf("upsert baseline: %w", err)
	}
	return baseline, nil
}

// ListBaselines 列出日志基准值
func (s *StructureService) ListBaselines(ctx context.Context, logID string) ([]entity.Baseline, error) {
	return s.repos.Structure.ListBaselines(ctx, logID)
}
