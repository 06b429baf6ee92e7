package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/restoros/drylog/internal/drying/dryerr"
	"github.com/restoros/drylog/internal/drying/entity"
	"github.com/restoros/drylog/internal/drying/repository"
)

// EquipmentService 设备台账服务。投放/撤场是连续区间，
// 与巡检记录彼此独立；计费与日活动都是区间上的纯函数。
type EquipmentService struct {
	repos *repository.Repositories
}

// NewEquipmentService 创建设备服务
func NewEquipmentService(repos *repository.Repositories) *EquipmentService {
	return &EquipmentService{repos: repos}
}

// ============================================================
// 台账纯函数
// ============================================================

// BillingPeriods 区间计费周期数 = ceil(小时数/24)。
// 在场区间按now截断计算。
func BillingPeriods(placedAt time.Time, removedAt *time.Time, now time.Time) int {
	end := now
	if removedAt != nil {
		end = *removedAt
	}
	hours := end.Sub(placedAt).Hours()
	if hours <= 0 {
		return 0
	}
	return int(math.Ceil(hours / 24.0))
}

// DayActivity 单个日历日的设备活动
type DayActivity struct {
	Date   string         `json:"date"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// startOfDay UTC日界
func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DailyActivity 日活动表：从最早投放到最晚撤场（在场区间截到now）逐日统计，
// 某区间在D日活跃当且仅当 placedAt <= D日终 且 (未撤场 或 removedAt > D日始)。
// 只输出至少一台活跃的日子。
func DailyActivity(placements []entity.EquipmentPlacement, now time.Time) []DayActivity {
	if len(placements) == 0 {
		return nil
	}

	earliest := placements[0].PlacedAt
	latest := placements[0].PlacedAt
	for _, p := range placements {
		if p.PlacedAt.Before(earliest) {
			earliest = p.PlacedAt
		}
		end := now
		if p.RemovedAt != nil {
			end = *p.RemovedAt
		}
		if end.After(latest) {
			latest = end
		}
	}

	var days []DayActivity
	for day := startOfDay(earliest); !day.After(latest); day = day.AddDate(0, 0, 1) {
		dayStart := day
		dayEnd := day.AddDate(0, 0, 1)
		counts := map[string]int{}
		total := 0
		for _, p := range placements {
			if p.PlacedAt.Before(dayEnd) && (p.RemovedAt == nil || p.RemovedAt.After(dayStart)) {
				counts[p.EquipmentType]++
				total++
			}
		}
		if total > 0 {
			days = append(days, DayActivity{
				Date:   day.Format("2006-01-02"),
				Counts: counts,
				Total:  total,
			})
		}
	}
	return days
}

// TypeSummary 按设备类型的计费汇总
type TypeSummary struct {
	EquipmentType  string `json:"equipment_type"`
	CompletedUnits int    `json:"completed_units"`
	BillingPeriods int    `json:"billing_periods"`
	ActiveUnits    int    `json:"active_units"`
}

// BillingSummary 计费汇总：只累计已撤场区间的计费周期，
// 在场区间不进账但需单列台数提示。
func BillingSummary(placements []entity.EquipmentPlacement, now time.Time) []TypeSummary {
	byType := map[string]*TypeSummary{}
	for _, p := range placements {
		summary, ok := byType[p.EquipmentType]
		if !ok {
			summary = &TypeSummary{EquipmentType: p.EquipmentType}
			byType[p.EquipmentType] = summary
		}
		if p.RemovedAt == nil {
			summary.ActiveUnits++
			continue
		}
		summary.CompletedUnits++
		summary.BillingPeriods += BillingPeriods(p.PlacedAt, p.RemovedAt, now)
	}

	summaries := make([]TypeSummary, 0, len(byType))
	for _, s := range byType {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].EquipmentType < summaries[j].EquipmentType
	})
	return summaries
}

// ============================================================
// 台账操作
// ============================================================

// PlaceRequest 手工投放请求
type PlaceRequest struct {
	RoomID        string    `json:"room_id" binding:"required"`
	EquipmentType string    `json:"equipment_type" binding:"required"`
	Quantity      int       `json:"quantity"`
	PlacedAt      time.Time `json:"placed_at"`
}

// Place 手工投放若干台设备
func (s *EquipmentService) Place(ctx context.Context, logID string, req *PlaceRequest) ([]entity.EquipmentPlacement, error) {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if _, err := s.repos.Structure.FindRoom(ctx, logID, req.RoomID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("room", req.RoomID)
		}
		return nil, fmt.Errorf("find room: %w", err)
	}
	placedAt := req.PlacedAt
	if placedAt.IsZero() {
		placedAt = time.Now()
	}

	placements := make([]entity.EquipmentPlacement, 0, req.Quantity)
	for i := 0; i < req.Quantity; i++ {
		placements = append(placements, entity.EquipmentPlacement{
			ID:            newID(),
			DryingLogID:   logID,
			RoomID:        req.RoomID,
			EquipmentType: req.EquipmentType,
			PlacedAt:      placedAt,
		})
	}
	if err := s.repos.Equipment.CreateBatch(ctx, placements); err != nil {
		return nil, fmt.Errorf("place equipment: %w", err)
	}
	return placements, nil
}

// Remove 撤场单台设备
func (s *EquipmentService) Remove(ctx context.Context, logID, placementID string, removedAt time.Time) (*entity.EquipmentPlacement, error) {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return nil, err
	}
	placement, err := s.repos.Equipment.FindByID(ctx, logID, placementID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("equipment placement", placementID)
		}
		return nil, fmt.Errorf("find placement: %w", err)
	}
	if !placement.Active() {
		return placement, nil
	}
	if removedAt.IsZero() {
		removedAt = time.Now()
	}
	if err := s.repos.Equipment.MarkRemoved(ctx, placement.ID, removedAt); err != nil {
		return nil, fmt.Errorf("mark removed: %w", err)
	}
	placement.RemovedAt = &removedAt
	return placement, nil
}

// Ledger 日志设备台账视图
type Ledger struct {
	Placements    []entity.EquipmentPlacement `json:"placements"`
	DailyActivity []DayActivity               `json:"daily_activity"`
	Summary       []TypeSummary               `json:"summary"`
}

// GetLedger 设备台账：全部区间、日活动表、计费汇总
func (s *EquipmentService) GetLedger(ctx context.Context, logID string) (*Ledger, error) {
	if _, err := s.repos.Log.FindByID(ctx, logID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("drying log", logID)
		}
		return nil, fmt.Errorf("find drying log: %w", err)
	}
	placements, err := s.repos.Equipment.ListByLog(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("list placements: %w", err)
	}
	now := time.Now()
	return &Ledger{
		Placements:    placements,
		DailyActivity: DailyActivity(placements, now),
		Summary:       BillingSummary(placements, now),
	}, nil
}
