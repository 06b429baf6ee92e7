package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/restoros/drylog/internal/drying/dryerr"
	"github.com/restoros/drylog/internal/drying/entity"
	"github.com/restoros/drylog/internal/drying/repository"
)

// CompletionService 完工校验与锁定。校验本身是快照上的纯函数，
// 锁定是要么全锁要么不锁，不存在部分锁定态。
type CompletionService struct {
	repos *repository.Repositories
}

// NewCompletionService 创建完工服务
func NewCompletionService(repos *repository.Repositories) *CompletionService {
	return &CompletionService{repos: repos}
}

// 完工校验分项
const (
	CategorySetupComplete    = "setup_complete"
	CategoryVisitsRecorded   = "visits_recorded"
	CategoryBaselinesDefined = "baselines_defined"
	CategoryPointsDry        = "points_dry"
	CategoryEquipmentRemoved = "equipment_removed"
)

// Evaluate 完工校验，逐项返回通过/不通过与明细。
// 零巡检、零读数不会崩：监测点保持indeterminate并导致分项不通过。
func Evaluate(snap *LogSnapshot) []dryerr.CategoryResult {
	return []dryerr.CategoryResult{
		checkSetupComplete(snap),
		checkVisitsRecorded(snap),
		checkBaselinesDefined(snap),
		checkPointsDry(snap),
		checkEquipmentRemoved(snap),
	}
}

func checkSetupComplete(snap *LogSnapshot) dryerr.CategoryResult {
	result := dryerr.CategoryResult{
		Key:    CategorySetupComplete,
		Label:  "现场布置已完成",
		Passed: snap.Log.SetupComplete,
	}
	if !result.Passed {
		result.Details = "布置阶段尚未标记完成"
	}
	return result
}

func checkVisitsRecorded(snap *LogSnapshot) dryerr.CategoryResult {
	result := dryerr.CategoryResult{
		Key:    CategoryVisitsRecorded,
		Label:  "已记录现场巡检",
		Passed: len(snap.Visits) > 0,
	}
	if result.Passed {
		result.Details = fmt.Sprintf("共%d次巡检", len(snap.Visits))
	} else {
		result.Details = "尚无任何巡检记录"
	}
	return result
}

func checkBaselinesDefined(snap *LogSnapshot) dryerr.CategoryResult {
	missing := map[string]bool{}
	for _, point := range snap.AllPoints() {
		if point.DemolishedVisitID != nil {
			continue
		}
		if snap.BaselineFor(point.MaterialCode) == nil {
			missing[point.MaterialCode] = true
		}
	}
	result := dryerr.CategoryResult{
		Key:    CategoryBaselinesDefined,
		Label:  "在用材料均有干燥基准值",
		Passed: len(missing) == 0,
	}
	if !result.Passed {
		codes := make([]string, 0, len(missing))
		for code := range missing {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		result.Details = "缺少基准值的材料: " + strings.Join(codes, ", ")
	}
	return result
}

// checkPointsDry 未拆除监测点以最近一次读数判定。
// 无读数或无基准值（indeterminate）都算未通过，但明细区分两种情况。
func checkPointsDry(snap *LogSnapshot) dryerr.CategoryResult {
	var wet, noReading, indeterminate []string

	for _, point := range snap.AllPoints() {
		if point.DemolishedVisitID != nil {
			continue
		}
		latest := latestReadingFor(snap, point.ID)
		name := fmt.Sprintf("#%d", point.RefNumber)
		if point.Label != "" {
			name = fmt.Sprintf("#%d %s", point.RefNumber, point.Label)
		}
		if latest == nil {
			noReading = append(noReading, name)
			continue
		}
		switch EvaluateDryStatus(latest.ReadingValue, snap.BaselineFor(point.MaterialCode)) {
		case PointStatusWet:
			wet = append(wet, name)
		case PointStatusIndeterminate:
			indeterminate = append(indeterminate, name)
		}
	}

	result := dryerr.CategoryResult{
		Key:    CategoryPointsDry,
		Label:  "在用监测点全部达到干燥标准",
		Passed: len(wet) == 0 && len(noReading) == 0 && len(indeterminate) == 0,
	}
	if !result.Passed {
		var parts []string
		if len(wet) > 0 {
			parts = append(parts, "未达标: "+strings.Join(wet, ", "))
		}
		if len(noReading) > 0 {
			parts = append(parts, "无读数: "+strings.Join(noReading, ", "))
		}
		if len(indeterminate) > 0 {
			parts = append(parts, "无基准值无法判定: "+strings.Join(indeterminate, ", "))
		}
		result.Details = strings.Join(parts, "; ")
	}
	return result
}

func checkEquipmentRemoved(snap *LogSnapshot) dryerr.CategoryResult {
	active := 0
	for _, p := range snap.Placements {
		if p.Active() {
			active++
		}
	}
	result := dryerr.CategoryResult{
		Key:    CategoryEquipmentRemoved,
		Label:  "设备已全部撤场",
		Passed: active == 0,
	}
	if !result.Passed {
		result.Details = fmt.Sprintf("仍有%d台设备在场", active)
	}
	return result
}

// latestReadingFor 监测点最近一次读数（按巡检序号，快照内巡检已升序）
func latestReadingFor(snap *LogSnapshot, pointID string) *entity.MoistureReading {
	var latest *entity.MoistureReading
	latestNumber := 0
	for i := range snap.Moistures {
		m := &snap.Moistures[i]
		if m.RefPointID != pointID {
			continue
		}
		if number := snap.VisitNumberOf(m.VisitID); number >= latestNumber {
			latest = m
			latestNumber = number
		}
	}
	return latest
}

// Status 当前完工校验结果
func (s *CompletionService) Status(ctx context.Context, logID string) ([]dryerr.CategoryResult, error) {
	snap, err := LoadSnapshot(ctx, s.repos, logID)
	if err != nil {
		return nil, err
	}
	return Evaluate(snap), nil
}

// Complete 锁定日志。任一分项不通过即拒绝，并携带完整分项清单；
// 全部通过才落锁，锁定后一切子实体写入都报ImmutableStateError。
func (s *CompletionService) Complete(ctx context.Context, logID, userID string) (*entity.DryingLog, error) {
	snap, err := LoadSnapshot(ctx, s.repos, logID)
	if err != nil {
		return nil, err
	}
	if snap.Log.Locked {
		return nil, &dryerr.ImmutableStateError{LogID: logID}
	}

	categories := Evaluate(snap)
	for _, c := range categories {
		if !c.Passed {
			return nil, &dryerr.ValidationIncompleteError{Categories: categories}
		}
	}

	locked, err := s.repos.Log.Lock(ctx, logID, userID)
	if err != nil {
		return nil, fmt.Errorf("lock drying log: %w", err)
	}
	if !locked {
		// 并发完成：锁已被别的请求拿走
		return nil, &dryerr.ImmutableStateError{LogID: logID}
	}
	return s.repos.Log.FindByID(ctx, logID)
}

// Reopen 特权解锁。不重放、不重新校验，只恢复可变性；
// 权限控制在路由层（mitigation_admin角色）。
func (s *CompletionService) Reopen(ctx context.Context, logID string) (*entity.DryingLog, error) {
	log, err := s.repos.Log.FindByID(ctx, logID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("drying log", logID)
		}
		return nil, fmt.Errorf("find drying log: %w", err)
	}
	if !log.Locked {
		return log, nil
	}
	if err := s.repos.Log.Reopen(ctx, logID); err != nil {
		return nil, fmt.Errorf("reopen drying log: %w", err)
	}
	return s.repos.Log.FindByID(ctx, logID)
}
