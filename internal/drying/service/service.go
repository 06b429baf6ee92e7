package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"

	"github.com/restoros/drylog/internal/config"
	"github.com/restoros/drylog/internal/drying/dryerr"
	"github.com/restoros/drylog/internal/drying/entity"
	"github.com/restoros/drylog/internal/drying/repository"
	"github.com/restoros/drylog/internal/shared/renderer"
)

// Services 服务集合
type Services struct {
	Log        *LogService
	Structure  *StructureService
	Visit      *VisitService
	Equipment  *EquipmentService
	Completion *CompletionService
	Report     *ReportService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, rdb *redis.Client, cfg *config.Config) *Services {
	// 初始化MinIO客户端
	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		var err error
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			minioClient = nil
		}
	}

	// 初始化外部渲染客户端
	var rendererClient *renderer.Client
	if cfg.Renderer.BaseURL != "" {
		rendererClient = renderer.NewClient(cfg.Renderer.BaseURL, cfg.Renderer.Timeout, cfg.Renderer.MaxConcurrent)
	}

	logSvc := NewLogService(repos)
	structureSvc := NewStructureService(repos)
	visitSvc := NewVisitService(repos, rdb)
	equipmentSvc := NewEquipmentService(repos)
	completionSvc := NewCompletionService(repos)
	reportSvc := NewReportService(repos, rendererClient, minioClient, cfg.MinIO.Bucket)

	return &Services{
		Log:        logSvc,
		Structure:  structureSvc,
		Visit:      visitSvc,
		Equipment:  equipmentSvc,
		Completion: completionSvc,
		Report:     reportSvc,
	}
}

// ErrSetupComplete 布置阶段已结束，结构实体不再可改（需先reopen-setup）
var ErrSetupComplete = errors.New("setup is complete, reopen setup to modify structure")

// ErrPointHasReadings 监测点已有读数，禁止物理删除，只能走拆除流程
var ErrPointHasReadings = errors.New("ref point has readings, demolish it instead of deleting")

// newID 生成32位实体ID
func newID() string {
	return uuid.New().String()[:32]
}

// requireUnlocked 每条写路径入口都重查锁标记。锁定违规一律拒绝，绝不静默忽略。
func requireUnlocked(ctx context.Context, repos *repository.Repositories, logID string) (*entity.DryingLog, error) {
	log, err := repos.Log.FindByID(ctx, logID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("drying log", logID)
		}
		return nil, fmt.Errorf("find drying log: %w", err)
	}
	if log.Locked {
		return nil, &dryerr.ImmutableStateError{LogID: logID}
	}
	return log, nil
}

// ============================================================
// 日志快照：完工校验与报告编译共用的只读汇总视图
// ============================================================

// LogSnapshot 单个干燥日志的全量只读快照。
// 校验器与报告编译器都是快照上的纯变换，自身不做任何查询。
type LogSnapshot struct {
	Log          *entity.DryingLog
	Chambers     []entity.Chamber
	Baselines    []entity.Baseline
	Visits       []entity.Visit
	Atmospherics []entity.AtmosphericReading
	Moistures    []entity.MoistureReading
	Placements   []entity.EquipmentPlacement
	Notes        []entity.VisitNote
}

// LoadSnapshot 组装日志快照。锁定后仍可读取（报告可随时重新生成）。
func LoadSnapshot(ctx context.Context, repos *repository.Repositories, logID string) (*LogSnapshot, error) {
	log, err := repos.Log.FindByID(ctx, logID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("drying log", logID)
		}
		return nil, fmt.Errorf("find drying log: %w", err)
	}

	chambers, err := repos.Structure.ListChambers(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("list chambers: %w", err)
	}
	baselines, err := repos.Structure.ListBaselines(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("list baselines: %w", err)
	}
	visits, err := repos.Visit.List(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	atmospherics, err := repos.Visit.ListAtmosphericsByLog(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("list atmospheric readings: %w", err)
	}
	moistures, err := repos.Visit.ListMoisturesByLog(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("list moisture readings: %w", err)
	}
	placements, err := repos.Equipment.ListByLog(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("list equipment placements: %w", err)
	}
	notes, err := repos.Visit.ListNotesByLog(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("list visit notes: %w", err)
	}

	return &LogSnapshot{
		Log:          log,
		Chambers:     chambers,
		Baselines:    baselines,
		Visits:       visits,
		Atmospherics: atmospherics,
		Moistures:    moistures,
		Placements:   placements,
		Notes:        notes,
	}, nil
}

// AllPoints 快照内全部监测点（含已拆除），按房间/序号排列
func (s *LogSnapshot) AllPoints() []entity.ReferencePoint {
	var points []entity.ReferencePoint
	for _, chamber := range s.Chambers {
		for _, room := range chamber.Rooms {
			points = append(points, room.RefPoints...)
		}
	}
	return points
}

// BaselineFor 材料基准值，未定义返回nil
func (s *LogSnapshot) BaselineFor(materialCode string) *float64 {
	for i := range s.Baselines {
		if s.Baselines[i].MaterialCode == materialCode {
			return &s.Baselines[i].BaselineValue
		}
	}
	return nil
}

// VisitNumberOf 巡检ID到序号的映射，未知ID返回0
func (s *LogSnapshot) VisitNumberOf(visitID string) int {
	for i := range s.Visits {
		if s.Visits[i].ID == visitID {
			return s.Visits[i].VisitNumber
		}
	}
	return 0
}

// MoistureFor 指定巡检指定监测点的含水率读数，不存在返回nil
func (s *LogSnapshot) MoistureFor(visitID, pointID string) *entity.MoistureReading {
	for i := range s.Moistures {
		if s.Moistures[i].VisitID == visitID && s.Moistures[i].RefPointID == pointID {
			return &s.Moistures[i]
		}
	}
	return nil
}

// ============================================================
// 日志服务
// ============================================================

// LogService 干燥日志服务
type LogService struct {
	repos *repository.Repositories
}

// NewLogService 创建日志服务
func NewLogService(repos *repository.Repositories) *LogService {
	return &LogService{repos: repos}
}

// CreateLog 为工单创建干燥日志。已存在则直接返回现有日志（每工单唯一）。
func (s *LogService) CreateLog(ctx context.Context, jobID, userID string) (*entity.DryingLog, error) {
	existing, err := s.repos.Log.FindByJobID(ctx, jobID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find drying log by job: %w", err)
	}

	log := &entity.DryingLog{
		ID:        newID(),
		JobID:     jobID,
		Status:    entity.LogStatusActive,
		CreatedBy: userID,
	}
	if err := s.repos.Log.Create(ctx, log); err != nil {
		// 并发创建撞上job_id唯一索引时回查
		if fallback, ferr := s.repos.Log.FindByJobID(ctx, jobID); ferr == nil {
			return fallback, nil
		}
		return nil, fmt.Errorf("create drying log: %w", err)
	}
	return log, nil
}

// GetLog 按ID查日志
func (s *LogService) GetLog(ctx context.Context, logID string) (*entity.DryingLog, error) {
	log, err := s.repos.Log.FindByID(ctx, logID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("drying log", logID)
		}
		return nil, fmt.Errorf("find drying log: %w", err)
	}
	return log, nil
}

// GetLogByJob 按工单ID查日志
func (s *LogService) GetLogByJob(ctx context.Context, jobID string) (*entity.DryingLog, error) {
	log, err := s.repos.Log.FindByJobID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("drying log", "job:"+jobID)
		}
		return nil, fmt.Errorf("find drying log by job: %w", err)
	}
	return log, nil
}

// CompleteSetup 标记布置完成，此后结构实体冻结
func (s *LogService) CompleteSetup(ctx context.Context, logID string) error {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return err
	}
	return s.repos.Log.SetSetupComplete(ctx, logID, true)
}

// ReopenSetup 重新打开布置阶段，恢复结构可改
func (s *LogService) ReopenSetup(ctx context.Context, logID string) error {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return err
	}
	return s.repos.Log.SetSetupComplete(ctx, logID, false)
}

// DraftKey Redis草稿键
func DraftKey(logID string) string {
	return "drying:draft:" + logID
}

// DraftTTL 草稿保留时长
const DraftTTL = 14 * 24 * time.Hour
