package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/restoros/drylog/internal/drying/dryerr"
	"github.com/restoros/drylog/internal/drying/entity"
	"github.com/restoros/drylog/internal/drying/psychro"
	"github.com/restoros/drylog/internal/drying/repository"
)

// VisitService 巡检服务。巡检记录走两阶段：
// 草稿只存Redis，首次保存时才领取序号落库（见SaveVisit）。
type VisitService struct {
	repos *repository.Repositories
	rdb   *redis.Client
}

// NewVisitService 创建巡检服务
func NewVisitService(repos *repository.Repositories, rdb *redis.Client) *VisitService {
	return &VisitService{repos: repos, rdb: rdb}
}

// ============================================================
// 草稿阶段
// ============================================================

// DraftVisit 未落库的巡检草稿。没有序号、没有ID，
// 放弃无内容的草稿时什么都不会留下。
type DraftVisit struct {
	LogID     string             `json:"log_id"`
	VisitedAt *time.Time         `json:"visited_at,omitempty"`
	Readings  json.RawMessage    `json:"readings,omitempty"`
	Equipment []EquipmentDefault `json:"equipment,omitempty"`
	SavedAt   time.Time          `json:"saved_at"`
}

// EquipmentDefault 草稿里的设备数量默认值，按最近在场数量预填。
// 用户未确认的条目保存时不产生任何投放变更。
type EquipmentDefault struct {
	RoomID        string `json:"room_id"`
	EquipmentType string `json:"equipment_type"`
	Quantity      int    `json:"quantity"`
	Confirmed     bool   `json:"confirmed"`
}

// NewDraft 生成新草稿，设备数量按当前在场台数预填
func (s *VisitService) NewDraft(ctx context.Context, logID string) (*DraftVisit, error) {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return nil, err
	}
	active, err := s.repos.Equipment.ListActiveByLog(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("list active equipment: %w", err)
	}

	counts := map[[2]string]int{}
	var order [][2]string
	for _, p := range active {
		key := [2]string{p.RoomID, p.EquipmentType}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	draft := &DraftVisit{LogID: logID, SavedAt: time.Now()}
	for _, key := range order {
		draft.Equipment = append(draft.Equipment, EquipmentDefault{
			RoomID:        key[0],
			EquipmentType: key[1],
			Quantity:      counts[key],
		})
	}
	return draft, nil
}

// SaveDraft 暂存草稿到Redis。放弃有内容的草稿时靠它可续填。
func (s *VisitService) SaveDraft(ctx context.Context, logID string, draft *DraftVisit) error {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return err
	}
	draft.LogID = logID
	draft.SavedAt = time.Now()
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	return s.rdb.Set(ctx, DraftKey(logID), data, DraftTTL).Err()
}

// GetDraft 读取暂存草稿，无草稿返回nil
func (s *VisitService) GetDraft(ctx context.Context, logID string) (*DraftVisit, error) {
	data, err := s.rdb.Get(ctx, DraftKey(logID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get draft: %w", err)
	}
	var draft DraftVisit
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	return &draft, nil
}

// DiscardDraft 丢弃草稿
func (s *VisitService) DiscardDraft(ctx context.Context, logID string) error {
	return s.rdb.Del(ctx, DraftKey(logID)).Err()
}

// ============================================================
// 确认落库阶段
// ============================================================

// AtmosphericInput 温湿度读数输入。GPP由服务端重算，忽略任何传入值。
type AtmosphericInput struct {
	ReadingType string  `json:"reading_type" binding:"required"`
	ChamberID   *string `json:"chamber_id"`
	DehuNumber  *int    `json:"dehu_number"`
	TempF       float64 `json:"temp_f"`
	RHPercent   float64 `json:"rh_percent"`
}

// MoistureInput 含水率读数输入
type MoistureInput struct {
	RefPointID   string  `json:"ref_point_id" binding:"required"`
	ReadingValue float64 `json:"reading_value"`
}

// NoteInput 巡检备注输入
type NoteInput struct {
	Content string   `json:"content"`
	Photos  []string `json:"photos"`
}

// SaveVisitRequest 保存巡检请求（确认创建+落库一步完成）
type SaveVisitRequest struct {
	VisitedAt    time.Time          `json:"visited_at" binding:"required"`
	Atmospherics []AtmosphericInput `json:"atmospherics"`
	Moistures    []MoistureInput    `json:"moistures"`
	Equipment    []EquipmentDefault `json:"equipment"`
	Note         *NoteInput         `json:"note"`
}

// SaveVisit 保存巡检。读数先校验再领号，未知监测点或范围外读数
// 不消耗巡检序号；落库在单个事务内完成，失败整体回滚不留半截巡检。
// 序号经计数器原子领取；唯一索引兜底，撞上时整个事务重试一次，
// 再失败报SequenceConflictError。成功后清掉Redis草稿。
func (s *VisitService) SaveVisit(ctx context.Context, logID, userID string, req *SaveVisitRequest) (*entity.Visit, error) {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return nil, err
	}

	// 先算GPP，物理范围错误在落库前拦下
	atmospherics := make([]entity.AtmosphericReading, 0, len(req.Atmospherics))
	for _, in := range req.Atmospherics {
		gpp, err := psychro.GPP(in.TempF, in.RHPercent)
		if err != nil {
			return nil, err
		}
		atmospherics = append(atmospherics, entity.AtmosphericReading{
			ID:          newID(),
			ReadingType: in.ReadingType,
			ChamberID:   in.ChamberID,
			DehuNumber:  in.DehuNumber,
			TempF:       in.TempF,
			RHPercent:   in.RHPercent,
			GPP:         gpp,
		})
	}

	// 监测点归属同样在领号前校验
	for _, in := range req.Moistures {
		if _, err := s.repos.Structure.FindRefPoint(ctx, logID, in.RefPointID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, dryerr.NewNotFound("ref point", in.RefPointID)
			}
			return nil, fmt.Errorf("find ref point: %w", err)
		}
	}

	var visit *entity.Visit
	for attempt := 0; attempt < 2; attempt++ {
		v := &entity.Visit{
			ID:        newID(),
			LogID:     logID,
			VisitedAt: req.VisitedAt,
			CreatedBy: userID,
		}
		err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			number, err := tx.Log.ClaimVisitNumber(ctx, logID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return dryerr.NewNotFound("drying log", logID)
				}
				return fmt.Errorf("claim visit number: %w", err)
			}
			v.VisitNumber = number
			if err := tx.Visit.Create(ctx, v); err != nil {
				return fmt.Errorf("create visit: %w", err)
			}

			for i := range atmospherics {
				atmospherics[i].VisitID = v.ID
			}
			if err := tx.Visit.CreateAtmospherics(ctx, atmospherics); err != nil {
				return fmt.Errorf("create atmospheric readings: %w", err)
			}

			moistures := make([]entity.MoistureReading, 0, len(req.Moistures))
			for _, in := range req.Moistures {
				moistures = append(moistures, entity.MoistureReading{
					ID:           newID(),
					VisitID:      v.ID,
					RefPointID:   in.RefPointID,
					ReadingValue: in.ReadingValue,
				})
			}
			if err := tx.Visit.CreateMoistures(ctx, moistures); err != nil {
				return fmt.Errorf("create moisture readings: %w", err)
			}

			if err := s.applyEquipmentDeltas(ctx, tx, logID, req.Equipment, req.VisitedAt); err != nil {
				return err
			}

			if req.Note != nil && req.Note.Content != "" {
				note := &entity.VisitNote{
					ID:        newID(),
					VisitID:   v.ID,
					Content:   req.Note.Content,
					Photos:    req.Note.Photos,
					CreatedBy: userID,
				}
				if err := tx.Visit.CreateNote(ctx, note); err != nil {
					return fmt.Errorf("create visit note: %w", err)
				}
			}
			return nil
		})
		if err == nil {
			visit = v
			break
		}
		if !repository.IsDuplicateNumberError(err) {
			return nil, err
		}
	}
	if visit == nil {
		return nil, &dryerr.SequenceConflictError{LogID: logID}
	}

	// 草稿清理失败不影响已落库的巡检
	if s.rdb != nil {
		_ = s.rdb.Del(ctx, DraftKey(logID)).Err()
	}

	return visit, nil
}

// createVisit 领号落库，索引冲突重试一次
func (s *VisitService) createVisit(ctx context.Context, logID, userID string, visitedAt time.Time) (*entity.Visit, error) {
	for attempt := 0; attempt < 2; attempt++ {
		number, err := s.repos.Log.ClaimVisitNumber(ctx, logID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, dryerr.NewNotFound("drying log", logID)
			}
			return nil, fmt.Errorf("claim visit number: %w", err)
		}
		visit := &entity.Visit{
			ID:          newID(),
			LogID:       logID,
			VisitNumber: number,
			VisitedAt:   visitedAt,
			CreatedBy:   userID,
		}
		err = s.repos.Visit.Create(ctx, visit)
		if err == nil {
			return visit, nil
		}
		if !repository.IsDuplicateNumberError(err) {
			return nil, fmt.Errorf("create visit: %w", err)
		}
	}
	return nil, &dryerr.SequenceConflictError{LogID: logID}
}

// applyEquipmentDeltas 按确认数量与当前在场台数的差量增减投放。
// 未确认的条目不产生任何行：未改动的数量靠原有区间隐式延续。
// 与巡检落库同一事务，repos为事务绑定的仓库集合。
func (s *VisitService) applyEquipmentDeltas(ctx context.Context, repos *repository.Repositories, logID string, entries []EquipmentDefault, at time.Time) error {
	for _, entry := range entries {
		if !entry.Confirmed {
			continue
		}
		if entry.Quantity < 0 {
			return &dryerr.CalculationDomainError{Field: "equipment_quantity", Value: float64(entry.Quantity)}
		}
		if _, err := repos.Structure.FindRoom(ctx, logID, entry.RoomID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return dryerr.NewNotFound("room", entry.RoomID)
			}
			return fmt.Errorf("find room: %w", err)
		}

		active, err := repos.Equipment.ListActiveByRoom(ctx, entry.RoomID)
		if err != nil {
			return fmt.Errorf("list active equipment: %w", err)
		}
		current := 0
		for _, p := range active {
			if p.EquipmentType == entry.EquipmentType {
				current++
			}
		}

		switch {
		case entry.Quantity > current:
			placements := make([]entity.EquipmentPlacement, 0, entry.Quantity-current)
			for i := 0; i < entry.Quantity-current; i++ {
				placements = append(placements, entity.EquipmentPlacement{
					ID:            newID(),
					DryingLogID:   logID,
					RoomID:        entry.RoomID,
					EquipmentType: entry.EquipmentType,
					PlacedAt:      at,
				})
			}
			if err := repos.Equipment.CreateBatch(ctx, placements); err != nil {
				return fmt.Errorf("place equipment: %w", err)
			}
		case entry.Quantity < current:
			if err := repos.Equipment.RemoveNewestActive(ctx, entry.RoomID, entry.EquipmentType, current-entry.Quantity, at); err != nil {
				return fmt.Errorf("remove equipment: %w", err)
			}
		}
	}
	return nil
}

// ============================================================
// 读取与修改
// ============================================================

// ListVisits 按序号列出巡检
func (s *VisitService) ListVisits(ctx context.Context, logID string) ([]entity.Visit, error) {
	if _, err := s.repos.Log.FindByID(ctx, logID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("drying log", logID)
		}
		return nil, fmt.Errorf("find drying log: %w", err)
	}
	return s.repos.Visit.List(ctx, logID)
}

// AtmosphericWithDelta 温湿度读数附上一次巡检同键位对比
type AtmosphericWithDelta struct {
	entity.AtmosphericReading
	PriorGPP *float64 `json:"prior_gpp"`
	DeltaGPP *float64 `json:"delta_gpp"`
}

// MoistureWithStatus 含水率读数附干燥判定
type MoistureWithStatus struct {
	entity.MoistureReading
	RefNumber    int      `json:"ref_number"`
	MaterialCode string   `json:"material_code"`
	Baseline     *float64 `json:"baseline"`
	Status       string   `json:"status"`
}

// VisitDetail 巡检详情（含与上一次巡检的对比载荷）
type VisitDetail struct {
	Visit        *entity.Visit          `json:"visit"`
	PriorVisit   *entity.Visit          `json:"prior_visit"`
	Atmospherics []AtmosphericWithDelta `json:"atmospherics"`
	Moistures    []MoistureWithStatus   `json:"moistures"`
	Notes        []entity.VisitNote     `json:"notes"`
}

// 监测点判定状态
const (
	PointStatusDry           = "dry"
	PointStatusWet           = "wet"
	PointStatusIndeterminate = "indeterminate"
	PointStatusDemolished    = "demolished"
)

// EvaluateDryStatus 干燥标准判定：读数 ≤ 基准值+余量 为已干。
// 无基准值时判定不出干湿，返回indeterminate，绝不折算成wet。
func EvaluateDryStatus(readingValue float64, baseline *float64) string {
	if baseline == nil {
		return PointStatusIndeterminate
	}
	if readingValue <= *baseline+entity.DryStandardMargin {
		return PointStatusDry
	}
	return PointStatusWet
}

// readingKey 温湿度读数对比键：(类型, 分区, 除湿机序号)
func readingKey(readingType string, chamberID *string, dehuNumber *int) string {
	key := readingType
	if chamberID != nil {
		key += "|" + *chamberID
	} else {
		key += "|"
	}
	if dehuNumber != nil {
		key += fmt.Sprintf("|%d", *dehuNumber)
	} else {
		key += "|"
	}
	return key
}

// GetVisitDetail 巡检详情。温湿度读数对比上一次巡检（按序号，不按日历时间）；
// 含水率读数带干燥判定。
func (s *VisitService) GetVisitDetail(ctx context.Context, logID, visitID string) (*VisitDetail, error) {
	visit, err := s.repos.Visit.FindByID(ctx, logID, visitID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("visit", visitID)
		}
		return nil, fmt.Errorf("find visit: %w", err)
	}

	prior, err := s.repos.Visit.FindPrior(ctx, logID, visit.VisitNumber)
	if err != nil {
		return nil, fmt.Errorf("find prior visit: %w", err)
	}

	priorGPP := map[string]float64{}
	if prior != nil {
		priorReadings, err := s.repos.Visit.ListAtmosphericsByVisit(ctx, prior.ID)
		if err != nil {
			return nil, fmt.Errorf("list prior atmospherics: %w", err)
		}
		for _, r := range priorReadings {
			priorGPP[readingKey(r.ReadingType, r.ChamberID, r.DehuNumber)] = r.GPP
		}
	}

	atmospherics, err := s.repos.Visit.ListAtmosphericsByVisit(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("list atmospherics: %w", err)
	}
	withDelta := make([]AtmosphericWithDelta, 0, len(atmospherics))
	for _, r := range atmospherics {
		var priorPtr *float64
		if v, ok := priorGPP[readingKey(r.ReadingType, r.ChamberID, r.DehuNumber)]; ok {
			priorPtr = &v
		}
		withDelta = append(withDelta, AtmosphericWithDelta{
			AtmosphericReading: r,
			PriorGPP:           priorPtr,
			DeltaGPP:           psychro.Delta(r.GPP, priorPtr),
		})
	}

	baselines, err := s.repos.Structure.ListBaselines(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("list baselines: %w", err)
	}
	baselineByMaterial := map[string]float64{}
	for _, b := range baselines {
		baselineByMaterial[b.MaterialCode] = b.BaselineValue
	}
	points, err := s.repos.Structure.ListRefPoints(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("list ref points: %w", err)
	}
	pointByID := map[string]entity.ReferencePoint{}
	for _, p := range points {
		pointByID[p.ID] = p
	}

	moistures, err := s.repos.Visit.ListMoisturesByVisit(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("list moistures: %w", err)
	}
	withStatus := make([]MoistureWithStatus, 0, len(moistures))
	for _, m := range moistures {
		point, ok := pointByID[m.RefPointID]
		entry := MoistureWithStatus{MoistureReading: m}
		if ok {
			entry.RefNumber = point.RefNumber
			entry.MaterialCode = point.MaterialCode
			if v, has := baselineByMaterial[point.MaterialCode]; has {
				entry.Baseline = &v
			}
		}
		entry.Status = EvaluateDryStatus(m.ReadingValue, entry.Baseline)
		withStatus = append(withStatus, entry)
	}

	notes, err := s.repos.Visit.ListNotesByVisit(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("list visit notes: %w", err)
	}

	return &VisitDetail{
		Visit:        visit,
		PriorVisit:   prior,
		Atmospherics: withDelta,
		Moistures:    withStatus,
		Notes:        notes,
	}, nil
}

// UpdateVisitedAt 修改巡检时间（可回填）。锁定前随时允许，
// 不改序号、不动读数关联。
func (s *VisitService) UpdateVisitedAt(ctx context.Context, logID, visitID string, visitedAt time.Time) (*entity.Visit, error) {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return nil, err
	}
	visit, err := s.repos.Visit.FindByID(ctx, logID, visitID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("visit", visitID)
		}
		return nil, fmt.Errorf("find visit: %w", err)
	}
	if err := s.repos.Visit.UpdateVisitedAt(ctx, visit.ID, visitedAt); err != nil {
		return nil, fmt.Errorf("update visited_at: %w", err)
	}
	visit.VisitedAt = visitedAt
	return visit, nil
}

// AddNote 给已落库的巡检补挂备注
func (s *VisitService) AddNote(ctx context.Context, logID, visitID, userID string, in *NoteInput) (*entity.VisitNote, error) {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return nil, err
	}
	visit, err := s.repos.Visit.FindByID(ctx, logID, visitID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("visit", visitID)
		}
		return nil, fmt.Errorf("find visit: %w", err)
	}
	note := &entity.VisitNote{
		ID:        newID(),
		VisitID:   visit.ID,
		Content:   in.Content,
		Photos:    in.Photos,
		CreatedBy: userID,
	}
	if err := s.repos.Visit.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("create visit note: %w", err)
	}
	return note, nil
}

// ============================================================
// 拆除子流程
// ============================================================

// DemolishRequest 拆除请求。VisitID为空表示当前还没有本次巡检，
// 先按确认创建流程补建一条再挂拆除标记。
type DemolishRequest struct {
	VisitID   string    `json:"visit_id"`
	VisitedAt time.Time `json:"visited_at"`
}

// Demolish 标记监测点拆除，拆除巡检记的是"哪一次巡检"而不只是时间，
// 历史视图按此裁剪（见VisibleAsOf）。
func (s *VisitService) Demolish(ctx context.Context, logID, pointID, userID string, req *DemolishRequest) (*entity.ReferencePoint, *entity.Visit, error) {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return nil, nil, err
	}
	point, err := s.repos.Structure.FindRefPoint(ctx, logID, pointID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, dryerr.NewNotFound("ref point", pointID)
		}
		return nil, nil, fmt.Errorf("find ref point: %w", err)
	}

	var visit *entity.Visit
	if req.VisitID != "" {
		visit, err = s.repos.Visit.FindByID(ctx, logID, req.VisitID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil, dryerr.NewNotFound("visit", req.VisitID)
			}
			return nil, nil, fmt.Errorf("find visit: %w", err)
		}
	} else {
		visitedAt := req.VisitedAt
		if visitedAt.IsZero() {
			visitedAt = time.Now()
		}
		visit, err = s.createVisit(ctx, logID, userID, visitedAt)
		if err != nil {
			return nil, nil, err
		}
	}

	demolishedAt := visit.VisitedAt
	if err := s.repos.Structure.SetDemolished(ctx, point.ID, &demolishedAt, &visit.ID); err != nil {
		return nil, nil, fmt.Errorf("set demolished: %w", err)
	}
	point.DemolishedAt = &demolishedAt
	point.DemolishedVisitID = &visit.ID
	return point, visit, nil
}

// UndoDemolish 撤销拆除，无条件清空两个字段（不保留按巡检的撤销历史）
func (s *VisitService) UndoDemolish(ctx context.Context, logID, pointID string) (*entity.ReferencePoint, error) {
	if _, err := requireUnlocked(ctx, s.repos, logID); err != nil {
		return nil, err
	}
	point, err := s.repos.Structure.FindRefPoint(ctx, logID, pointID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("ref point", pointID)
		}
		return nil, fmt.Errorf("find ref point: %w", err)
	}
	if err := s.repos.Structure.SetDemolished(ctx, point.ID, nil, nil); err != nil {
		return nil, fmt.Errorf("clear demolished: %w", err)
	}
	point.DemolishedAt = nil
	point.DemolishedVisitID = nil
	return point, nil
}

// VisibleAsOf 双时态可见性：对序号为viewVisitNumber的巡检视图，
// 监测点只有在拆除巡检序号 ≤ 视图序号时才算已拆除。
// demolishedVisitNumber=0表示拆除巡检未知（按未拆除处理）。
func VisibleAsOf(point *entity.ReferencePoint, demolishedVisitNumber, viewVisitNumber int) bool {
	if point.DemolishedVisitID == nil {
		return true
	}
	if demolishedVisitNumber == 0 {
		return true
	}
	return demolishedVisitNumber > viewVisitNumber
}
