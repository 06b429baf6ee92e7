package handler

import (
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/restoros/drylog/internal/drying/service"
)

// VisitHandler 巡检处理器
type VisitHandler struct {
	svc *service.VisitService
}

// NewVisitHandler 创建巡检处理器
func NewVisitHandler(svc *service.VisitService) *VisitHandler {
	return &VisitHandler{svc: svc}
}

// GetDraft GET /drying-logs/:id/visits/draft
// 有暂存草稿返回草稿；没有则按在场设备预填一份新草稿。
func (h *VisitHandler) GetDraft(c *gin.Context) {
	logID := c.Param("id")
	draft, err := h.svc.GetDraft(c.Request.Context(), logID)
	if err != nil {
		RespondError(c, err)
		return
	}
	if draft == nil {
		draft, err = h.svc.NewDraft(c.Request.Context(), logID)
		if err != nil {
			RespondError(c, err)
			return
		}
	}
	Success(c, draft)
}

// SaveDraft PUT /drying-logs/:id/visits/draft
func (h *VisitHandler) SaveDraft(c *gin.Context) {
	var draft service.DraftVisit
	if err := c.ShouldBindJSON(&draft); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.svc.SaveDraft(c.Request.Context(), c.Param("id"), &draft); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, draft)
}

// DiscardDraft DELETE /drying-logs/:id/visits/draft
func (h *VisitHandler) DiscardDraft(c *gin.Context) {
	if err := h.svc.DiscardDraft(c.Request.Context(), c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, nil)
}

// Save POST /drying-logs/:id/visits
// 确认创建：此时才领取巡检序号落库
func (h *VisitHandler) Save(c *gin.Context) {
	var req service.SaveVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	visit, err := h.svc.SaveVisit(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, visit)
}

// List GET /drying-logs/:id/visits
func (h *VisitHandler) List(c *gin.Context) {
	visits, err := h.svc.ListVisits(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, visits)
}

// Get GET /drying-logs/:id/visits/:visitId
func (h *VisitHandler) Get(c *gin.Context) {
	detail, err := h.svc.GetVisitDetail(c.Request.Context(), c.Param("id"), c.Param("visitId"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, detail)
}

// UpdateVisitedAtRequest 修改巡检时间请求
type UpdateVisitedAtRequest struct {
	VisitedAt time.Time `json:"visited_at" binding:"required"`
}

// UpdateVisitedAt PATCH /drying-logs/:id/visits/:visitId
func (h *VisitHandler) UpdateVisitedAt(c *gin.Context) {
	var req UpdateVisitedAtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	visit, err := h.svc.UpdateVisitedAt(c.Request.Context(), c.Param("id"), c.Param("visitId"), req.VisitedAt)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, visit)
}

// AddNoteRequest 补挂备注请求
type AddNoteRequest struct {
	Content string   `json:"content" binding:"required"`
	Photos  []string `json:"photos"`
}

// AddNote POST /drying-logs/:id/visits/:visitId/notes
func (h *VisitHandler) AddNote(c *gin.Context) {
	var req AddNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	note, err := h.svc.AddNote(c.Request.Context(), c.Param("id"), c.Param("visitId"), GetUserID(c),
		&service.NoteInput{Content: req.Content, Photos: req.Photos})
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, note)
}

// Demolish POST /drying-logs/:id/ref-points/:pointId/demolish
// 字段全部可选，空请求体等同"现在拆除、补建巡检"
func (h *VisitHandler) Demolish(c *gin.Context) {
	var req service.DemolishRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	point, visit, err := h.svc.Demolish(c.Request.Context(), c.Param("id"), c.Param("pointId"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"point": point, "visit": visit})
}

// UndoDemolish POST /drying-logs/:id/ref-points/:pointId/undo-demolish
func (h *VisitHandler) UndoDemolish(c *gin.Context) {
	point, err := h.svc.UndoDemolish(c.Request.Context(), c.Param("id"), c.Param("pointId"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, point)
}
