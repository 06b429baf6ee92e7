package handler

import (
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/restoros/drylog/internal/drying/service"
)

// EquipmentHandler 设备台账处理器
type EquipmentHandler struct {
	svc *service.EquipmentService
}

// NewEquipmentHandler 创建设备处理器
func NewEquipmentHandler(svc *service.EquipmentService) *EquipmentHandler {
	return &EquipmentHandler{svc: svc}
}

// Place POST /drying-logs/:id/equipment
func (h *EquipmentHandler) Place(c *gin.Context) {
	var req service.PlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	placements, err := h.svc.Place(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, placements)
}

// RemoveRequest 撤场请求
type RemoveRequest struct {
	RemovedAt time.Time `json:"removed_at"`
}

// Remove POST /drying-logs/:id/equipment/:placementId/remove
// 空请求体等同"现在撤场"
func (h *EquipmentHandler) Remove(c *gin.Context) {
	var req RemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	placement, err := h.svc.Remove(c.Request.Context(), c.Param("id"), c.Param("placementId"), req.RemovedAt)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, placement)
}

// Ledger GET /drying-logs/:id/equipment
func (h *EquipmentHandler) Ledger(c *gin.Context) {
	ledger, err := h.svc.GetLedger(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ledger)
}

// DailyActivityView GET /drying-logs/:id/equipment/daily-activity
func (h *EquipmentHandler) DailyActivityView(c *gin.Context) {
	ledger, err := h.svc.GetLedger(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ledger.DailyActivity)
}

// BillingSummaryView GET /drying-logs/:id/equipment/billing-summary
func (h *EquipmentHandler) BillingSummaryView(c *gin.Context) {
	ledger, err := h.svc.GetLedger(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ledger.Summary)
}
