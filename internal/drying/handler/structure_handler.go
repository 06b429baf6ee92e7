package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/restoros/drylog/internal/drying/service"
)

// StructureHandler 物理结构处理器
type StructureHandler struct {
	svc *service.StructureService
}

// NewStructureHandler 创建结构处理器
func NewStructureHandler(svc *service.StructureService) *StructureHandler {
	return &StructureHandler{svc: svc}
}

// CreateChamber POST /drying-logs/:id/chambers
func (h *StructureHandler) CreateChamber(c *gin.Context) {
	var req service.CreateChamberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	chamber, err := h.svc.CreateChamber(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, chamber)
}

// UpdateChamber PUT /drying-logs/:id/chambers/:chamberId
func (h *StructureHandler) UpdateChamber(c *gin.Context) {
	var req service.CreateChamberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	chamber, err := h.svc.UpdateChamber(c.Request.Context(), c.Param("id"), c.Param("chamberId"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, chamber)
}

// ListChambers GET /drying-logs/:id/chambers
func (h *StructureHandler) ListChambers(c *gin.Context) {
	chambers, err := h.svc.ListChambers(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, chambers)
}

// CreateRoom POST /drying-logs/:id/rooms
func (h *StructureHandler) CreateRoom(c *gin.Context) {
	var req service.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	room, err := h.svc.CreateRoom(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, room)
}

// UpdateRoomRequest 更新房间请求
type UpdateRoomRequest struct {
	Name     string `json:"name" binding:"required"`
	Position int    `json:"position"`
}

// UpdateRoom PUT /drying-logs/:id/rooms/:roomId
func (h *StructureHandler) UpdateRoom(c *gin.Context) {
	var req UpdateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	room, err := h.svc.UpdateRoom(c.Request.Context(), c.Param("id"), c.Param("roomId"), req.Name, req.Position)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, room)
}

// CreateRefPoint POST /drying-logs/:id/ref-points
func (h *StructureHandler) CreateRefPoint(c *gin.Context) {
	var req service.CreateRefPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	point, err := h.svc.CreateRefPoint(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, point)
}

// ListRefPoints GET /drying-logs/:id/ref-points
func (h *StructureHandler) ListRefPoints(c *gin.Context) {
	points, err := h.svc.ListRefPoints(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, points)
}

// DeleteRefPoint DELETE /drying-logs/:id/ref-points/:pointId
func (h *StructureHandler) DeleteRefPoint(c *gin.Context) {
	if err := h.svc.DeleteRefPoint(c.Request.Context(), c.Param("id"), c.Param("pointId")); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, nil)
}

// UpsertBaseline PUT /drying-logs/:id/baselines
func (h *StructureHandler) UpsertBaseline(c *gin.Context) {
	var req service.UpsertBaselineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	baseline, err := h.svc.UpsertBaseline(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, baseline)
}

// ListBaselines GET /drying-logs/:id/baselines
func (h *StructureHandler) ListBaselines(c *gin.Context) {
	baselines, err := h.svc.ListBaselines(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, baselines)
}
