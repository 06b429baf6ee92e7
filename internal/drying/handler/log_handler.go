package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/restoros/drylog/internal/drying/service"
)

// LogHandler 干燥日志处理器
type LogHandler struct {
	svc *service.LogService
}

// NewLogHandler 创建日志处理器
func NewLogHandler(svc *service.LogService) *LogHandler {
	return &LogHandler{svc: svc}
}

// CreateLogRequest 创建日志请求
type CreateLogRequest struct {
	JobID string `json:"job_id" binding:"required"`
}

// Create POST /drying-logs
func (h *LogHandler) Create(c *gin.Context) {
	var req CreateLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	log, err := h.svc.CreateLog(c.Request.Context(), req.JobID, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, log)
}

// Get GET /drying-logs/:id
func (h *LogHandler) Get(c *gin.Context) {
	log, err := h.svc.GetLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, log)
}

// GetByJob GET /jobs/:jobId/drying-log
func (h *LogHandler) GetByJob(c *gin.Context) {
	log, err := h.svc.GetLogByJob(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, log)
}

// CompleteSetup POST /drying-logs/:id/setup/complete
func (h *LogHandler) CompleteSetup(c *gin.Context) {
	if err := h.svc.CompleteSetup(c.Request.Context(), c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"setup_complete": true})
}

// ReopenSetup POST /drying-logs/:id/setup/reopen
func (h *LogHandler) ReopenSetup(c *gin.Context) {
	if err := h.svc.ReopenSetup(c.Request.Context(), c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"setup_complete": false})
}
