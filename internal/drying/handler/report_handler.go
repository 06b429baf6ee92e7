package handler

import (
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/restoros/drylog/internal/drying/service"
)

// ReportHandler 报告处理器
type ReportHandler struct {
	svc *service.ReportService
}

// NewReportHandler 创建报告处理器
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// Generate POST /drying-logs/:id/reports
func (h *ReportHandler) Generate(c *gin.Context) {
	report, err := h.svc.Generate(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, report)
}

// List GET /drying-logs/:id/reports
func (h *ReportHandler) List(c *gin.Context) {
	reports, err := h.svc.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, reports)
}

// Download GET /drying-logs/:id/reports/:reportId/download
// 下载链接支持query参数token（见JWT中间件）
func (h *ReportHandler) Download(c *gin.Context) {
	report, object, err := h.svc.Download(c.Request.Context(), c.Param("id"), c.Param("reportId"))
	if err != nil {
		RespondError(c, err)
		return
	}
	defer object.Close()

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.Filename))
	c.Header("Content-Type", "application/pdf")
	if report.FileSize > 0 {
		c.Header("Content-Length", fmt.Sprintf("%d", report.FileSize))
	}
	if _, err := io.Copy(c.Writer, object); err != nil {
		// 响应已开始写，只能中断连接
		c.Abort()
	}
}

// ExportExcel GET /drying-logs/:id/export/excel
func (h *ReportHandler) ExportExcel(c *gin.Context) {
	data, filename, err := h.svc.ExportExcel(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(200, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
