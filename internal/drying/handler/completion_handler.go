package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/restoros/drylog/internal/drying/service"
)

// CompletionHandler 完工校验处理器
type CompletionHandler struct {
	svc *service.CompletionService
}

// NewCompletionHandler 创建完工处理器
func NewCompletionHandler(svc *service.CompletionService) *CompletionHandler {
	return &CompletionHandler{svc: svc}
}

// Status GET /drying-logs/:id/completion
func (h *CompletionHandler) Status(c *gin.Context) {
	categories, err := h.svc.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	allPassed := true
	for _, cat := range categories {
		if !cat.Passed {
			allPassed = false
			break
		}
	}
	Success(c, gin.H{"categories": categories, "all_passed": allPassed})
}

// Complete POST /drying-logs/:id/complete
// 任一分项不通过返回40902并携带完整清单
func (h *CompletionHandler) Complete(c *gin.Context) {
	log, err := h.svc.Complete(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, log)
}

// Reopen POST /drying-logs/:id/reopen
// 路由层已挂mitigation_admin角色校验
func (h *CompletionHandler) Reopen(c *gin.Context) {
	log, err := h.svc.Reopen(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, log)
}
