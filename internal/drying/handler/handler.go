package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/restoros/drylog/internal/drying/dryerr"
	"github.com/restoros/drylog/internal/drying/service"
)

// Handlers 处理器集合
type Handlers struct {
	Log        *LogHandler
	Structure  *StructureHandler
	Visit      *VisitHandler
	Equipment  *EquipmentHandler
	Completion *CompletionHandler
	Report     *ReportHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Log:        NewLogHandler(svc.Log),
		Structure:  NewStructureHandler(svc.Structure),
		Visit:      NewVisitHandler(svc.Visit),
		Equipment:  NewEquipmentHandler(svc.Equipment),
		Completion: NewCompletionHandler(svc.Completion),
		Report:     NewReportHandler(svc.Report),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// RespondError 把域错误映射为业务码响应。
// 所有域错误都带结构化明细透给前端，不吐裸错误码。
func RespondError(c *gin.Context, err error) {
	var notFound *dryerr.NotFoundError
	if errors.As(err, &notFound) {
		NotFound(c, notFound.Error())
		return
	}
	var immutable *dryerr.ImmutableStateError
	if errors.As(err, &immutable) {
		Error(c, 40901, immutable.Error())
		return
	}
	var incomplete *dryerr.ValidationIncompleteError
	if errors.As(err, &incomplete) {
		c.JSON(409, Response{
			Code:    40902,
			Message: incomplete.Error(),
			Data:    gin.H{"categories": incomplete.Categories},
		})
		return
	}
	var conflict *dryerr.SequenceConflictError
	if errors.As(err, &conflict) {
		Error(c, 40903, conflict.Error())
		return
	}
	var calc *dryerr.CalculationDomainError
	if errors.As(err, &calc) {
		Error(c, 42200, calc.Error())
		return
	}
	var rendering *dryerr.RenderingFailureError
	if errors.As(err, &rendering) {
		Error(c, 50201, rendering.Error())
		return
	}
	if errors.Is(err, service.ErrSetupComplete) {
		Error(c, 40910, err.Error())
		return
	}
	if errors.Is(err, service.ErrPointHasReadings) {
		Error(c, 40920, err.Error())
		return
	}
	InternalError(c, err.Error())
}
