// Package dryerr 定义干燥日志域的结构化错误。
// 处理器依赖errors.As把它们映射成业务码，不允许裸错误码透出。
package dryerr

import (
	"fmt"
)

// NotFoundError 资源不存在或不属于指定日志（跨租户访问同样返回此错误）
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFound 创建NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ImmutableStateError 对已锁定日志的写入
type ImmutableStateError struct {
	LogID string
}

func (e *ImmutableStateError) Error() string {
	return fmt.Sprintf("drying log %s is locked", e.LogID)
}

// CategoryResult 完工校验单项结果
type CategoryResult struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Passed  bool   `json:"passed"`
	Details string `json:"details"`
}

// ValidationIncompleteError 完工校验未全部通过，携带完整分项明细供前端展示清单
type ValidationIncompleteError struct {
	Categories []CategoryResult
}

func (e *ValidationIncompleteError) Error() string {
	failed := 0
	for _, c := range e.Categories {
		if !c.Passed {
			failed++
		}
	}
	return fmt.Sprintf("completion validation failed: %d of %d categories not passed", failed, len(e.Categories))
}

// SequenceConflictError 巡检序号领取冲突，可重试
type SequenceConflictError struct {
	LogID string
}

func (e *SequenceConflictError) Error() string {
	return fmt.Sprintf("visit number claim conflict for log %s", e.LogID)
}

// RenderingFailureError 外部渲染服务失败。失败路径必须清理全部临时产物。
type RenderingFailureError struct {
	Cause error
}

func (e *RenderingFailureError) Error() string {
	return fmt.Sprintf("report rendering failed: %v", e.Cause)
}

func (e *RenderingFailureError) Unwrap() error {
	return e.Cause
}

// CalculationDomainError 读数超出物理有效范围
type CalculationDomainError struct {
	Field string
	Value float64
}

func (e *CalculationDomainError) Error() string {
	return fmt.Sprintf("value out of physical range: %s=%.2f", e.Field, e.Value)
}
