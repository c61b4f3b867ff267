package domain

import (
	"fmt"
	"strings"
)

// ValidationError 字段校验错误
// 两种形态：
//   - required-fields：缺失字段跨层级聚合后一次性报告（Description 为逗号连接的字段路径）
//   - invalid-field：字段值非法，遇到第一个即返回，不与缺失字段合并
type ValidationError struct {
	Message     string
	Description string
}

func (e *ValidationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Description)
	}
	return e.Message
}

// requiredFieldsSuffix 缺失字段错误描述的固定后缀
const requiredFieldsSuffix = " required!"

// NewRequiredFieldsError 构造缺失字段聚合错误
// fields 为点分字段路径列表（如 pattern.data_set.start_time），按校验器声明顺序排列
func NewRequiredFieldsError(fields []string) *ValidationError {
	return &ValidationError{
		Message:     "Required fields were not provided!",
		Description: strings.Join(fields, ", ") + requiredFieldsSuffix,
	}
}

// NewInvalidFieldError 构造字段值非法错误
func NewInvalidFieldError(message, description string) *ValidationError {
	return &ValidationError{Message: message, Description: description}
}

// ConflictError 记录重复错误
// 预检（CheckExist）与存储层唯一约束兜底（23505）统一映射为该错误，调用方无法区分命中路径
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// RepositoryError 通用持久化错误
type RepositoryError struct {
	Message string
	Err     error
}

func (e *RepositoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// RemoteCallError 时序服务调用错误（含超时）
type RemoteCallError struct {
	Message string
	Timeout bool
	Err     error
}

func (e *RemoteCallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}
