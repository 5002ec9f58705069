// Package gospecan 实现频谱分析仪驱动的 SCPI 编组核心：
// 重复能力选择器构建、命令编码、带超时保护的往返交换，
// 以及逗号分隔表格响应到类型化并行数组的解码。
package gospecan

import (
	"errors"
	"fmt"
	"time"
)

// 标准错误
var (
	ErrNilSession         = errors.New("gospecan: nil session")
	ErrUnknownAttribute   = errors.New("gospecan: unknown attribute")
	ErrUnknownMeasurement = errors.New("gospecan: unknown measurement")
	ErrReadOnlyAttribute  = errors.New("gospecan: attribute is read-only")
	ErrAttributeKind      = errors.New("gospecan: attribute kind mismatch")
	ErrEmptyReply         = errors.New("gospecan: empty reply")
	ErrErrorQueueFull     = errors.New("gospecan: error queue not drained")
)

// ParameterError 表示调用方参数超出声明范围或缺失。
// 在任何设备 I/O 之前检测，操作不会被执行。
type ParameterError struct {
	Position int    // 参数位置（从 1 开始，0 表示未知）
	Name     string // 参数名
	Value    any    // 违规值
	Reason   string
	Err      error // 底层原因，可为 nil
}

func (e *ParameterError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("gospecan: invalid parameter #%d %s=%v: %s", e.Position, e.Name, e.Value, e.Reason)
	}
	return fmt.Sprintf("gospecan: invalid parameter %s=%v: %s", e.Name, e.Value, e.Reason)
}

// NewParameterError 创建新的 ParameterError。
func NewParameterError(pos int, name string, value any, reason string) *ParameterError {
	return &ParameterError{
		Position: pos,
		Name:     name,
		Value:    value,
		Reason:   reason,
	}
}

func (e *ParameterError) Unwrap() error { return e.Err }

// wrapParameterError 以 err 为原因创建 ParameterError，保留 errors.Is 链。
func wrapParameterError(pos int, name string, value any, err error) *ParameterError {
	pe := NewParameterError(pos, name, value, err.Error())
	pe.Err = err
	return pe
}

// IsParameterError 检查 err 是否为 ParameterError。
func IsParameterError(err error) bool {
	var pe *ParameterError
	return errors.As(err, &pe)
}

// ProtocolError 表示仪器响应格式错误或不符合预期。
// Record/Field 从 0 开始；Occurrences 为同一次解码中的出错 token 总数。
type ProtocolError struct {
	Command     string
	Record      int
	Field       string
	Token       string
	Reason      string
	Occurrences int
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("gospecan: protocol error: record %d field %s: token %q: %s",
		e.Record, e.Field, e.Token, e.Reason)
	if e.Command != "" {
		msg += fmt.Sprintf(" (command %q)", e.Command)
	}
	if e.Occurrences > 1 {
		msg += fmt.Sprintf(" [%d bad tokens]", e.Occurrences)
	}
	return msg
}

// IsProtocolError 检查 err 是否为 ProtocolError。
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// InstrumentError 表示交换后仪器错误队列报告的 SCPI 错误。
type InstrumentError struct {
	Code    int
	Message string
}

func (e *InstrumentError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gospecan: instrument error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gospecan: instrument error %d", e.Code)
}

// NewInstrumentError 创建新的 InstrumentError。
func NewInstrumentError(code int, msg string) *InstrumentError {
	return &InstrumentError{
		Code:    code,
		Message: msg,
	}
}

// IsInstrumentError 检查 err 是否为 InstrumentError。
func IsInstrumentError(err error) bool {
	var ie *InstrumentError
	return errors.As(err, &ie)
}

// TimeoutError 表示在设定的超时时间内未收到响应。
type TimeoutError struct {
	Command string
	After   time.Duration // 生效的超时时间
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("gospecan: timeout after %v waiting for %q", e.After, e.Command)
	}
	return fmt.Sprintf("gospecan: timeout waiting for %q", e.Command)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Timeout 实现 net.Error 风格的超时判断。
func (e *TimeoutError) Timeout() bool { return true }

// IsTimeoutError 检查 err 是否为 TimeoutError。
func IsTimeoutError(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
