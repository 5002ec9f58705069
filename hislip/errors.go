package hislip

import (
	"errors"
	"fmt"
)

// 标准错误
var (
	ErrClosed          = errors.New("hislip: connection closed")
	ErrNotConnected    = errors.New("hislip: not connected")
	ErrInterrupted     = errors.New("hislip: operation interrupted")
	ErrLockTimeout     = errors.New("hislip: lock acquisition timeout")
	ErrLockFailed      = errors.New("hislip: lock acquisition failed")
	ErrNotLocked       = errors.New("hislip: not locked")
	ErrInvalidPrologue = errors.New("hislip: invalid message prologue")
	ErrMessageTooLarge = errors.New("hislip: message too large")
	ErrTLSRequired     = errors.New("hislip: TLS required but not configured")
)

// ErrTimeout 是 I/O 截止时间到期时返回的错误，满足 Timeout() bool。
var ErrTimeout error = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string   { return "hislip: operation timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// 致命错误码（IVI-6.1 表 5）
var fatalNames = map[uint8]string{
	0: "unidentified error",
	1: "poorly formed message header",
	2: "attempt to use connection without initialization",
	3: "maximum number of clients exceeded",
	4: "secure connection failed",
	5: "secure connection required but not established",
	6: "invalid initialization sequence",
	7: "server is shutting down",
}

// 非致命错误码（IVI-6.1 表 6）
var nonFatalNames = map[uint8]string{
	0: "unidentified error",
	1: "unrecognized message type",
	2: "unrecognized control code",
	3: "unrecognized vendor-defined message",
	4: "message too large",
	5: "authentication mechanism failed",
}

// FatalError 是服务器发来的 FatalError 消息。收到后连接被关闭。
type FatalError struct {
	Code    uint8
	Message string
}

func (e *FatalError) Error() string {
	return describe("hislip fatal error", e.Code, fatalNames, e.Message)
}

// IsFatalError 检查 err 是否为 FatalError。
func IsFatalError(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ServerError 是服务器发来的非致命 Error 消息，连接仍可使用。
type ServerError struct {
	Code    uint8
	Message string
}

func (e *ServerError) Error() string {
	return describe("hislip error", e.Code, nonFatalNames, e.Message)
}

// IsServerError 检查 err 是否为 ServerError。
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

func describe(prefix string, code uint8, names map[uint8]string, msg string) string {
	desc, ok := names[code]
	if !ok {
		desc = fmt.Sprintf("unknown code %d", code)
	}
	if msg != "" {
		return fmt.Sprintf("%s %d: %s (%s)", prefix, code, desc, msg)
	}
	return fmt.Sprintf("%s %d: %s", prefix, code, desc)
}

// UnexpectedMessageError 表示收到了不符合当前交换的消息类型。
type UnexpectedMessageError struct {
	Op   string
	Want uint8
	Got  uint8
}

func (e *UnexpectedMessageError) Error() string {
	return fmt.Sprintf("hislip: %s: expected %s, got %s", e.Op, msgName(e.Want), msgName(e.Got))
}

// errorFromMessage 将 FatalError/Error 消息转换为 Go 错误，其他消息返回 nil。
func errorFromMessage(m *message) error {
	switch m.typ {
	case msgFatalError:
		return &FatalError{Code: m.ctrl, Message: string(m.payload)}
	case msgError:
		return &ServerError{Code: m.ctrl, Message: string(m.payload)}
	}
	return nil
}
