package trace

import (
	"context"
	"log/slog"
)

// Tracer 接收交换事件。实现必须是并发安全的，且不应阻塞。
type Tracer interface {
	Trace(e Event)
}

// NoopTracer 丢弃所有事件，零值可用。
type NoopTracer struct{}

func (NoopTracer) Trace(Event) {}

// MultiTracer 将事件分发给多个 Tracer。
type MultiTracer struct {
	tracers []Tracer
}

// NewMultiTracer 创建 MultiTracer，nil 项被忽略。
func NewMultiTracer(tracers ...Tracer) *MultiTracer {
	m := &MultiTracer{}
	for _, t := range tracers {
		if t != nil {
			m.tracers = append(m.tracers, t)
		}
	}
	return m
}

func (m *MultiTracer) Trace(e Event) {
	for _, t := range m.tracers {
		t.Trace(e)
	}
}

// SlogTracer 以 Debug 级别将事件写入 slog。
type SlogTracer struct {
	logger *slog.Logger
}

// NewSlogTracer 创建 SlogTracer。
func NewSlogTracer(logger *slog.Logger) *SlogTracer {
	return &SlogTracer{logger: logger}
}

func (s *SlogTracer) Trace(e Event) {
	attrs := []slog.Attr{
		slog.String("session", e.SessionID),
		slog.String("op", e.Op.String()),
		slog.String("cmd", e.Command),
		slog.Duration("elapsed", e.Duration),
	}
	if e.Op == OpQuery {
		attrs = append(attrs, slog.Int("reply_len", len(e.Reply)))
	}
	if e.Timeout > 0 {
		attrs = append(attrs, slog.Duration("timeout", e.Timeout))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "scpi", attrs...)
}

var (
	_ Tracer = NoopTracer{}
	_ Tracer = (*MultiTracer)(nil)
	_ Tracer = (*SlogTracer)(nil)
	_ Tracer = (*FileTracer)(nil)
)
