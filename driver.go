package gospecan

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiabin827/gospecan/trace"
)

// Driver 在 Session 之上提供类型化的属性读写与表格查询。
// 每个方法都是一次受保护的交换：持有会话锁、按需覆盖超时、
// 交换后检查仪器状态，并在所有路径上恢复超时。
type Driver struct {
	session     Session
	catalog     *Catalog
	logger      *slog.Logger
	tracer      trace.Tracer
	sessionID   string
	checkStatus bool
}

// Option 配置 Driver。
type Option func(*Driver)

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTracer 设置交换跟踪器。
func WithTracer(t trace.Tracer) Option {
	return func(d *Driver) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithCatalog 替换默认目录。
func WithCatalog(c *Catalog) Option {
	return func(d *Driver) {
		if c != nil {
			d.catalog = c
		}
	}
}

// WithStatusCheck 控制每次交换后是否查询 SYST:ERR?，默认开启。
func WithStatusCheck(on bool) Option {
	return func(d *Driver) {
		d.checkStatus = on
	}
}

// New 创建 Driver。
func New(s Session, opts ...Option) (*Driver, error) {
	if s == nil {
		return nil, ErrNilSession
	}
	d := &Driver{
		session:     s,
		logger:      slog.Default(),
		tracer:      trace.NoopTracer{},
		sessionID:   uuid.NewString(),
		checkStatus: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.catalog == nil {
		d.catalog = DefaultCatalog()
	}
	d.logger = d.logger.With("session", d.sessionID)
	return d, nil
}

// SessionID 返回本驱动实例的跟踪标识。
func (d *Driver) SessionID() string {
	return d.sessionID
}

// Catalog 返回驱动使用的目录。
func (d *Driver) Catalog() *Catalog {
	return d.catalog
}

// Session 返回底层会话。
func (d *Driver) Session() Session {
	return d.session
}

// exchange 执行一次受保护的交换。
// decode 仅在传输成功时调用；状态检查在传输成功后总是执行，
// 其错误与 decode 的错误合并返回。
func (d *Driver) exchange(op trace.Op, cmd string, timeout time.Duration, decode func(string) error) (string, error) {
	g := acquireGuard(d.session, timeout)
	defer g.release()

	var (
		reply string
		err   error
	)
	start := time.Now()
	if op == trace.OpQuery {
		reply, err = d.session.Query(cmd)
	} else {
		err = d.session.Write(cmd)
	}
	elapsed := time.Since(start)

	if err != nil {
		err = d.transportError(cmd, g.effective(), err)
		d.record(op, cmd, reply, elapsed, timeout, err)
		return "", err
	}

	var derr error
	if decode != nil {
		derr = decode(reply)
	}
	var serr error
	if d.checkStatus {
		serr = d.session.CheckStatus()
		if serr != nil && isTimeout(serr) {
			serr = d.transportError(SystemErrorQuery, g.effective(), serr)
		}
	}
	err = joinErrors(derr, serr)
	d.record(op, cmd, reply, elapsed, timeout, err)
	return reply, err
}

func (d *Driver) transportError(cmd string, timeout time.Duration, err error) error {
	if isTimeout(err) {
		return &TimeoutError{Command: cmd, After: timeout, Err: err}
	}
	return fmt.Errorf("gospecan: %s: %w", cmd, err)
}

func (d *Driver) record(op trace.Op, cmd, reply string, elapsed, timeout time.Duration, err error) {
	e := trace.Event{
		Timestamp: time.Now(),
		SessionID: d.sessionID,
		Op:        op,
		Command:   cmd,
		Reply:     reply,
		Duration:  elapsed,
		Timeout:   timeout,
	}
	if err != nil {
		e.Error = err.Error()
		d.logger.Warn("exchange failed", "cmd", cmd, "error", err)
	}
	d.tracer.Trace(e)
}

// joinErrors 合并解码与状态错误，单个错误原样返回。
func joinErrors(a, b error) error {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return errors.Join(a, b)
	}
}

func checkCommand(pos int, cmd string) error {
	if strings.TrimSpace(cmd) == "" {
		return NewParameterError(pos, "command", cmd, "empty command")
	}
	return nil
}

// RawWrite 发送一条原始命令。
func (d *Driver) RawWrite(cmd string) error {
	if err := checkCommand(1, cmd); err != nil {
		return err
	}
	_, err := d.exchange(trace.OpWrite, cmd, 0, nil)
	return err
}

// Send 渲染并发送 CommandBuilder 构建的设置命令。
func (d *Driver) Send(c *CommandBuilder) error {
	line, err := c.Line()
	if err != nil {
		return err
	}
	return d.RawWrite(line)
}

// RawQuery 发送查询并返回响应行。timeout > 0 时仅本次交换使用该超时。
func (d *Driver) RawQuery(cmd string, timeout time.Duration) (string, error) {
	if err := checkCommand(1, cmd); err != nil {
		return "", err
	}
	return d.exchange(trace.OpQuery, cmd, timeout, nil)
}

// QueryFloatArray 查询逗号分隔的数值列表，例如迹线数据。
func (d *Driver) QueryFloatArray(cmd string, timeout time.Duration) ([]float64, error) {
	if err := checkCommand(1, cmd); err != nil {
		return nil, err
	}
	var out []float64
	_, err := d.exchange(trace.OpQuery, cmd, timeout, func(reply string) error {
		var perr error
		out, perr = ParseFloats(reply)
		return tagProtocolError(perr, cmd)
	})
	return out, err
}

// DecodeTabular 查询 cmd 并将响应按 schema 解码进 columns。
// 输出列在任何 I/O 之前验证；count 为响应中的记录总数，可能大于 capacity。
func (d *Driver) DecodeTabular(cmd string, schema *Schema, capacity int, timeout time.Duration, columns ...any) (int, error) {
	if err := checkCommand(1, cmd); err != nil {
		return 0, err
	}
	if err := checkColumns(schema, capacity, columns); err != nil {
		return 0, err
	}
	var count int
	_, err := d.exchange(trace.OpQuery, cmd, timeout, func(reply string) error {
		var derr error
		count, derr = decode(reply, schema, capacity, columns)
		if count > capacity {
			d.logger.Debug("reply truncated", "cmd", cmd, "count", count, "capacity", capacity)
		}
		return tagProtocolError(derr, cmd)
	})
	return count, err
}

func tagProtocolError(err error, cmd string) error {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		pe.Command = cmd
	}
	return err
}

// Exclusive 在一次受保护的区间内执行 fn，适用于需要连续多条命令的操作。
// fn 直接使用 Session；区间结束时恢复超时并检查仪器状态。
func (d *Driver) Exclusive(timeout time.Duration, fn func(s Session) error) error {
	g := acquireGuard(d.session, timeout)
	defer g.release()

	err := fn(d.session)
	if err != nil && isTimeout(err) {
		err = &TimeoutError{After: g.effective(), Err: err}
	}
	if d.checkStatus && (err == nil || !IsTimeoutError(err)) {
		err = joinErrors(err, d.session.CheckStatus())
	}
	return err
}

// ClearStatus 发送 *CLS 清除状态寄存器与错误队列。
func (d *Driver) ClearStatus() error {
	_, err := d.exchange(trace.OpWrite, "*CLS", 0, nil)
	return err
}

// ErrorQueue 读出仪器错误队列，直到队列为空或达到 limit 条。
// 达到上限后通过 *STB? 的 EAV 位判断队列是否还有剩余，不再弹出记录；
// 仍有剩余时同时返回已读出的错误与 ErrErrorQueueFull。
func (d *Driver) ErrorQueue(limit int) ([]*InstrumentError, error) {
	if limit <= 0 {
		return nil, NewParameterError(1, "limit", limit, "must be positive")
	}
	g := acquireGuard(d.session, 0)
	defer g.release()

	var errs []*InstrumentError
	for len(errs) < limit {
		reply, err := d.session.Query(SystemErrorQuery)
		if err != nil {
			return errs, d.transportError(SystemErrorQuery, g.effective(), err)
		}
		ie, err := ParseSystemError(reply)
		if err != nil {
			return errs, err
		}
		if ie == nil {
			return errs, nil
		}
		errs = append(errs, ie)
	}

	reply, err := d.session.Query(statusByteQuery)
	if err != nil {
		return errs, d.transportError(statusByteQuery, g.effective(), err)
	}
	stb, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		return errs, &ProtocolError{Command: statusByteQuery, Field: "stb", Token: reply, Reason: "not an integer", Occurrences: 1}
	}
	if stb&stbErrorAvailable != 0 {
		return errs, ErrErrorQueueFull
	}
	return errs, nil
}

// attribute 查找属性并检查类型与可写性。
func (d *Driver) attribute(id int, kind AttrKind, write bool) (*Attribute, error) {
	a, err := d.catalog.Attribute(id)
	if err != nil {
		return nil, wrapParameterError(2, "attribute", id, err)
	}
	if a.Kind != kind {
		return nil, wrapParameterError(2, "attribute", id,
			fmt.Errorf("%s is %s, not %s: %w", a.Name, a.Kind, kind, ErrAttributeKind))
	}
	if write && a.ReadOnly {
		return nil, wrapParameterError(2, "attribute", id, fmt.Errorf("%s: %w", a.Name, ErrReadOnlyAttribute))
	}
	return a, nil
}

func (d *Driver) setAttribute(sel Selector, id int, kind AttrKind, v any) error {
	a, err := d.attribute(id, kind, true)
	if err != nil {
		return err
	}
	line, err := a.setLine(sel, v)
	if err != nil {
		return err
	}
	_, err = d.exchange(trace.OpWrite, line, 0, nil)
	return err
}

// getAttribute 查询属性并将响应交给 parse。
func (d *Driver) getAttribute(sel Selector, id int, kind AttrKind, parse func(cmd, tok string) error) error {
	a, err := d.attribute(id, kind, false)
	if err != nil {
		return err
	}
	cmd, err := a.queryLine(sel)
	if err != nil {
		return err
	}
	_, err = d.exchange(trace.OpQuery, cmd, 0, func(reply string) error {
		tok := strings.TrimSpace(reply)
		if tok == "" && kind != AttrString {
			return fmt.Errorf("%w: %s", ErrEmptyReply, cmd)
		}
		return parse(cmd, tok)
	})
	return err
}

// SetAttributeInt 设置整数属性。
func (d *Driver) SetAttributeInt(sel Selector, id int, v int) error {
	return d.setAttribute(sel, id, AttrInt, v)
}

// SetAttributeFloat 设置浮点属性，值以固定高精度格式发送。
func (d *Driver) SetAttributeFloat(sel Selector, id int, v float64) error {
	return d.setAttribute(sel, id, AttrFloat, v)
}

// SetAttributeBool 设置布尔属性（ON/OFF）。
func (d *Driver) SetAttributeBool(sel Selector, id int, v bool) error {
	return d.setAttribute(sel, id, AttrBool, v)
}

// SetAttributeString 设置字符串属性。
func (d *Driver) SetAttributeString(sel Selector, id int, v string) error {
	return d.setAttribute(sel, id, AttrString, v)
}

// SetAttributeEnum 设置枚举属性，v 是查找表索引。
func (d *Driver) SetAttributeEnum(sel Selector, id int, v int) error {
	return d.setAttribute(sel, id, AttrEnum, v)
}

// GetAttributeInt 读取整数属性。
func (d *Driver) GetAttributeInt(sel Selector, id int) (int, error) {
	var out int
	f := IntField("value")
	err := d.getAttribute(sel, id, AttrInt, func(cmd, tok string) error {
		v, reason := decodeToken(tok, &f)
		if reason != "" {
			return &ProtocolError{Command: cmd, Field: "value", Token: tok, Reason: reason, Occurrences: 1}
		}
		out = v.n
		return nil
	})
	return out, err
}

// GetAttributeFloat 读取浮点属性，仪器返回 NaN 时结果为 NaN。
func (d *Driver) GetAttributeFloat(sel Selector, id int) (float64, error) {
	var out float64
	f := FloatField("value")
	err := d.getAttribute(sel, id, AttrFloat, func(cmd, tok string) error {
		v, reason := decodeToken(tok, &f)
		if reason != "" {
			return &ProtocolError{Command: cmd, Field: "value", Token: tok, Reason: reason, Occurrences: 1}
		}
		out = v.f
		return nil
	})
	return out, err
}

// GetAttributeBool 读取布尔属性。
func (d *Driver) GetAttributeBool(sel Selector, id int) (bool, error) {
	var out bool
	err := d.getAttribute(sel, id, AttrBool, func(cmd, tok string) error {
		v, ok := parseBool(tok)
		if !ok {
			return &ProtocolError{Command: cmd, Field: "value", Token: tok, Reason: "not a boolean", Occurrences: 1}
		}
		out = v
		return nil
	})
	return out, err
}

// GetAttributeString 读取字符串属性，去除外层引号。
func (d *Driver) GetAttributeString(sel Selector, id int) (string, error) {
	var out string
	err := d.getAttribute(sel, id, AttrString, func(_, tok string) error {
		out = unquote(tok)
		return nil
	})
	return out, err
}

// GetAttributeEnum 读取枚举属性并返回查找表索引。
// 响应不在表中时返回 NotFound 与 *ProtocolError。
func (d *Driver) GetAttributeEnum(sel Selector, id int) (int, error) {
	out := NotFound
	err := d.getAttribute(sel, id, AttrEnum, func(cmd, tok string) error {
		a, _ := d.catalog.Attribute(id)
		if i := a.enum.Index(tok); i != NotFound {
			out = i
			return nil
		}
		return &ProtocolError{Command: cmd, Field: "value", Token: tok,
			Reason: fmt.Sprintf("not a %s keyword", a.enum.Name()), Occurrences: 1}
	})
	return out, err
}

// Fetch 执行目录中名为 kind 的测量查询。
// args 提供选择器参数；timeout 为 0 时使用测量的默认超时。
func (d *Driver) Fetch(kind string, args Args, capacity int, timeout time.Duration, columns ...any) (int, error) {
	m, err := d.catalog.Measurement(kind)
	if err != nil {
		return 0, wrapParameterError(1, "kind", kind, err)
	}
	cmd, err := m.Command(args)
	if err != nil {
		return 0, err
	}
	if timeout <= 0 {
		timeout = m.Timeout
	}
	return d.DecodeTabular(cmd, m.Schema, capacity, timeout, columns...)
}

// FetchBuffer 是 Fetch 的便捷形式，按 schema 自动分配输出列。
func (d *Driver) FetchBuffer(kind string, args Args, capacity int, timeout time.Duration) (*ResultBuffer, error) {
	m, err := d.catalog.Measurement(kind)
	if err != nil {
		return nil, wrapParameterError(1, "kind", kind, err)
	}
	buf := NewResultBuffer(m.Schema, capacity)
	n, err := d.Fetch(kind, args, capacity, timeout, buf.Columns()...)
	buf.SetCount(n)
	return buf, err
}
