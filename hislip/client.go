package hislip

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xiabin827/gospecan"
)

// Config 保存创建 Client 的配置。
type Config struct {
	// SubAddress 是 HiSLIP 子地址（例如 "hislip0"）
	SubAddress string

	// VendorID 是客户端的供应商 ID（通用客户端通常为 0）
	VendorID uint16

	// Timeout 是初始操作完成超时，可由 SetTimeout 修改
	Timeout time.Duration

	// TLSConfig 非 nil 时在初始化后升级为 TLS
	TLSConfig *tls.Config

	// Logger 用于调试输出（nil 禁用日志）
	Logger *slog.Logger
}

// DefaultConfig 返回带默认值的 Config。
func DefaultConfig() *Config {
	return &Config{
		SubAddress: "hislip0",
		Timeout:    5 * time.Second,
	}
}

// Client 是同步模式的 HiSLIP 客户端，满足 gospecan.Session。
//
// Lock/Unlock 是本地咨询锁，由驱动在每次交换期间持有；
// 通道 I/O 另有内部锁保护，因此不加咨询锁的直接调用也是安全的。
type Client struct {
	cfg    *Config
	logger *slog.Logger
	state  *state

	syncConn  *conn
	asyncConn *conn

	exchMu  sync.Mutex // 咨询锁
	syncMu  sync.Mutex // 同步通道 I/O
	asyncMu sync.Mutex // 异步通道 I/O

	mu      sync.Mutex
	timeout time.Duration
	closed  bool
}

var _ gospecan.Session = (*Client)(nil)

// NewClient 创建尚未连接的客户端。
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.SubAddress == "" {
		cfg.SubAddress = "hislip0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		cfg:     cfg,
		logger:  logger.With("component", "hislip"),
		state:   newState(),
		timeout: cfg.Timeout,
	}
}

// Dial 创建客户端并连接到 address（host 或 host:port）。
func Dial(ctx context.Context, address string, cfg *Config) (*Client, error) {
	c := NewClient(cfg)
	if err := c.Connect(ctx, address); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect 依次建立同步与异步通道并完成初始化握手。
func (c *Client) Connect(ctx context.Context, address string) (err error) {
	c.mu.Lock()
	if c.syncConn != nil {
		c.mu.Unlock()
		return fmt.Errorf("hislip: already connected")
	}
	c.mu.Unlock()

	address = withDefaultPort(address)
	c.logger.Debug("connecting", "addr", address, "sub_address", c.cfg.SubAddress)

	sc, err := dialConn(ctx, address)
	if err != nil {
		return err
	}
	var ac *conn
	defer func() {
		if err != nil {
			sc.close()
			if ac != nil {
				ac.close()
			}
		}
	}()

	if err := c.initialize(sc); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	ac, err = dialConn(ctx, address)
	if err != nil {
		return err
	}
	if err := c.asyncInitialize(ac); err != nil {
		return fmt.Errorf("async initialize: %w", err)
	}

	if err := c.negotiateMaxMessageSize(ac); err != nil {
		c.logger.Debug("max message size negotiation failed", "error", err)
	}

	info := c.state.snapshot()
	if info.EncryptionRequired && c.cfg.TLSConfig == nil {
		return ErrTLSRequired
	}
	if c.cfg.TLSConfig != nil {
		if err := c.startTLS(sc, ac); err != nil {
			return fmt.Errorf("secure connection: %w", err)
		}
	}

	c.mu.Lock()
	c.syncConn, c.asyncConn = sc, ac
	c.closed = false
	c.mu.Unlock()

	info = c.state.snapshot()
	c.logger.Info("connected", "addr", address, "session_id", info.SessionID,
		"version", fmt.Sprintf("%d.%d", info.VersionMajor, info.VersionMinor), "tls", info.Encrypted)
	return nil
}

func (c *Client) initialize(sc *conn) error {
	param := initializeParam(protocolVersion, c.cfg.VendorID)
	if err := sc.send(c.cfg.Timeout, msgInitialize, 0, param, []byte(c.cfg.SubAddress)); err != nil {
		return err
	}
	m, err := sc.expect("initialize", msgInitializeResponse, c.cfg.Timeout)
	if err != nil {
		return err
	}
	version, sessionID, overlap, encrypt := parseInitializeResponse(m.ctrl, m.param)
	major, minor := splitVersion(version)
	c.state.update(func(i *Info) {
		i.SessionID = sessionID
		i.VersionMajor, i.VersionMinor = major, minor
		i.SupportsOverlap = overlap
		i.EncryptionRequired = encrypt
	})
	return nil
}

func (c *Client) asyncInitialize(ac *conn) error {
	sessionID := c.state.snapshot().SessionID
	if err := ac.send(c.cfg.Timeout, msgAsyncInitialize, 0, uint32(sessionID), nil); err != nil {
		return err
	}
	m, err := ac.expect("async initialize", msgAsyncInitializeResponse, c.cfg.Timeout)
	if err != nil {
		return err
	}
	c.state.update(func(i *Info) { i.ServerVendorID = uint16(m.param) })
	return nil
}

// negotiateMaxMessageSize 告知服务器本端可接收的最大负载，并记录服务器的上限。
func (c *Client) negotiateMaxMessageSize(ac *conn) error {
	if err := ac.send(c.cfg.Timeout, msgAsyncMaximumMessageSize, 0, 0, putUint64(defaultMaxMessageSize)); err != nil {
		return err
	}
	m, err := ac.expect("max message size", msgAsyncMaximumMessageSizeResp, c.cfg.Timeout)
	if err != nil {
		return err
	}
	if len(m.payload) < 8 {
		return fmt.Errorf("short AsyncMaximumMessageSizeResponse payload: %d bytes", len(m.payload))
	}
	var size uint64
	for _, b := range m.payload[:8] {
		size = size<<8 | uint64(b)
	}
	c.state.update(func(i *Info) { i.MaxMessageSize = size })
	return nil
}

// Close 关闭两个通道，可重复调用。
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.syncConn == nil {
		c.closed = true
		return nil
	}
	c.closed = true

	err := c.syncConn.close()
	if aerr := c.asyncConn.close(); err == nil {
		err = aerr
	}
	return err
}

// IsConnected 返回客户端是否已连接。
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncConn != nil && !c.closed
}

// Info 返回协商得到的会话信息。
func (c *Client) Info() Info {
	return c.state.snapshot()
}

func (c *Client) conns() (*conn, *conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.syncConn == nil {
		return nil, nil, ErrNotConnected
	}
	if c.closed {
		return nil, nil, ErrClosed
	}
	return c.syncConn, c.asyncConn, nil
}

// fail 在收到致命错误后关闭连接。
func (c *Client) fail(err error) error {
	if IsFatalError(err) {
		c.logger.Error("fatal error, closing", "error", err)
		c.Close()
	}
	return err
}

// Lock 获取本地咨询锁。
func (c *Client) Lock() {
	c.exchMu.Lock()
}

// Unlock 释放本地咨询锁。
func (c *Client) Unlock() {
	c.exchMu.Unlock()
}

// Timeout 返回当前操作完成超时。
func (c *Client) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// SetTimeout 设置操作完成超时，d <= 0 表示不限时。
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

func (c *Client) deadline() time.Time {
	if d := c.Timeout(); d > 0 {
		return time.Now().Add(d)
	}
	return time.Time{}
}

// Write 向仪器发送一条 SCPI 命令。
func (c *Client) Write(cmd string) error {
	return c.WriteBytes([]byte(cmd))
}

// WriteBytes 向仪器发送原始字节。
func (c *Client) WriteBytes(data []byte) error {
	sc, _, err := c.conns()
	if err != nil {
		return err
	}
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	_, err = c.writeLocked(sc, data)
	return err
}

// writeLocked 按服务器上限分段发送 Data，最后一段为 DataEnd，各段共用一个消息 ID。
// 返回所用的消息 ID，服务器对该命令的响应携带同一 ID。
func (c *Client) writeLocked(sc *conn, data []byte) (uint32, error) {
	limit := c.state.snapshot().MaxMessageSize
	if limit == 0 {
		limit = defaultMaxMessageSize
	}
	id := c.state.nextMessageID()
	for {
		if uint64(len(data)) <= limit {
			c.logger.Debug("write", "msg_id", fmt.Sprintf("0x%08x", id), "len", len(data))
			return id, sc.send(c.Timeout(), msgDataEnd, ctrlRMTDelivered, id, data)
		}
		if err := sc.send(c.Timeout(), msgData, ctrlRMTDelivered, id, data[:limit]); err != nil {
			return id, err
		}
		data = data[limit:]
	}
}

// Read 在当前超时内读取一条完整响应。
func (c *Client) Read() ([]byte, error) {
	sc, _, err := c.conns()
	if err != nil {
		return nil, err
	}
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	return c.readLocked(sc, c.state.lastSent())
}

// readLocked 读取消息 ID 为 want 的响应。ID 不同的 Data/DataEnd 是先前
// 超时命令的迟到响应，直接丢弃。
func (c *Client) readLocked(sc *conn, want uint32) ([]byte, error) {
	var buf bytes.Buffer
	deadline := c.deadline()
	for {
		m, err := sc.recv(deadline)
		if err != nil {
			return nil, err
		}
		if (m.typ == msgData || m.typ == msgDataEnd) && m.param != want {
			c.logger.Debug("discarding stale reply", "msg_id", fmt.Sprintf("0x%08x", m.param),
				"want", fmt.Sprintf("0x%08x", want), "len", len(m.payload))
			continue
		}
		switch m.typ {
		case msgData:
			buf.Write(m.payload)
		case msgDataEnd:
			buf.Write(m.payload)
			c.logger.Debug("read", "msg_id", fmt.Sprintf("0x%08x", m.param), "len", buf.Len())
			return buf.Bytes(), nil
		case msgInterrupted:
			return nil, ErrInterrupted
		case msgFatalError, msgError:
			return nil, c.fail(errorFromMessage(m))
		default:
			c.logger.Debug("discarding message during read", "msg", m.header.String())
		}
	}
}

// Query 发送命令并读取响应，去除首尾空白与行终止符。
func (c *Client) Query(cmd string) (string, error) {
	data, err := c.QueryBytes([]byte(cmd))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// QueryBytes 发送命令并以字节形式读取响应。
func (c *Client) QueryBytes(cmd []byte) ([]byte, error) {
	sc, _, err := c.conns()
	if err != nil {
		return nil, err
	}
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	id, err := c.writeLocked(sc, cmd)
	if err != nil {
		return nil, err
	}
	return c.readLocked(sc, id)
}

// CheckStatus 读取一条仪器错误队列记录，非空时返回 *gospecan.InstrumentError。
func (c *Client) CheckStatus() error {
	return gospecan.QuerySystemError(c)
}

// asyncRoundTrip 在异步通道上发送请求并等待 want 类型的响应。
// 期间到达的服务请求与中断通知被记录后丢弃。
func (c *Client) asyncRoundTrip(ctx context.Context, op string, typ, ctrl uint8, param uint32, want uint8, timeout time.Duration) (*message, error) {
	_, ac, err := c.conns()
	if err != nil {
		return nil, err
	}
	c.asyncMu.Lock()
	defer c.asyncMu.Unlock()

	deadline := mergeDeadline(ctx, timeout)
	if err := ac.send(time.Until(deadline), typ, ctrl, param, nil); err != nil {
		return nil, err
	}
	for {
		m, err := ac.recv(deadline)
		if err != nil {
			return nil, err
		}
		if err := errorFromMessage(m); err != nil {
			return nil, c.fail(err)
		}
		switch m.typ {
		case want:
			return m, nil
		case msgAsyncServiceRequest, msgAsyncInterrupted:
			c.logger.Debug("async notification", "msg", m.header.String())
		default:
			return nil, &UnexpectedMessageError{Op: op, Want: want, Got: m.typ}
		}
	}
}

// RemoteLock 请求仪器端的独占锁，在 timeout 内未获得时返回 ErrLockTimeout。
func (c *Client) RemoteLock(ctx context.Context, timeout time.Duration) error {
	ms := uint32(timeout / time.Millisecond)
	m, err := c.asyncRoundTrip(ctx, "lock", msgAsyncLock, ctrlLockRequest, ms, msgAsyncLockResponse, timeout+c.cfg.Timeout)
	if err != nil {
		return err
	}
	switch m.ctrl {
	case ctrlLockSuccess:
		c.state.update(func(i *Info) { i.RemoteLocked = true })
		c.logger.Debug("remote lock acquired")
		return nil
	case ctrlLockFail:
		return ErrLockTimeout
	case ctrlLockError:
		return ErrLockFailed
	default:
		return fmt.Errorf("hislip: unexpected lock response ctrl=%d", m.ctrl)
	}
}

// RemoteUnlock 释放仪器端的锁。
func (c *Client) RemoteUnlock(ctx context.Context) error {
	if !c.state.snapshot().RemoteLocked {
		return ErrNotLocked
	}
	m, err := c.asyncRoundTrip(ctx, "unlock", msgAsyncLock, ctrlLockRelease, c.state.lastSent(), msgAsyncLockResponse, c.cfg.Timeout)
	if err != nil {
		return err
	}
	if m.ctrl != ctrlLockSuccess && m.ctrl != ctrlLockFail {
		return fmt.Errorf("hislip: unexpected unlock response ctrl=%d", m.ctrl)
	}
	c.state.update(func(i *Info) { i.RemoteLocked = false })
	c.logger.Debug("remote lock released")
	return nil
}

// Status 查询仪器状态字节（STB）。
func (c *Client) Status(ctx context.Context) (byte, error) {
	m, err := c.asyncRoundTrip(ctx, "status", msgAsyncStatusQuery, ctrlRMTDelivered, c.state.lastSent(), msgAsyncStatusResponse, c.cfg.Timeout)
	if err != nil {
		return 0, err
	}
	return m.ctrl, nil
}

// RemoteLocal 发送远程/本地控制命令。
func (c *Client) RemoteLocal(ctx context.Context, mode uint8) error {
	_, err := c.asyncRoundTrip(ctx, "remote/local", msgAsyncRemoteLocalControl, mode, c.state.lastSent(), msgAsyncRemoteLocalResponse, c.cfg.Timeout)
	return err
}

// Trigger 向仪器发送触发消息。
func (c *Client) Trigger() error {
	sc, _, err := c.conns()
	if err != nil {
		return err
	}
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	return sc.send(c.Timeout(), msgTrigger, ctrlRMTDelivered, c.state.nextMessageID(), nil)
}

// DeviceClear 执行设备清除：清空仪器输入输出缓冲区并重置消息 ID。
func (c *Client) DeviceClear(ctx context.Context) error {
	sc, _, err := c.conns()
	if err != nil {
		return err
	}
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	// AsyncDeviceClearAcknowledge 与请求使用同一消息类型。
	if _, err := c.asyncRoundTrip(ctx, "device clear", msgAsyncDeviceClear, 0, 0, msgAsyncDeviceClear, c.cfg.Timeout); err != nil {
		return fmt.Errorf("async device clear: %w", err)
	}
	if err := sc.send(c.cfg.Timeout, msgDeviceClearComplete, 0, 0, nil); err != nil {
		return fmt.Errorf("send DeviceClearComplete: %w", err)
	}
	deadline := mergeDeadline(ctx, c.cfg.Timeout)
	for {
		m, err := sc.recv(deadline)
		if err != nil {
			return fmt.Errorf("wait DeviceClearAcknowledge: %w", err)
		}
		if m.typ == msgDeviceClearAcknowledge {
			break
		}
		if m.typ == msgFatalError {
			return c.fail(errorFromMessage(m))
		}
		c.logger.Debug("discarding message during clear", "msg", m.header.String())
	}
	c.state.reset()
	c.logger.Debug("device clear complete")
	return nil
}
