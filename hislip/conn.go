package hislip

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// conn 是一条 HiSLIP 通道（同步或异步）。
// 调用方负责串行化读写，conn 本身不加锁。
type conn struct {
	raw    net.Conn
	reader *bufio.Reader
	limit  uint64
	isTLS  bool
}

func newConn(c net.Conn) *conn {
	return &conn{
		raw:    c,
		reader: bufio.NewReader(c),
		limit:  defaultMaxMessageSize,
	}
}

// withDefaultPort 在地址缺少端口时补上 4880。
func withDefaultPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(DefaultPort))
}

func dialConn(ctx context.Context, address string) (*conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return newConn(c), nil
}

func (c *conn) close() error {
	return c.raw.Close()
}

// send 在 timeout 内写出一条消息。
func (c *conn) send(timeout time.Duration, typ, ctrl uint8, param uint32, payload []byte) error {
	if timeout > 0 {
		if err := c.raw.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		defer c.raw.SetWriteDeadline(time.Time{})
	}
	if err := writeMessage(c.raw, newMessage(typ, ctrl, param, payload)); err != nil {
		return classify("write "+msgName(typ), err)
	}
	return nil
}

// recv 在截止时间前读取一条消息；deadline 为零值表示不限时。
func (c *conn) recv(deadline time.Time) (*message, error) {
	if err := c.raw.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	m, err := readMessage(c.reader, c.limit)
	if err != nil {
		return nil, classify("read", err)
	}
	return m, nil
}

// expect 读取一条消息并要求其类型为 want；Error/FatalError 消息转换为错误。
func (c *conn) expect(op string, want uint8, timeout time.Duration) (*message, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	m, err := c.recv(deadline)
	if err != nil {
		return nil, err
	}
	if err := errorFromMessage(m); err != nil {
		return nil, err
	}
	if m.typ != want {
		return nil, &UnexpectedMessageError{Op: op, Want: want, Got: m.typ}
	}
	return m, nil
}

// upgradeTLS 在当前连接上执行 TLS 握手。
func (c *conn) upgradeTLS(cfg *tls.Config) error {
	tc := tls.Client(c.raw, cfg)
	if err := tc.Handshake(); err != nil {
		return fmt.Errorf("TLS handshake: %w", err)
	}
	c.raw = tc
	c.reader = bufio.NewReader(tc)
	c.isTLS = true
	return nil
}

// classify 将截止时间到期转换为 ErrTimeout，保留其他错误。
func classify(op string, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
