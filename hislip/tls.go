package hislip

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"
)

// mergeDeadline 取 context 截止时间与 now+timeout 中较早者。
func mergeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

// NewTLSConfig 创建基本 TLS 配置。serverName 为空时跳过主机名验证。
func NewTLSConfig(serverName string) *tls.Config {
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: serverName == "",
		MinVersion:         tls.VersionTLS12,
	}
}

// NewTLSConfigWithCA 创建使用自定义 CA 的 TLS 配置。
func NewTLSConfigWithCA(serverName, caCertPath string) (*tls.Config, error) {
	pem, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("read CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", caCertPath)
	}
	cfg := NewTLSConfig(serverName)
	cfg.InsecureSkipVerify = false
	cfg.RootCAs = pool
	return cfg, nil
}

// startTLS 按 HiSLIP 2.0 顺序升级两个通道：先异步，后同步。
func (c *Client) startTLS(sc, ac *conn) error {
	if err := ac.send(c.cfg.Timeout, msgAsyncStartTLS, 0, c.state.lastSent(), nil); err != nil {
		return fmt.Errorf("send AsyncStartTLS: %w", err)
	}
	m, err := ac.expect("start TLS", msgAsyncStartTLSResponse, c.cfg.Timeout)
	if err != nil {
		return err
	}
	if m.ctrl != ctrlTLSSuccess {
		return fmt.Errorf("server rejected TLS: ctrl=%d", m.ctrl)
	}
	if err := ac.upgradeTLS(c.cfg.TLSConfig); err != nil {
		return fmt.Errorf("async channel: %w", err)
	}
	if err := sc.send(c.cfg.Timeout, msgStartTLS, 0, c.state.lastSent(), nil); err != nil {
		return fmt.Errorf("send StartTLS: %w", err)
	}
	if err := sc.upgradeTLS(c.cfg.TLSConfig); err != nil {
		return fmt.Errorf("sync channel: %w", err)
	}
	c.state.update(func(i *Info) { i.Encrypted = true })
	return nil
}

// TLSConnectionState 返回同步通道的 TLS 状态，未加密时返回 nil。
func (c *Client) TLSConnectionState() *tls.ConnectionState {
	sc, _, err := c.conns()
	if err != nil || !sc.isTLS {
		return nil
	}
	tc, ok := sc.raw.(*tls.Conn)
	if !ok {
		return nil
	}
	st := tc.ConnectionState()
	return &st
}
