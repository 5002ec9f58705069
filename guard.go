package gospecan

import (
	"errors"
	"os"
	"time"
)

// exchangeGuard 持有会话的咨询锁，并在需要时覆盖会话超时。
// release 恰好执行一次恢复与解锁，调用方应 defer 它。
type exchangeGuard struct {
	s        Session
	saved    time.Duration
	override bool
	released bool
}

// acquireGuard 加锁，timeout > 0 时保存当前超时并安装 timeout。
func acquireGuard(s Session, timeout time.Duration) *exchangeGuard {
	s.Lock()
	g := &exchangeGuard{s: s}
	if timeout > 0 {
		g.saved = s.Timeout()
		g.override = true
		s.SetTimeout(timeout)
	}
	return g
}

// release 恢复保存的超时并解锁。重复调用无效果。
func (g *exchangeGuard) release() {
	if g.released {
		return
	}
	g.released = true
	if g.override {
		g.s.SetTimeout(g.saved)
	}
	g.s.Unlock()
}

// effective 返回本次交换实际生效的超时。
func (g *exchangeGuard) effective() time.Duration {
	return g.s.Timeout()
}

// isTimeout 判断传输错误是否为超时。
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
