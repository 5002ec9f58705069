package gospecan

import (
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// mockSession scripts Write/Query/CheckStatus through testify and keeps
// real lock and timeout bookkeeping so tests can assert on them.
type mockSession struct {
	mock.Mock

	mu      sync.Mutex
	held    bool
	locks   int
	timeout time.Duration
	seen    []time.Duration // timeout in effect at each Write/Query
}

func newMockSession(timeout time.Duration) *mockSession {
	return &mockSession{timeout: timeout}
}

func (m *mockSession) observe() {
	m.mu.Lock()
	m.seen = append(m.seen, m.timeout)
	m.mu.Unlock()
}

func (m *mockSession) Write(cmd string) error {
	m.observe()
	args := m.Called(cmd)
	return args.Error(0)
}

func (m *mockSession) Query(cmd string) (string, error) {
	m.observe()
	args := m.Called(cmd)
	return args.String(0), args.Error(1)
}

func (m *mockSession) CheckStatus() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockSession) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		panic("mockSession: lock already held")
	}
	m.held = true
	m.locks++
}

func (m *mockSession) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held {
		panic("mockSession: unlock of unlocked session")
	}
	m.held = false
}

func (m *mockSession) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

func (m *mockSession) SetTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

func (m *mockSession) isHeld() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

// timeoutErr mimics a transport deadline error.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
