package gospecan

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeGuard_RestoresOnce(t *testing.T) {
	s := newMockSession(5 * time.Second)

	g := acquireGuard(s, 30*time.Second)
	assert.True(t, s.isHeld())
	assert.Equal(t, 30*time.Second, g.effective())

	g.release()
	g.release()
	assert.False(t, s.isHeld())
	assert.Equal(t, 5*time.Second, s.Timeout())
	assert.Equal(t, 1, s.locks)
}

func TestExchangeGuard_NoOverride(t *testing.T) {
	s := newMockSession(5 * time.Second)
	g := acquireGuard(s, 0)
	assert.Equal(t, 5*time.Second, g.effective())

	// a change made inside the exchange survives when nothing was overridden
	s.SetTimeout(7 * time.Second)
	g.release()
	assert.Equal(t, 7*time.Second, s.Timeout())
}

func TestExchangeGuard_ReleasedOnPanic(t *testing.T) {
	s := newMockSession(5 * time.Second)
	func() {
		defer func() { _ = recover() }()
		g := acquireGuard(s, time.Minute)
		defer g.release()
		panic("decode blew up")
	}()
	assert.False(t, s.isHeld())
	assert.Equal(t, 5*time.Second, s.Timeout())
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, isTimeout(os.ErrDeadlineExceeded))
	assert.True(t, isTimeout(fmt.Errorf("read: %w", os.ErrDeadlineExceeded)))
	assert.True(t, isTimeout(fmt.Errorf("read: %w", timeoutErr{})))
	assert.True(t, isTimeout(&TimeoutError{Command: "*OPC?"}))
	assert.False(t, isTimeout(errors.New("connection refused")))
	assert.False(t, isTimeout(nil))
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Command: "READ:SPEC:MOD?", After: 3 * time.Second, Err: os.ErrDeadlineExceeded}
	assert.Equal(t, `gospecan: timeout after 3s waiting for "READ:SPEC:MOD?"`, err.Error())
	assert.True(t, err.Timeout())
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)

	var te interface{ Timeout() bool }
	require.ErrorAs(t, fmt.Errorf("fetch: %w", err), &te)
	assert.True(t, te.Timeout())

	err.After = 0
	assert.Equal(t, `gospecan: timeout waiting for "READ:SPEC:MOD?"`, err.Error())
}

// Every exit path of a guarded exchange restores the timeout and releases the lock.
func TestDriver_TimeoutRestoredOnEveryPath(t *testing.T) {
	const before = 2 * time.Second
	const override = 45 * time.Second
	schema := NewSchema("pairs", IntField("n"), FloatField("x"))

	tests := []struct {
		name  string
		setup func(s *mockSession)
		check func(t *testing.T, err error)
	}{
		{
			name: "success",
			setup: func(s *mockSession) {
				s.On("Query", "FETC:LIST?").Return("1,2.0", nil)
				s.On("CheckStatus").Return(nil)
			},
			check: func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name: "protocol error",
			setup: func(s *mockSession) {
				s.On("Query", "FETC:LIST?").Return("1,junk", nil)
				s.On("CheckStatus").Return(nil)
			},
			check: func(t *testing.T, err error) { assert.True(t, IsProtocolError(err)) },
		},
		{
			name: "instrument error",
			setup: func(s *mockSession) {
				s.On("Query", "FETC:LIST?").Return("1,2.0", nil)
				s.On("CheckStatus").Return(NewInstrumentError(-230, "Data corrupt or stale"))
			},
			check: func(t *testing.T, err error) { assert.True(t, IsInstrumentError(err)) },
		},
		{
			name: "timeout",
			setup: func(s *mockSession) {
				s.On("Query", "FETC:LIST?").Return("", timeoutErr{})
			},
			check: func(t *testing.T, err error) {
				var te *TimeoutError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, override, te.After)
				assert.Equal(t, "FETC:LIST?", te.Command)
			},
		},
		{
			name: "transport error",
			setup: func(s *mockSession) {
				s.On("Query", "FETC:LIST?").Return("", errors.New("connection reset"))
			},
			check: func(t *testing.T, err error) {
				assert.EqualError(t, err, "gospecan: FETC:LIST?: connection reset")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newMockSession(before)
			tt.setup(s)
			d := newTestDriver(t, s)

			_, err := d.DecodeTabular("FETC:LIST?", schema, 1, override, make([]int, 1), make([]float64, 1))
			tt.check(t, err)

			assert.Equal(t, before, s.Timeout())
			assert.False(t, s.isHeld())
			assert.Equal(t, []time.Duration{override}, s.seen)
			s.AssertExpectations(t)
		})
	}
}

func TestDriver_ParameterErrorLeavesSessionUntouched(t *testing.T) {
	s := newMockSession(time.Second)
	d := newTestDriver(t, s)
	schema := NewSchema("pairs", IntField("n"), FloatField("x"))

	_, err := d.DecodeTabular("FETC:LIST?", schema, 4, time.Minute, make([]int, 2), make([]float64, 4))
	assert.True(t, IsParameterError(err))
	assert.Equal(t, 0, s.locks)
	assert.Equal(t, time.Second, s.Timeout())
	s.AssertNotCalled(t, "Query", "FETC:LIST?")
}
