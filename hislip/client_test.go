package hislip

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiabin827/gospecan"
)

// fakeInstrument is a minimal synchronous-mode HiSLIP server.
type fakeInstrument struct {
	ln      net.Listener
	maxSize uint64

	mu       sync.Mutex
	replies  map[string]string
	delays   map[string]time.Duration
	errQueue []string
	received []string
	ids      []uint32
}

func newFakeInstrument(t *testing.T) *fakeInstrument {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeInstrument{
		ln:      ln,
		maxSize: 1 << 20,
		replies: map[string]string{
			"*IDN?": "Rohde&Schwarz,FSW-26,1312.8000K26/101234,5.00",
		},
	}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeInstrument) addr() string {
	return f.ln.Addr().String()
}

func (f *fakeInstrument) setReply(cmd, reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[cmd] = reply
}

// setDelay makes the server wait d before answering cmd.
func (f *fakeInstrument) setDelay(cmd string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delays == nil {
		f.delays = make(map[string]time.Duration)
	}
	f.delays[cmd] = d
}

func (f *fakeInstrument) delay(cmd string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delays[cmd]
}

func (f *fakeInstrument) pushError(e string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errQueue = append(f.errQueue, e)
}

func (f *fakeInstrument) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func (f *fakeInstrument) lastID() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return 0
	}
	return f.ids[len(f.ids)-1]
}

func (f *fakeInstrument) serve() {
	sc, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer sc.Close()
	if _, err := readMessage(sc, 0); err != nil {
		return
	}
	ctrl, param := initializeResponse(protocolVersion, 42, false, false)
	writeMessage(sc, newMessage(msgInitializeResponse, ctrl, param, nil))

	ac, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer ac.Close()
	if _, err := readMessage(ac, 0); err != nil {
		return
	}
	writeMessage(ac, newMessage(msgAsyncInitializeResponse, 0, 0x1234, nil))

	go f.serveAsync(ac)
	f.serveSync(sc)
}

func (f *fakeInstrument) serveSync(c net.Conn) {
	var pending []byte
	for {
		m, err := readMessage(c, 0)
		if err != nil {
			return
		}
		switch m.typ {
		case msgData:
			pending = append(pending, m.payload...)
		case msgDataEnd:
			cmd := string(append(pending, m.payload...))
			pending = nil
			if reply, ok := f.handle(cmd, m.param); ok {
				time.Sleep(f.delay(cmd))
				writeMessage(c, newMessage(msgDataEnd, 0, m.param, []byte(reply+"\n")))
			}
		case msgDeviceClearComplete:
			writeMessage(c, newMessage(msgDeviceClearAcknowledge, 0, 0, nil))
		case msgTrigger:
			f.handle("<trigger>", m.param)
		}
	}
}

func (f *fakeInstrument) handle(cmd string, id uint32) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, cmd)
	f.ids = append(f.ids, id)

	if cmd == gospecan.SystemErrorQuery {
		if len(f.errQueue) == 0 {
			return `0,"No error"`, true
		}
		e := f.errQueue[0]
		f.errQueue = f.errQueue[1:]
		return e, true
	}
	reply, ok := f.replies[cmd]
	return reply, ok
}

func (f *fakeInstrument) serveAsync(c net.Conn) {
	for {
		m, err := readMessage(c, 0)
		if err != nil {
			return
		}
		switch m.typ {
		case msgAsyncMaximumMessageSize:
			writeMessage(c, newMessage(msgAsyncMaximumMessageSizeResp, 0, 0, putUint64(f.maxSize)))
		case msgAsyncLock:
			writeMessage(c, newMessage(msgAsyncLockResponse, ctrlLockSuccess, 0, nil))
		case msgAsyncStatusQuery:
			writeMessage(c, newMessage(msgAsyncStatusResponse, 0x10, 0, nil))
		case msgAsyncDeviceClear:
			writeMessage(c, newMessage(msgAsyncDeviceClear, 0, 0, nil))
		case msgAsyncRemoteLocalControl:
			writeMessage(c, newMessage(msgAsyncRemoteLocalResponse, 0, 0, nil))
		}
	}
}

func dialFake(t *testing.T, f *fakeInstrument) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, f.addr(), &Config{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Connect(t *testing.T) {
	f := newFakeInstrument(t)
	c := dialFake(t, f)

	info := c.Info()
	assert.Equal(t, uint16(42), info.SessionID)
	assert.Equal(t, uint8(2), info.VersionMajor)
	assert.Equal(t, uint16(0x1234), info.ServerVendorID)
	assert.Equal(t, uint64(1<<20), info.MaxMessageSize)
	assert.True(t, c.IsConnected())
}

func TestClient_Query(t *testing.T) {
	f := newFakeInstrument(t)
	c := dialFake(t, f)

	reply, err := c.Query("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "Rohde&Schwarz,FSW-26,1312.8000K26/101234,5.00", reply)
}

func TestClient_Write(t *testing.T) {
	f := newFakeInstrument(t)
	c := dialFake(t, f)

	require.NoError(t, c.Write("SENS:FREQ:CENT 1.0000000000000000e+09"))
	assert.Eventually(t, func() bool {
		cmds := f.commands()
		return len(cmds) == 1 && cmds[0] == "SENS:FREQ:CENT 1.0000000000000000e+09"
	}, time.Second, 10*time.Millisecond)
}

func TestClient_SegmentedWrite(t *testing.T) {
	f := newFakeInstrument(t)
	f.maxSize = 16
	c := dialFake(t, f)

	cmd := "CALC1:LIM1:UPP:DATA " + strings.Repeat("-10,", 10) + "-10"
	require.NoError(t, c.Write(cmd))
	assert.Eventually(t, func() bool {
		cmds := f.commands()
		return len(cmds) == 1 && cmds[0] == cmd
	}, time.Second, 10*time.Millisecond)
}

func TestClient_QueryTimeout(t *testing.T) {
	f := newFakeInstrument(t)
	c := dialFake(t, f)
	c.SetTimeout(50 * time.Millisecond)

	_, err := c.Query("INIT:IMM;*OPC?")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))

	var te interface{ Timeout() bool }
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Timeout())
}

func TestClient_LateReplyDiscarded(t *testing.T) {
	f := newFakeInstrument(t)
	f.setReply("FETC:SUMM:EVM?", "1.25,0.98")
	f.setReply("*IDN?", "Rohde&Schwarz,FSW-26")
	f.setDelay("FETC:SUMM:EVM?", 150*time.Millisecond)
	c := dialFake(t, f)

	c.SetTimeout(50 * time.Millisecond)
	_, err := c.Query("FETC:SUMM:EVM?")
	require.ErrorIs(t, err, ErrTimeout)

	// The EVM reply arrives while *IDN? is outstanding and must not be taken for its answer.
	c.SetTimeout(time.Second)
	idn, err := c.Query("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "Rohde&Schwarz,FSW-26", idn)

	reply, err := c.Query(gospecan.SystemErrorQuery)
	require.NoError(t, err)
	assert.Equal(t, `0,"No error"`, reply)
}

func TestClient_ReadMatchesLastWrite(t *testing.T) {
	f := newFakeInstrument(t)
	f.setReply("SENS:FREQ:CENT?", "1000000000")
	c := dialFake(t, f)

	require.NoError(t, c.Write("SENS:FREQ:CENT?"))
	data, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, "1000000000\n", string(data))
}

func TestClient_CheckStatus(t *testing.T) {
	f := newFakeInstrument(t)
	c := dialFake(t, f)
	f.pushError(`-113,"Undefined header;FOO:BAR"`)

	err := c.CheckStatus()
	var ie *gospecan.InstrumentError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, -113, ie.Code)
	assert.Equal(t, "Undefined header;FOO:BAR", ie.Message)

	assert.NoError(t, c.CheckStatus())
}

func TestClient_Driver(t *testing.T) {
	f := newFakeInstrument(t)
	c := dialFake(t, f)
	f.setReply("READ:SPEC:MOD?", "1,900.0e6,905.0e6,-12.3,-10.0,ABS,PASSED,2,905.0e6,910.0e6,-40.1,-35.0,REL,FAILED")

	d, err := gospecan.New(c)
	require.NoError(t, err)

	buf, err := d.FetchBuffer("gsm-modulation-spectrum", nil, 8, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Count())
	assert.Equal(t, []int{1, 2}, buf.Ints("index")[:2])
	assert.Equal(t, []float64{9.05e8, 9.10e8}, buf.Floats("stopFreq")[:2])
	assert.Equal(t, []int{0, 1}, buf.Ints("status")[:2])

	// the per-call timeout must not leak into the session
	assert.Equal(t, time.Second, c.Timeout())
	assert.Equal(t, []string{"READ:SPEC:MOD?", gospecan.SystemErrorQuery}, f.commands())
}

func TestClient_RemoteLock(t *testing.T) {
	f := newFakeInstrument(t)
	c := dialFake(t, f)
	ctx := context.Background()

	assert.ErrorIs(t, c.RemoteUnlock(ctx), ErrNotLocked)
	require.NoError(t, c.RemoteLock(ctx, time.Second))
	assert.True(t, c.Info().RemoteLocked)
	require.NoError(t, c.RemoteUnlock(ctx))
	assert.False(t, c.Info().RemoteLocked)
}

func TestClient_Status(t *testing.T) {
	f := newFakeInstrument(t)
	c := dialFake(t, f)

	stb, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(0x10), stb)
	assert.NoError(t, c.RemoteLocal(context.Background(), EnableRemote))
}

func TestClient_DeviceClear(t *testing.T) {
	f := newFakeInstrument(t)
	c := dialFake(t, f)

	_, err := c.Query("*IDN?")
	require.NoError(t, err)
	require.NoError(t, c.DeviceClear(context.Background()))

	require.NoError(t, c.Trigger())
	assert.Eventually(t, func() bool {
		return f.lastID() == initialMessageID
	}, time.Second, 10*time.Millisecond)
}

func TestClient_Closed(t *testing.T) {
	f := newFakeInstrument(t)
	c := dialFake(t, f)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.False(t, c.IsConnected())

	_, err := c.Query("*IDN?")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_NotConnected(t *testing.T) {
	c := NewClient(nil)
	assert.ErrorIs(t, c.Write("*RST"), ErrNotConnected)
	assert.Equal(t, 5*time.Second, c.Timeout())
}

func TestWithDefaultPort(t *testing.T) {
	assert.Equal(t, "10.0.0.5:4880", withDefaultPort("10.0.0.5"))
	assert.Equal(t, "10.0.0.5:5025", withDefaultPort("10.0.0.5:5025"))
	assert.Equal(t, "[fe80::1]:4880", withDefaultPort("fe80::1"))
}
