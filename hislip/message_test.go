package hislip

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeader_PutParse(t *testing.T) {
	tests := []struct {
		name string
		h    header
	}{
		{"Initialize", header{typ: msgInitialize, param: initializeParam(protocolVersion, 0x1234), length: 7}},
		{"DataEnd", header{typ: msgDataEnd, ctrl: ctrlRMTDelivered, param: initialMessageID, length: 100}},
		{"AsyncLock", header{typ: msgAsyncLock, ctrl: ctrlLockRequest, param: 5000}},
		{"FatalError", header{typ: msgFatalError, ctrl: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, headerSize)
			tt.h.put(buf)
			if string(buf[:2]) != prologue {
				t.Fatalf("prologue = %q, want %q", buf[:2], prologue)
			}
			got, err := parseHeader(buf)
			if err != nil {
				t.Fatalf("parseHeader failed: %v", err)
			}
			if got != tt.h {
				t.Errorf("header = %+v, want %+v", got, tt.h)
			}
		})
	}
}

func TestParseHeader_InvalidPrologue(t *testing.T) {
	buf := make([]byte, headerSize)
	copy(buf, "XX")
	_, err := parseHeader(buf)
	if !errors.Is(err, ErrInvalidPrologue) {
		t.Errorf("err = %v, want ErrInvalidPrologue", err)
	}
}

func TestReadWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	if err := writeMessage(&buf, newMessage(msgDataEnd, ctrlRMTDelivered, 0xffffff02, []byte("*IDN?"))); err != nil {
		t.Fatalf("writeMessage failed: %v", err)
	}
	if buf.Len() != headerSize+5 {
		t.Fatalf("encoded length = %d, want %d", buf.Len(), headerSize+5)
	}

	m, err := readMessage(&buf, 0)
	if err != nil {
		t.Fatalf("readMessage failed: %v", err)
	}
	if m.typ != msgDataEnd || m.ctrl != ctrlRMTDelivered || m.param != 0xffffff02 {
		t.Errorf("header = %s", m.header)
	}
	if string(m.payload) != "*IDN?" {
		t.Errorf("payload = %q, want *IDN?", m.payload)
	}
}

func TestReadMessage_Limit(t *testing.T) {
	var buf bytes.Buffer
	if err := writeMessage(&buf, newMessage(msgDataEnd, 0, 0, make([]byte, 64))); err != nil {
		t.Fatal(err)
	}
	_, err := readMessage(&buf, 32)
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("err = %v, want ErrMessageTooLarge", err)
	}
}

func TestInitializeResponse(t *testing.T) {
	tests := []struct {
		version   uint16
		sessionID uint16
		overlap   bool
		encrypt   bool
	}{
		{protocolVersion, 1, false, false},
		{0x0101, 0xbeef, true, false},
		{protocolVersion, 0xffff, true, true},
	}
	for _, tt := range tests {
		ctrl, param := initializeResponse(tt.version, tt.sessionID, tt.overlap, tt.encrypt)
		v, id, o, e := parseInitializeResponse(ctrl, param)
		if v != tt.version || id != tt.sessionID || o != tt.overlap || e != tt.encrypt {
			t.Errorf("roundtrip(%+v) = %04x %04x %v %v", tt, v, id, o, e)
		}
	}

	major, minor := splitVersion(protocolVersion)
	if major != 2 || minor != 0 {
		t.Errorf("splitVersion = %d.%d, want 2.0", major, minor)
	}
}

func TestMsgName(t *testing.T) {
	if got := msgName(msgAsyncStatusQuery); got != "AsyncStatusQuery" {
		t.Errorf("msgName = %s", got)
	}
	if got := msgName(200); got != "VendorSpecific(200)" {
		t.Errorf("msgName(200) = %s", got)
	}
	if got := msgName(99); got != "Unknown(99)" {
		t.Errorf("msgName(99) = %s", got)
	}
}

func TestErrorFromMessage(t *testing.T) {
	err := errorFromMessage(newMessage(msgFatalError, 3, 0, []byte("busy")))
	if !IsFatalError(err) {
		t.Fatalf("expected FatalError, got %v", err)
	}
	if err.Error() != "hislip fatal error 3: maximum number of clients exceeded (busy)" {
		t.Errorf("message = %q", err.Error())
	}

	err = errorFromMessage(newMessage(msgError, 4, 0, nil))
	if !IsServerError(err) {
		t.Fatalf("expected ServerError, got %v", err)
	}

	if err := errorFromMessage(newMessage(msgDataEnd, 0, 0, nil)); err != nil {
		t.Errorf("DataEnd produced error %v", err)
	}
}
