package hislip

import (
	"encoding/binary"
	"fmt"
	"io"
)

var msgNames = map[uint8]string{
	msgInitialize:                  "Initialize",
	msgInitializeResponse:          "InitializeResponse",
	msgFatalError:                  "FatalError",
	msgError:                       "Error",
	msgAsyncLock:                   "AsyncLock",
	msgAsyncLockResponse:           "AsyncLockResponse",
	msgData:                        "Data",
	msgDataEnd:                     "DataEnd",
	msgDeviceClearComplete:         "DeviceClearComplete",
	msgDeviceClearAcknowledge:      "DeviceClearAcknowledge",
	msgAsyncRemoteLocalControl:     "AsyncRemoteLocalControl",
	msgAsyncRemoteLocalResponse:    "AsyncRemoteLocalResponse",
	msgTrigger:                     "Trigger",
	msgInterrupted:                 "Interrupted",
	msgAsyncInterrupted:            "AsyncInterrupted",
	msgAsyncMaximumMessageSize:     "AsyncMaximumMessageSize",
	msgAsyncMaximumMessageSizeResp: "AsyncMaximumMessageSizeResponse",
	msgAsyncInitialize:             "AsyncInitialize",
	msgAsyncInitializeResponse:     "AsyncInitializeResponse",
	msgAsyncDeviceClear:            "AsyncDeviceClear",
	msgAsyncServiceRequest:         "AsyncServiceRequest",
	msgAsyncStatusQuery:            "AsyncStatusQuery",
	msgAsyncStatusResponse:         "AsyncStatusResponse",
	msgStartTLS:                    "StartTLS",
	msgAsyncStartTLS:               "AsyncStartTLS",
	msgAsyncStartTLSResponse:       "AsyncStartTLSResponse",
}

func msgName(t uint8) string {
	if n, ok := msgNames[t]; ok {
		return n
	}
	if t >= 128 {
		return fmt.Sprintf("VendorSpecific(%d)", t)
	}
	return fmt.Sprintf("Unknown(%d)", t)
}

// header 是 16 字节消息头，网络上为大端序。
type header struct {
	typ    uint8
	ctrl   uint8
	param  uint32
	length uint64
}

func (h header) String() string {
	return fmt.Sprintf("%s ctrl=0x%02x param=0x%08x len=%d", msgName(h.typ), h.ctrl, h.param, h.length)
}

func (h header) put(b []byte) {
	b[0], b[1] = prologue[0], prologue[1]
	b[2] = h.typ
	b[3] = h.ctrl
	binary.BigEndian.PutUint32(b[4:8], h.param)
	binary.BigEndian.PutUint64(b[8:16], h.length)
}

func parseHeader(b []byte) (header, error) {
	if b[0] != prologue[0] || b[1] != prologue[1] {
		return header{}, fmt.Errorf("%w: %q", ErrInvalidPrologue, b[:2])
	}
	return header{
		typ:    b[2],
		ctrl:   b[3],
		param:  binary.BigEndian.Uint32(b[4:8]),
		length: binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// message 是完整的 HiSLIP 消息。
type message struct {
	header
	payload []byte
}

func newMessage(typ, ctrl uint8, param uint32, payload []byte) *message {
	return &message{
		header:  header{typ: typ, ctrl: ctrl, param: param, length: uint64(len(payload))},
		payload: payload,
	}
}

// readMessage 读取一条消息。负载超过 limit（>0）时返回 ErrMessageTooLarge，
// 此时连接上的字节流已不可用。
func readMessage(r io.Reader, limit uint64) (*message, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	h, err := parseHeader(buf[:])
	if err != nil {
		return nil, err
	}
	if limit > 0 && h.length > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, h.length, limit)
	}
	m := &message{header: h}
	if h.length > 0 {
		m.payload = make([]byte, h.length)
		if _, err := io.ReadFull(r, m.payload); err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
	}
	return m, nil
}

func writeMessage(w io.Writer, m *message) error {
	buf := make([]byte, headerSize+len(m.payload))
	m.header.length = uint64(len(m.payload))
	m.header.put(buf)
	copy(buf[headerSize:], m.payload)
	_, err := w.Write(buf)
	return err
}

// initializeParam: [client_protocol_version(16) | vendor_id(16)]
func initializeParam(version, vendorID uint16) uint32 {
	return uint32(version)<<16 | uint32(vendorID)
}

// InitializeResponse 的控制码位
const (
	respOverlap    uint8 = 0x01
	respEncryption uint8 = 0x02
)

// parseInitializeResponse 拆分 InitializeResponse：
// 参数为 [server_protocol_version(16) | session_id(16)]，控制码携带 overlap 与加密位。
func parseInitializeResponse(ctrl uint8, param uint32) (version, sessionID uint16, overlap, encrypt bool) {
	return uint16(param >> 16), uint16(param), ctrl&respOverlap != 0, ctrl&respEncryption != 0
}

func initializeResponse(version, sessionID uint16, overlap, encrypt bool) (uint8, uint32) {
	var ctrl uint8
	if overlap {
		ctrl |= respOverlap
	}
	if encrypt {
		ctrl |= respEncryption
	}
	return ctrl, uint32(version)<<16 | uint32(sessionID)
}

func splitVersion(v uint16) (major, minor uint8) {
	return uint8(v >> 8), uint8(v)
}

func putUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
