package hislip

import "sync"

// Info 是初始化阶段协商得到的会话信息。
type Info struct {
	SessionID          uint16
	VersionMajor       uint8
	VersionMinor       uint8
	ServerVendorID     uint16
	SupportsOverlap    bool
	EncryptionRequired bool
	Encrypted          bool
	MaxMessageSize     uint64 // 服务器可接收的最大负载
	RemoteLocked       bool
}

// state 跟踪同步模式下的消息 ID 与会话协商结果。
type state struct {
	mu sync.Mutex

	info       Info
	messageID  uint32
	lastSentID uint32
	sent       bool
}

func newState() *state {
	return &state{
		messageID: initialMessageID,
		info:      Info{MaxMessageSize: defaultMaxMessageSize},
	}
}

// nextMessageID 返回下一条消息的 ID 并记为最近发送。ID 按 2 递增并回绕。
func (s *state) nextMessageID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.messageID
	s.messageID += 2
	s.lastSentID = id
	s.sent = true
	return id
}

// lastSent 返回最近发送的消息 ID，从未发送时为 messageIDClear。
func (s *state) lastSent() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sent {
		return messageIDClear
	}
	return s.lastSentID
}

// reset 在设备清除后重置消息 ID。
func (s *state) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageID = initialMessageID
	s.sent = false
}

func (s *state) update(fn func(*Info)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.info)
}

func (s *state) snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}
