package hislip

import "testing"

func TestState_MessageID(t *testing.T) {
	s := newState()

	if got := s.lastSent(); got != messageIDClear {
		t.Errorf("lastSent before any message = 0x%08x, want 0x%08x", got, messageIDClear)
	}

	id1 := s.nextMessageID()
	if id1 != initialMessageID {
		t.Errorf("first id = 0x%08x, want 0x%08x", id1, initialMessageID)
	}
	id2 := s.nextMessageID()
	if id2 != initialMessageID+2 {
		t.Errorf("second id = 0x%08x, want 0x%08x", id2, initialMessageID+2)
	}
	if got := s.lastSent(); got != id2 {
		t.Errorf("lastSent = 0x%08x, want 0x%08x", got, id2)
	}

	s.reset()
	if got := s.lastSent(); got != messageIDClear {
		t.Errorf("lastSent after reset = 0x%08x", got)
	}
	if got := s.nextMessageID(); got != initialMessageID {
		t.Errorf("id after reset = 0x%08x", got)
	}
}

func TestState_Wraps(t *testing.T) {
	s := newState()
	s.messageID = 0xfffffffe
	s.nextMessageID()
	if got := s.nextMessageID(); got != 0 {
		t.Errorf("id after wrap = 0x%08x, want 0", got)
	}
}

func TestState_Info(t *testing.T) {
	s := newState()
	if got := s.snapshot().MaxMessageSize; got != defaultMaxMessageSize {
		t.Errorf("default MaxMessageSize = %d", got)
	}
	s.update(func(i *Info) {
		i.SessionID = 7
		i.RemoteLocked = true
	})
	info := s.snapshot()
	if info.SessionID != 7 || !info.RemoteLocked {
		t.Errorf("snapshot = %+v", info)
	}
}
