package trace

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter 是回放条件，零值字段匹配所有事件。
type Filter struct {
	SessionID  string
	Op         *Op
	Prefix     string // 命令前缀，大小写不敏感
	OnlyErrors bool
	Since      *time.Time
	Until      *time.Time
}

func (f *Filter) matches(e Event) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Op != nil && e.Op != *f.Op {
		return false
	}
	if f.Prefix != "" && !strings.HasPrefix(strings.ToUpper(e.Command), strings.ToUpper(f.Prefix)) {
		return false
	}
	if f.OnlyErrors && !e.Failed() {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !e.Timestamp.Before(*f.Until) {
		return false
	}
	return true
}

// Reader 逐条读取跟踪文件。
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader 打开跟踪文件，只返回匹配 filter 的事件。
func NewReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: newDecoder(f), filter: filter}, nil
}

// Next 返回下一个匹配的事件，结束时返回 io.EOF。
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		if err := r.decoder.Decode(&e); err != nil {
			return Event{}, err
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadFile 读取文件中全部匹配的事件。
func ReadFile(path string, filter Filter) ([]Event, error) {
	r, err := NewReader(path, filter)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var events []Event
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
}
