// Package trace 记录每次 SCPI 交换，用于事后分析。
//
// 事件以 CBOR 编码（整数键）追加写入文件，可由 Reader 按条件回放。
package trace

import "time"

// Op 表示交换类型。
type Op uint8

const (
	OpWrite Op = 0
	OpQuery Op = 1
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "WRITE"
	case OpQuery:
		return "QUERY"
	default:
		return "UNKNOWN"
	}
}

// Event 是一次完整交换的记录。
type Event struct {
	Timestamp time.Time     `cbor:"1,keyasint"`
	SessionID string        `cbor:"2,keyasint"`
	Op        Op            `cbor:"3,keyasint"`
	Command   string        `cbor:"4,keyasint"`
	Reply     string        `cbor:"5,keyasint,omitempty"`
	Duration  time.Duration `cbor:"6,keyasint"`
	Timeout   time.Duration `cbor:"7,keyasint,omitempty"`
	Error     string        `cbor:"8,keyasint,omitempty"`
}

// Failed 报告交换是否出错。
func (e Event) Failed() bool {
	return e.Error != ""
}
