package gospecan

import (
	"strconv"
	"strings"
)

// SystemErrorQuery 是读取仪器错误队列的 SCPI 查询。
const SystemErrorQuery = "SYST:ERR?"

// statusByteQuery 读取 IEEE 488.2 状态字节；位 2 (EAV) 表示错误队列非空。
const (
	statusByteQuery   = "*STB?"
	stbErrorAvailable = 0x04
)

// ParseSystemError 解析 SYST:ERR? 响应，格式为 <code>,"<message>"。
// 错误码 0 表示队列为空，返回 nil, nil。
func ParseSystemError(reply string) (*InstrumentError, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, &ProtocolError{Command: SystemErrorQuery, Field: "code", Reason: "empty reply", Occurrences: 1}
	}
	codeTok, msg, _ := strings.Cut(reply, ",")
	codeTok = strings.TrimSpace(codeTok)
	code, err := strconv.Atoi(strings.TrimPrefix(codeTok, "+"))
	if err != nil {
		return nil, &ProtocolError{Command: SystemErrorQuery, Field: "code", Token: codeTok, Reason: "not an integer", Occurrences: 1}
	}
	if code == 0 {
		return nil, nil
	}
	return NewInstrumentError(code, unquote(strings.TrimSpace(msg))), nil
}

// QuerySystemError 通过 q 读取一条错误队列记录。
// 仪器无错误时返回 nil；否则返回 *InstrumentError 或传输/协议错误。
func QuerySystemError(q Querier) error {
	reply, err := q.Query(SystemErrorQuery)
	if err != nil {
		return err
	}
	ie, err := ParseSystemError(reply)
	if err != nil {
		return err
	}
	if ie != nil {
		return ie
	}
	return nil
}
