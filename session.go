package gospecan

import "time"

// Session 是驱动所依赖的传输/会话层。
// 实现只需支持严格同步的请求/响应：同一会话上同时最多一个未完成的命令。
type Session interface {
	// Write 发送一条 SCPI 命令（不含换行）。
	Write(cmd string) error

	// Query 发送命令并在当前会话超时内读取一行响应。
	Query(cmd string) (string, error)

	// Lock/Unlock 是会话的咨询锁，串行化每次交换。
	Lock()
	Unlock()

	// Timeout/SetTimeout 读写会话的操作完成超时。
	Timeout() time.Duration
	SetTimeout(d time.Duration)

	// CheckStatus 查询仪器错误状态，非空时返回 *InstrumentError。
	CheckStatus() error
}

// Querier 是只需 Query 的最小接口。
type Querier interface {
	Query(cmd string) (string, error)
}
