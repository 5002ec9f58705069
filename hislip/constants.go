// Package hislip 是 gospecan 的 HiSLIP (IVI-6.1) 传输层。
//
// 只实现同步模式：同一时刻最多一个未完成的命令，响应在发送方的
// goroutine 中直接读取，不启动后台读取循环。Client 满足 gospecan.Session。
package hislip

// 协议常量
const (
	DefaultPort = 4880

	prologue   = "HS"
	headerSize = 16

	// 第一个消息 ID，此后每条消息加 2。
	initialMessageID uint32 = 0xffffff00

	// 尚未发送任何消息时使用的"最近消息 ID"。
	messageIDClear uint32 = 0xfffffefe

	// 客户端提出的协议版本。
	VersionMajor = 2
	VersionMinor = 0

	protocolVersion uint16 = VersionMajor<<8 | VersionMinor

	// 客户端愿意接收的最大负载。
	defaultMaxMessageSize uint64 = 64 << 20
)

// 使用到的消息类型（IVI-6.1 表 4）
const (
	msgInitialize                  uint8 = 0
	msgInitializeResponse          uint8 = 1
	msgFatalError                  uint8 = 2
	msgError                       uint8 = 3
	msgAsyncLock                   uint8 = 4
	msgAsyncLockResponse           uint8 = 5
	msgData                        uint8 = 6
	msgDataEnd                     uint8 = 7
	msgDeviceClearComplete         uint8 = 8
	msgDeviceClearAcknowledge      uint8 = 9
	msgAsyncRemoteLocalControl     uint8 = 10
	msgAsyncRemoteLocalResponse    uint8 = 11
	msgTrigger                     uint8 = 12
	msgInterrupted                 uint8 = 13
	msgAsyncInterrupted            uint8 = 14
	msgAsyncMaximumMessageSize     uint8 = 15
	msgAsyncMaximumMessageSizeResp uint8 = 16
	msgAsyncInitialize             uint8 = 17
	msgAsyncInitializeResponse     uint8 = 18
	msgAsyncDeviceClear            uint8 = 19
	msgAsyncServiceRequest         uint8 = 20
	msgAsyncStatusQuery            uint8 = 21
	msgAsyncStatusResponse         uint8 = 22
	msgStartTLS                    uint8 = 28
	msgAsyncStartTLS               uint8 = 29
	msgAsyncStartTLSResponse       uint8 = 30
)

// 控制码
const (
	ctrlRMTDelivered uint8 = 0x01

	ctrlLockRelease uint8 = 0
	ctrlLockRequest uint8 = 1

	ctrlLockFail    uint8 = 0
	ctrlLockSuccess uint8 = 1
	ctrlLockError   uint8 = 3

	ctrlTLSSuccess uint8 = 0
)

// RemoteLocal 控制码（AsyncRemoteLocalControl）
const (
	DisableRemote  uint8 = 0
	EnableRemote   uint8 = 1
	DisableAndGTL  uint8 = 2
	EnableAndGTL   uint8 = 3
	EnableAndLLO   uint8 = 4
	EnableAndGTLLO uint8 = 5
	EnableLockout  uint8 = 6
)
