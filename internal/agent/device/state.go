package device

import (
	"time"

	"github.com/httprunner/FlashAgent/internal/probe"
)

// State 描述当前连接设备所处的唯一传输模式。
type State string

const (
	Disconnected            State = "disconnected"
	DebugBridgeUnauthorized State = "adb_unauthorized"
	DebugBridgeReady        State = "adb_ready"
	BootloaderReady         State = "bootloader_ready"
	PreloaderReady          State = "preloader_ready"
)

// Label 返回面向用户的描述。
func (s State) Label() string {
	switch s {
	case DebugBridgeUnauthorized:
		return "Device unauthorized"
	case DebugBridgeReady:
		return "ADB device connected"
	case BootloaderReady:
		return "Fastboot mode"
	case PreloaderReady:
		return "MTK preloader/BootROM"
	default:
		return "No device"
	}
}

// Snapshot 是 Store 对外发布的不可变值。
type Snapshot struct {
	State State `json:"state"`
	// PreloaderMode 在 PreloaderReady 时区分 preloader 与 brom。
	PreloaderMode probe.Detail `json:"preloader_mode,omitempty"`
	ChangedAt     time.Time    `json:"changed_at"`
	// Seq 每发布一次状态迁移加一。
	Seq uint64 `json:"seq"`
}

// Reconcile 按固定优先级合并三个探测结果：
// bootloader > preloader/BootROM > 调试桥（已授权或未授权）> Disconnected。
//
// 纯函数，不产生副作用。
func Reconcile(bridge, bootloader, preloader probe.Result) State {
	switch {
	case bootloader.Present:
		return BootloaderReady
	case preloader.Present:
		return PreloaderReady
	case bridge.Present && bridge.Detail == probe.DetailUnauthorized:
		return DebugBridgeUnauthorized
	case bridge.Present:
		return DebugBridgeReady
	default:
		return Disconnected
	}
}
