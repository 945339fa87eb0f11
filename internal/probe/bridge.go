package probe

import (
	"context"
	"strings"
	"time"

	"github.com/httprunner/FlashAgent/internal/process"
	"github.com/httprunner/FlashAgent/internal/tools"
)

// Bridge 通过 `adb get-state` 探测调试桥。
type Bridge struct {
	base
}

// NewBridge 构建调试桥探测。
func NewBridge(runner process.Runner, provider tools.Provider, timeout time.Duration) *Bridge {
	return &Bridge{base: newBase(runner, provider, timeout)}
}

func (b *Bridge) Name() string { return "adb" }

// Probe 只认可字面值 device / unauthorized，其余一律 Absent。
func (b *Bridge) Probe(ctx context.Context) Result {
	res, ok := b.run(ctx, b.resolve(tools.ADB), "get-state")
	if !ok {
		return Absent()
	}
	return ParseBridgeState(res.Stdout)
}

// ParseBridgeState 解析 adb get-state 的输出。
func ParseBridgeState(out string) Result {
	switch strings.TrimSpace(out) {
	case "device":
		return Present(DetailAuthorized)
	case "unauthorized":
		return Present(DetailUnauthorized)
	default:
		return Absent()
	}
}
