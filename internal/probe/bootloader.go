package probe

import (
	"context"
	"strings"
	"time"

	"github.com/httprunner/FlashAgent/internal/process"
	"github.com/httprunner/FlashAgent/internal/tools"
)

// Bootloader 通过 `fastboot devices` 探测 bootloader 模式。
type Bootloader struct {
	base
}

// NewBootloader 构建 bootloader 探测。
func NewBootloader(runner process.Runner, provider tools.Provider, timeout time.Duration) *Bootloader {
	return &Bootloader{base: newBase(runner, provider, timeout)}
}

func (b *Bootloader) Name() string { return "fastboot" }

// Probe 输出非空即视为存在。
func (b *Bootloader) Probe(ctx context.Context) Result {
	res, ok := b.run(ctx, b.resolve(tools.Fastboot), "devices")
	if !ok {
		return Absent()
	}
	if strings.TrimSpace(res.Stdout) == "" {
		return Absent()
	}
	return Present(DetailNone)
}
