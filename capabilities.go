package flashagent

import (
	"context"
	"os"
	"time"

	"github.com/httprunner/FlashAgent/internal/agent/device"
	"github.com/httprunner/FlashAgent/internal/probe"
	"github.com/httprunner/FlashAgent/pkg/devrecorder"
	"github.com/httprunner/FlashAgent/pkg/diagnostics"
	"github.com/httprunner/FlashAgent/pkg/storage"
	"github.com/rs/zerolog/log"
)

// Capabilities 汇总当前可用的访问通道。
type Capabilities struct {
	Adb         bool   `json:"adb"`
	Fastboot    bool   `json:"fastboot"`
	Preloader   bool   `json:"preloader"`
	BootROM     bool   `json:"brom"`
	Description string `json:"description"`
}

// EvaluateCapabilities 由快照推导能力；preloader 与 BootROM 都计为 Preloader。
func EvaluateCapabilities(snap device.Snapshot) Capabilities {
	c := Capabilities{
		Adb:      snap.State == device.DebugBridgeReady,
		Fastboot: snap.State == device.BootloaderReady,
	}
	if snap.State == device.PreloaderReady {
		c.Preloader = true
		c.BootROM = snap.PreloaderMode == probe.DetailBootROM
	}
	switch {
	case c.Preloader:
		c.Description = "BROM / Preloader access detected (dangerous)"
	case c.Fastboot:
		c.Description = "Fastboot mode available"
	case c.Adb:
		c.Description = "ADB access available"
	case snap.State == device.DebugBridgeUnauthorized:
		c.Description = "ADB device waiting for authorization"
	default:
		c.Description = "No active MediaTek interface"
	}
	return c
}

// Capabilities 返回当前快照对应的能力。
func (a *Agent) Capabilities() Capabilities {
	return EvaluateCapabilities(a.store.Load())
}

const diagnosticsHistory = 100

// ExportDiagnostics 把状态、最近日志与审计记录打包写到 dir，返回 zip 路径。
func (a *Agent) ExportDiagnostics(ctx context.Context, dir string) (string, error) {
	snap := a.store.Load()
	report := diagnostics.Report{
		Generated:    time.Now(),
		Version:      Version,
		Host:         hostname(ctx),
		Snapshot:     snap,
		Capabilities: EvaluateCapabilities(snap).Description,
		ToolsReady:   a.tools.Installed(),
		Kernel:       diagnostics.DetectKernel(),
		Logs:         a.logs.Lines(),
	}
	if dir, ok := a.tools.(interface{ Root() string }); ok {
		report.ToolsDir = dir.Root()
	}
	if snap.State == device.DebugBridgeReady {
		if info, err := a.DeviceInfo(ctx); err == nil {
			report.Profile = info.Profile
			report.DeviceInfo = map[string]string{
				"serial":   info.Serial,
				"model":    info.Model,
				"android":  info.AndroidVersion,
				"platform": info.Platform,
			}
		}
	}
	if a.journal != nil {
		report.Transitions = a.recentTransitions(ctx)
		report.Flashes = a.recentFlashes(ctx)
	}
	return diagnostics.Export(dir, report)
}

func (a *Agent) recentTransitions(ctx context.Context) []storage.Transition {
	rows, err := a.journal.RecentTransitions(ctx, diagnosticsHistory)
	if err != nil {
		log.Warn().Err(err).Msg("read transitions for diagnostics failed")
		return []storage.Transition{}
	}
	if rows == nil {
		rows = []storage.Transition{}
	}
	return rows
}

func (a *Agent) recentFlashes(ctx context.Context) []storage.FlashEntry {
	rows, err := a.journal.RecentFlashes(ctx, diagnosticsHistory)
	if err != nil {
		log.Warn().Err(err).Msg("read flash audits for diagnostics failed")
		return []storage.FlashEntry{}
	}
	if rows == nil {
		rows = []storage.FlashEntry{}
	}
	return rows
}

func hostname(ctx context.Context) string {
	if id := devrecorder.HostID(ctx); id != "" {
		return id
	}
	name, _ := os.Hostname()
	return name
}
