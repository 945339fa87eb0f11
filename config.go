package flashagent

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/httprunner/FlashAgent/internal/agent/device"
	"github.com/httprunner/FlashAgent/internal/config"
	"github.com/httprunner/FlashAgent/internal/probe"
	"github.com/httprunner/FlashAgent/internal/tools"
)

// 调试桥探测后端。
const (
	BridgeBackendExec = "exec"
	BridgeBackendGADB = "gadb"
)

const defaultEventBuffer = 64

// Config 控制 Agent 行为，零值字段使用默认值。
type Config struct {
	// ToolsDir 为空时使用 $XDG_DATA_HOME/FlashAgent/platform-tools。
	ToolsDir     string
	PollInterval time.Duration
	ProbeTimeout time.Duration
	ConfirmPolls int
	// BridgeBackend 为 exec（adb get-state）或 gadb（adb server 协议）。
	BridgeBackend  string
	JournalPath    string
	DisableJournal bool
	ProfileDir     string
	EventBuffer    int
}

// ConfigFromEnv 从环境变量（含 .env）读取配置。
func ConfigFromEnv() Config {
	return Config{
		ToolsDir:       config.String(config.EnvPlatformToolsDir, ""),
		PollInterval:   config.Duration(config.EnvPollInterval, device.DefaultPollInterval),
		ProbeTimeout:   config.Duration(config.EnvProbeTimeout, probe.DefaultTimeout),
		ConfirmPolls:   config.Int(config.EnvConfirmPolls, 1),
		BridgeBackend:  config.String(config.EnvBridgeBackend, BridgeBackendExec),
		JournalPath:    config.String(config.EnvJournalDBPath, ""),
		DisableJournal: config.Bool(config.EnvDisableJournal, false),
		ProfileDir:     config.String(config.EnvProfileDir, ""),
	}
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.ToolsDir) == "" {
		c.ToolsDir = tools.DefaultDir()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = device.DefaultPollInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = probe.DefaultTimeout
	}
	if c.ConfirmPolls <= 0 {
		c.ConfirmPolls = 1
	}
	c.BridgeBackend = strings.ToLower(strings.TrimSpace(c.BridgeBackend))
	if c.BridgeBackend == "" {
		c.BridgeBackend = BridgeBackendExec
	}
	if strings.TrimSpace(c.ProfileDir) == "" {
		c.ProfileDir = filepath.Join(tools.DataDir(), "devices")
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	return c
}
