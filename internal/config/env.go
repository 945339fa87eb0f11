package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/httprunner/FlashAgent/internal/env"
)

// 环境变量名集中定义，cmd 与根包共同使用。
const (
	EnvPollInterval      = "FLASHAGENT_POLL_INTERVAL"
	EnvProbeTimeout      = "FLASHAGENT_PROBE_TIMEOUT"
	EnvConfirmPolls      = "FLASHAGENT_CONFIRM_POLLS"
	EnvPlatformToolsDir  = "FLASHAGENT_PLATFORM_TOOLS_DIR"
	EnvBridgeBackend     = "FLASHAGENT_BRIDGE_BACKEND"
	EnvJournalDBPath     = "FLASHAGENT_JOURNAL_DB_PATH"
	EnvDisableJournal    = "FLASHAGENT_DISABLE_JOURNAL"
	EnvProfileDir        = "FLASHAGENT_PROFILE_DIR"
	EnvStateBitableApp   = "FLASHAGENT_STATE_APP_TOKEN"
	EnvStateBitableTable = "FLASHAGENT_STATE_TABLE_ID"
)

// String returns the trimmed environment variable or fallback when unset.
func String(key, fallback string) string {
	_ = env.Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Duration parses a time duration from environment or returns fallback.
func Duration(key string, fallback time.Duration) time.Duration {
	_ = env.Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// Int returns an integer environment variable or fallback when invalid.
func Int(key string, fallback int) int {
	_ = env.Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Bool parses a boolean environment variable.
func Bool(key string, fallback bool) bool {
	_ = env.Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		lower := strings.ToLower(val)
		if lower == "1" || lower == "true" || lower == "yes" {
			return true
		}
		if lower == "0" || lower == "false" || lower == "no" {
			return false
		}
	}
	return fallback
}
