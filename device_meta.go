package flashagent

import (
	"context"
	"strings"

	"github.com/httprunner/FlashAgent/internal/agent/gate"
	"github.com/httprunner/FlashAgent/pkg/profile"
	"github.com/rs/zerolog/log"
)

// DeviceInfo 是通过 adb 读取的设备身份信息。
type DeviceInfo struct {
	Serial         string `json:"serial"`
	Model          string `json:"model"`
	AndroidVersion string `json:"android_version"`
	Platform       string `json:"platform"`
	Profile        string `json:"profile"`
}

// DeviceInfo 读取序列号、型号、系统版本与 SoC 平台，并匹配设备 profile。
// 需要 DebugBridgeReady；单个属性读取失败时留空。
func (a *Agent) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	serial, err := a.gate.RunDebugBridgeArgs(ctx, "get-serialno")
	if err != nil {
		return DeviceInfo{}, err
	}
	info := DeviceInfo{Serial: strings.TrimSpace(serial)}
	info.Model = a.getprop(ctx, "ro.product.model")
	info.AndroidVersion = a.getprop(ctx, "ro.build.version.release")
	info.Platform = a.getprop(ctx, "ro.board.platform")
	info.Profile = a.MatchProfile(info.Model, info.Platform)
	return info, nil
}

func (a *Agent) getprop(ctx context.Context, key string) string {
	out, err := a.gate.RunDebugBridgeArgs(ctx, "shell", "getprop", key)
	if err != nil {
		log.Debug().Err(err).Str("prop", key).Msg("getprop failed")
		return ""
	}
	return strings.TrimSpace(out)
}

// RootStatus 判断设备是否已 root：先尝试 `su -c id` 得到 uid=0，再看 su 是否存在。
func (a *Agent) RootStatus(ctx context.Context) (bool, error) {
	if _, err := a.gate.Authorize(gate.TransportDebugBridge); err != nil {
		return false, err
	}
	if out, err := a.gate.RunDebugBridgeArgs(ctx, "shell", "su", "-c", "id"); err == nil && strings.Contains(out, "uid=0") {
		return true, nil
	}
	if out, err := a.gate.RunDebugBridgeArgs(ctx, "shell", "which", "su"); err == nil && strings.TrimSpace(out) != "" {
		return true, nil
	}
	return false, nil
}

// MatchProfile 按型号再按 SoC 匹配 profile 目录中的设备名称。
func (a *Agent) MatchProfile(model, soc string) string {
	return profile.Match(a.loadProfiles(), model, soc)
}

func (a *Agent) loadProfiles() []profile.Profile {
	a.profilesOnce.Do(func() {
		profiles, err := profile.LoadDir(a.cfg.ProfileDir)
		if err != nil {
			log.Warn().Err(err).Str("dir", a.cfg.ProfileDir).Msg("load device profiles failed")
			return
		}
		a.profiles = profiles
		log.Debug().Int("count", len(profiles)).Str("dir", a.cfg.ProfileDir).Msg("device profiles loaded")
	})
	return a.profiles
}
