// Package risk 按分区名给刷写请求标注风险等级。
//
// 分级只用于确认与审计，授权由 gate 的状态检查负责。
package risk

import "strings"

// Tier 风险等级，Unknown < Medium < High < Critical。
type Tier int

const (
	Unknown Tier = iota
	Medium
	High
	Critical
)

func (t Tier) String() string {
	switch t {
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText 以小写名称序列化。
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

type entry struct {
	tier   Tier
	reason string
}

var table = map[string]entry{}

func register(tier Tier, reason string, slotted bool, names ...string) {
	for _, name := range names {
		table[name] = entry{tier: tier, reason: reason}
		if slotted {
			table[name+"_a"] = entry{tier: tier, reason: reason}
			table[name+"_b"] = entry{tier: tier, reason: reason}
		}
	}
}

func init() {
	register(Critical, "boot chain", true, "preloader", "bootloader", "lk", "lk2")
	register(Critical, "verified boot", true, "vbmeta", "vbmeta_system", "vbmeta_vendor")
	register(High, "kernel / ramdisk", true, "boot", "vendor_boot", "init_boot")
	register(High, "device tree", true, "dtbo")
	register(Medium, "system image", true, "system", "vendor")
}

// Classify 对分区名（不区分大小写）做纯查表；未知分区返回 Unknown。
func Classify(partition string) Tier {
	return table[normalize(partition)].tier
}

// Describe 返回等级与原因，如 (Critical, "boot chain")。
func Describe(partition string) (Tier, string) {
	e, ok := table[normalize(partition)]
	if !ok {
		return Unknown, "user-specified"
	}
	return e.tier, e.reason
}

// Label 返回等级的展示文本，如 "CRITICAL"。
func (t Tier) Label() string {
	return strings.ToUpper(t.String())
}

// Summary 返回带原因的展示文本，如 "CRITICAL: boot chain"。
func Summary(partition string) string {
	tier, reason := Describe(partition)
	return tier.Label() + ": " + reason
}

func normalize(partition string) string {
	return strings.ToLower(strings.TrimSpace(partition))
}
