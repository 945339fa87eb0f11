package diagnostics

import "os"

// KernelStatus 描述主机内核配置的可用程度。
type KernelStatus string

const (
	KernelUsable      KernelStatus = "Usable"
	KernelLimited     KernelStatus = "Limited"
	KernelUnsupported KernelStatus = "Unsupported"
)

// KernelDetails 是 /proc/config.gz 的探测结果。
type KernelDetails struct {
	Status         KernelStatus `json:"status"`
	ConfigPresent  bool         `json:"config_present"`
	ConfigReadable bool         `json:"config_readable"`
}

var kernelConfigPath = "/proc/config.gz"

// DetectKernel 检查主机内核配置是否存在且可读。
func DetectKernel() KernelDetails {
	d := KernelDetails{Status: KernelUnsupported}
	if _, err := os.Stat(kernelConfigPath); err != nil {
		return d
	}
	d.ConfigPresent = true
	d.Status = KernelLimited
	if f, err := os.Open(kernelConfigPath); err == nil {
		f.Close()
		d.ConfigReadable = true
		d.Status = KernelUsable
	}
	return d
}

// Explanation 返回状态说明。
func (d KernelDetails) Explanation() string {
	switch d.Status {
	case KernelUsable:
		return "Kernel configuration is accessible and can be inspected."
	case KernelLimited:
		return "Kernel configuration exists but is not readable without elevated permissions."
	default:
		return "No Linux kernel environment detected on this system."
	}
}
