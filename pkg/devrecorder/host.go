package devrecorder

import (
	"context"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/httprunner/FlashAgent/internal/process"
)

var hostRunner process.Runner = process.NewExecRunner()

// HostID 尽力返回主机硬件 UUID：macOS 读取 system_profiler，
// Linux 依次读取 /etc/machine-id 与 /sys/class/dmi/id/product_uuid，其他平台返回空串。
func HostID(ctx context.Context) string {
	switch runtime.GOOS {
	case "darwin":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		res, err := hostRunner.Run(ctx, "system_profiler", "SPHardwareDataType")
		if err != nil || !res.Success() {
			return ""
		}
		return parseHardwareUUID(res.Stdout)
	case "linux":
		for _, path := range []string{"/etc/machine-id", "/sys/class/dmi/id/product_uuid"} {
			if id := readSystemFile(path); id != "" {
				return id
			}
		}
	}
	return ""
}

func parseHardwareUUID(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "Hardware UUID:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func readSystemFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
