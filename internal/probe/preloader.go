package probe

import (
	"context"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/httprunner/FlashAgent/internal/process"
)

// MediaTek USB vendor ID.
const mediatekVID = "0e8d"

// Preloader 通过系统 USB 枚举（lsusb / Get-PnpDevice）探测 MediaTek preloader 与 BootROM。
//
// 这是最不可靠的信号：依赖对系统工具输出的字符串匹配，因此优先级低于 bootloader，
// 也不应被当作权威结论。
type Preloader struct {
	base
	goos string
}

// NewPreloader 构建 preloader/BootROM 探测。
func NewPreloader(runner process.Runner, timeout time.Duration) *Preloader {
	return &Preloader{base: newBase(runner, nil, timeout), goos: runtime.GOOS}
}

func (p *Preloader) Name() string { return "mtk-usb" }

// Probe 在 Windows 上查询 PnP 设备，其余平台使用 lsusb。
func (p *Preloader) Probe(ctx context.Context) Result {
	var (
		res process.Result
		ok  bool
	)
	if p.goos == "windows" {
		res, ok = p.run(ctx, "powershell", "-NoProfile", "-Command",
			"Get-PnpDevice -PresentOnly | Where-Object { $_.InstanceId -match 'VID_0E8D' } | Format-List FriendlyName,InstanceId")
	} else {
		res, ok = p.run(ctx, "lsusb")
	}
	if !ok {
		return Absent()
	}
	return ParseUSBListing(res.Stdout)
}

// ParseUSBListing 在 USB 枚举文本中按 VID/PID 查找处于下载模式的 MediaTek 设备。
// 只认已知的模式 PID（BootROM 0003，preloader 2000，DA 2001/20ff），
// 同一厂商的 Wi-Fi/蓝牙等外设不会被误判。
func ParseUSBListing(out string) Result {
	found := Absent()
	for _, line := range strings.Split(strings.ToLower(out), "\n") {
		pid, ok := mediatekPID(line)
		if !ok {
			continue
		}
		detail, known := modePIDs[pid]
		if !known {
			if !strings.Contains(line, "preloader") {
				continue
			}
			detail = DetailPreloader
		}
		// BootROM 优先：同时出现时说明设备刚掉回 BROM。
		if detail == DetailBootROM {
			return Present(DetailBootROM)
		}
		found = Present(detail)
	}
	return found
}

var (
	// lsusb: "ID 0e8d:2000"；Get-PnpDevice: "VID_0E8D&PID_2000"
	lsusbIDPattern = regexp.MustCompile(`\bid ` + mediatekVID + `:([0-9a-f]{4})\b`)
	pnpIDPattern   = regexp.MustCompile(`vid_` + mediatekVID + `&pid_([0-9a-f]{4})`)

	modePIDs = map[string]Detail{
		"0003": DetailBootROM,
		"2000": DetailPreloader,
		"2001": DetailPreloader,
		"20ff": DetailPreloader,
	}
)

func mediatekPID(line string) (string, bool) {
	if m := lsusbIDPattern.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := pnpIDPattern.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}
