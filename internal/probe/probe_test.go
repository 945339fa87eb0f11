package probe

import (
	"context"
	"testing"

	"github.com/httprunner/FlashAgent/internal/process"
	"github.com/httprunner/FlashAgent/internal/process/processtest"
	"github.com/pkg/errors"
)

type staticTools struct{}

func (staticTools) Installed() bool         { return true }
func (staticTools) Path(tool string) string { return "/opt/platform-tools/" + tool }

func TestBridgeProbe(t *testing.T) {
	cases := []struct {
		name string
		resp *processtest.Response
		want Result
	}{
		{name: "authorized", resp: &processtest.Response{Stdout: "device\n"}, want: Present(DetailAuthorized)},
		{name: "unauthorized", resp: &processtest.Response{Stdout: "unauthorized\n"}, want: Present(DetailUnauthorized)},
		{name: "offline", resp: &processtest.Response{Stdout: "offline\n"}, want: Absent()},
		{name: "no device", resp: &processtest.Response{Stderr: "error: no devices/emulators found", ExitCode: 1}, want: Absent()},
		{name: "missing binary", resp: nil, want: Absent()},
		{name: "timeout", resp: &processtest.Response{Err: errors.Wrap(process.ErrTimeout, "adb")}, want: Absent()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := processtest.New()
			if tc.resp != nil {
				fake.Set("adb get-state", *tc.resp)
			}
			got := NewBridge(fake, staticTools{}, 0).Probe(context.Background())
			if got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
			calls := fake.Calls()
			if len(calls) != 1 {
				t.Fatalf("probe must issue exactly one query, got %d", len(calls))
			}
			if calls[0].Program != "/opt/platform-tools/adb" {
				t.Fatalf("probe must use resolved tool path, got %s", calls[0].Program)
			}
		})
	}
}

func TestBootloaderProbe(t *testing.T) {
	fake := processtest.New()
	p := NewBootloader(fake, staticTools{}, 0)
	if got := p.Probe(context.Background()); got.Present {
		t.Fatalf("missing fastboot must be absent, got %s", got)
	}

	fake.Set("fastboot devices", processtest.Response{Stdout: "\n"})
	if got := p.Probe(context.Background()); got.Present {
		t.Fatalf("empty listing must be absent, got %s", got)
	}

	fake.Set("fastboot devices", processtest.Response{Stdout: "0123456789ABCDEF\tfastboot\n"})
	if got := p.Probe(context.Background()); !got.Present {
		t.Fatalf("listing must be present, got %s", got)
	}
}

// 字符串匹配是最脆弱的探测，覆盖常见输出变体。
func TestParseUSBListing(t *testing.T) {
	cases := []struct {
		name string
		out  string
		want Result
	}{
		{name: "empty", out: "", want: Absent()},
		{name: "unrelated", out: "Bus 001 Device 002: ID 8087:0024 Intel Corp. Integrated Rate Matching Hub\n", want: Absent()},
		{name: "lsusb preloader", out: "Bus 001 Device 009: ID 0e8d:2000 MediaTek Inc. MT65xx Preloader\n", want: Present(DetailPreloader)},
		{name: "lsusb brom", out: "Bus 003 Device 011: ID 0e8d:0003 MediaTek Inc. MT6227 phone\n", want: Present(DetailBootROM)},
		{name: "pnp preloader", out: "FriendlyName : MediaTek PreLoader USB VCOM (Android) (COM5)\nInstanceId   : USB\\VID_0E8D&PID_2000\\5&1A2B\n", want: Present(DetailPreloader)},
		{name: "pnp brom", out: "FriendlyName : MediaTek USB Port (COM4)\nInstanceId   : USB\\VID_0E8D&PID_0003\\6&1\n", want: Present(DetailBootROM)},
		{name: "vendor id elsewhere", out: "Bus 001 Device 003: ID 1a86:7523 QinHeng 0e8d\n", want: Absent()},
		{name: "mediatek wifi radio", out: "Bus 003 Device 004: ID 0e8d:0608 MediaTek Inc. Wireless_Device\nBus 001 Device 007: ID 18d1:4ee7 Google Inc. Nexus/Pixel Device (charging + debug)\n", want: Absent()},
		{name: "pnp bluetooth radio", out: "FriendlyName : MediaTek Bluetooth Adapter\nInstanceId   : USB\\VID_0E8D&PID_7961\\000000000\n", want: Absent()},
		{name: "radio next to preloader", out: "Bus 003 Device 004: ID 0e8d:0616 MediaTek Inc. Wireless_Device\nBus 001 Device 009: ID 0e8d:2000 MediaTek Inc. MT65xx Preloader\n", want: Present(DetailPreloader)},
		{name: "download agent", out: "Bus 001 Device 012: ID 0e8d:2001 MediaTek Inc.\n", want: Present(DetailPreloader)},
		{name: "unknown pid with preloader name", out: "Bus 001 Device 012: ID 0e8d:201c MediaTek Inc. Preloader\n", want: Present(DetailPreloader)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseUSBListing(tc.out); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestPreloaderProbeByPlatform(t *testing.T) {
	fake := processtest.New()
	fake.Set("lsusb", processtest.Response{Stdout: "Bus 001 Device 009: ID 0e8d:2000 MediaTek Inc. MT65xx Preloader\n"})
	p := NewPreloader(fake, 0)
	p.goos = "linux"
	if got := p.Probe(context.Background()); got != Present(DetailPreloader) {
		t.Fatalf("got %s", got)
	}

	p.goos = "windows"
	if got := p.Probe(context.Background()); got.Present {
		t.Fatalf("powershell missing must be absent, got %s", got)
	}
	if !fake.Called("powershell -NoProfile -Command Get-PnpDevice -PresentOnly | Where-Object { $_.InstanceId -match 'VID_0E8D' } | Format-List FriendlyName,InstanceId") {
		t.Fatal("windows probe must query Get-PnpDevice")
	}
}
