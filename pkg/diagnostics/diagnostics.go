// Package diagnostics 把当前状态、最近日志与审计记录打包成 zip 便于排查。
package diagnostics

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/httprunner/FlashAgent/internal/agent/device"
	"github.com/httprunner/FlashAgent/pkg/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// FileName 是导出文件的默认名称前缀。
const FileName = "flashagent-diagnostics"

// Report 是导出所需的全部数据，由调用方收集。
type Report struct {
	Generated    time.Time
	Version      string
	Host         string
	Snapshot     device.Snapshot
	Capabilities string
	ToolsDir     string
	ToolsReady   bool
	Profile      string
	DeviceInfo   map[string]string
	Kernel       KernelDetails
	Logs         []string
	// Transitions 与 Flashes 仅在启用 journal 时填充
	Transitions []storage.Transition
	Flashes     []storage.FlashEntry
}

type archiveFile struct {
	name string
	body string
}

// Write 把 report 写成 zip 流。
func Write(w io.Writer, r Report) error {
	zw := zip.NewWriter(w)
	files := []archiveFile{
		{"summary.txt", r.summary()},
		{"device_state.txt", r.deviceState()},
		{"logs.txt", strings.Join(r.Logs, "\n")},
	}
	if r.Transitions != nil || r.Flashes != nil {
		files = append(files, archiveFile{"journal.txt", r.journal()})
	}
	for _, f := range files {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: zip.Deflate, Modified: r.Generated})
		if err != nil {
			return errors.Wrapf(err, "diagnostics: create %s", f.name)
		}
		if _, err := io.WriteString(fw, f.body); err != nil {
			return errors.Wrapf(err, "diagnostics: write %s", f.name)
		}
	}
	return errors.Wrap(zw.Close(), "diagnostics: finish archive")
}

// Export 在 dir 下写出带时间戳的 zip 文件并返回其路径。
func Export(dir string, r Report) (string, error) {
	if r.Generated.IsZero() {
		r.Generated = time.Now()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "diagnostics: create dir %s", dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.zip", FileName, r.Generated.Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "diagnostics: create archive")
	}
	if err := Write(f, r); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "diagnostics: close archive")
	}
	log.Info().Str("path", path).Msg("diagnostics exported")
	return path, nil
}

func (r Report) summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FlashAgent Diagnostics\n")
	fmt.Fprintf(&b, "Generated: %s\n", r.Generated.Format(time.RFC3339))
	if r.Version != "" {
		fmt.Fprintf(&b, "Version: %s\n", r.Version)
	}
	if r.Host != "" {
		fmt.Fprintf(&b, "Host: %s\n", r.Host)
	}
	fmt.Fprintf(&b, "Platform tools: %s (installed=%t)\n", r.ToolsDir, r.ToolsReady)
	fmt.Fprintf(&b, "Kernel: %s - %s\n", r.Kernel.Status, r.Kernel.Explanation())
	return b.String()
}

func (r Report) deviceState() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Device State: %s\n", r.Snapshot.State.Label())
	fmt.Fprintf(&b, "State: %s\n", r.Snapshot.State)
	if r.Snapshot.PreloaderMode != "" {
		fmt.Fprintf(&b, "Preloader mode: %s\n", r.Snapshot.PreloaderMode)
	}
	if !r.Snapshot.ChangedAt.IsZero() {
		fmt.Fprintf(&b, "Changed: %s (%s)\n", r.Snapshot.ChangedAt.Format(time.RFC3339), humanize.Time(r.Snapshot.ChangedAt))
	}
	fmt.Fprintf(&b, "Transitions observed: %d\n", r.Snapshot.Seq)
	if r.Capabilities != "" {
		fmt.Fprintf(&b, "Capabilities: %s\n", r.Capabilities)
	}
	if r.Profile != "" {
		fmt.Fprintf(&b, "Profile: %s\n", r.Profile)
	}
	keys := make([]string, 0, len(r.DeviceInfo))
	for k := range r.DeviceInfo {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, r.DeviceInfo[k])
	}
	return b.String()
}

func (r Report) journal() string {
	var b strings.Builder
	b.WriteString("# transitions (newest first)\n")
	for _, t := range r.Transitions {
		fmt.Fprintf(&b, "%s seq=%d state=%s", t.ChangedAt.Format(time.RFC3339), t.Seq, t.State)
		if t.PreloaderMode != "" {
			fmt.Fprintf(&b, " mode=%s", t.PreloaderMode)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\n# flashes (newest first)\n")
	for _, f := range r.Flashes {
		result := "ok"
		if !f.Success {
			result = "failed: " + f.Error
		}
		fmt.Fprintf(&b, "%s %s <- %s (%s, %s) %s\n",
			f.CreatedAt.Format(time.RFC3339), f.Partition, f.Image, humanize.Bytes(uint64(f.ImageSize)), f.Tier, result)
	}
	return b.String()
}
