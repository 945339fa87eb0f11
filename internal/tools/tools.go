// Package tools 解析 platform-tools（adb/fastboot）的可执行文件路径。
package tools

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	AppDirName      = "FlashAgent"
	platformToolDir = "platform-tools"

	ADB      = "adb"
	Fastboot = "fastboot"
)

// Provider 是核心依赖的 platform-tools 能力。
type Provider interface {
	Installed() bool
	Path(tool string) string
}

// DefaultDir 返回 $XDG_DATA_HOME/FlashAgent/platform-tools。
func DefaultDir() string {
	return filepath.Join(xdg.DataHome, AppDirName, platformToolDir)
}

// DataDir 返回 $XDG_DATA_HOME/FlashAgent，用于存放 journal 等数据文件。
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppDirName)
}

// Dir 从固定目录解析工具，目录中不存在时回落到 $PATH。
type Dir struct {
	root        string
	allowPath   bool
	installed   atomic.Bool
	lookPath    func(string) (string, error)
	fileExists  func(string) bool
	executables []string
}

// Option 调整 Dir 的行为。
type Option func(*Dir)

// WithoutPathFallback 禁止回落到 $PATH，测试中保持环境隔离。
func WithoutPathFallback() Option {
	return func(d *Dir) { d.allowPath = false }
}

// NewDir 构建 Dir；root 为空时使用 DefaultDir。
func NewDir(root string, opts ...Option) *Dir {
	root = strings.TrimSpace(root)
	if root == "" {
		root = DefaultDir()
	}
	d := &Dir{
		root:        root,
		allowPath:   true,
		lookPath:    exec.LookPath,
		fileExists:  isRegularFile,
		executables: []string{ADB, Fastboot},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.Refresh()
	return d
}

// Root 返回工具目录。
func (d *Dir) Root() string {
	return d.root
}

// Installed 返回最近一次 Refresh 的结果。
func (d *Dir) Installed() bool {
	return d.installed.Load()
}

// Refresh 重新检查 adb 与 fastboot 是否都可解析。
func (d *Dir) Refresh() bool {
	ok := true
	for _, tool := range d.executables {
		if !d.fileExists(d.Path(tool)) {
			ok = false
			break
		}
	}
	if prev := d.installed.Swap(ok); prev != ok {
		log.Info().Bool("installed", ok).Str("dir", d.root).Msg("platform tools availability changed")
	}
	return ok
}

// Path 返回 tool 的可执行路径。目录内不存在且 $PATH 中也找不到时，
// 返回目录内的预期路径，让调用方在启动进程时得到 ErrToolUnavailable。
func (d *Dir) Path(tool string) string {
	name := executableName(tool)
	candidate := filepath.Join(d.root, name)
	if d.fileExists(candidate) {
		return candidate
	}
	if d.allowPath {
		if found, err := d.lookPath(name); err == nil {
			return found
		}
	}
	return candidate
}

// Watch 监听工具目录的增删，保持 Installed 的结果与磁盘一致，直到 ctx 结束。
// 目录不存在时监听其父目录，安装器创建目录后自动切换。
func (d *Dir) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create tools watcher")
	}
	defer watcher.Close()

	watched := ""
	ensureWatch := func() {
		target := d.root
		if _, err := os.Stat(target); err != nil {
			target = filepath.Dir(d.root)
			if err := os.MkdirAll(target, 0o755); err != nil {
				log.Debug().Err(err).Str("dir", target).Msg("create tools parent dir failed")
				return
			}
		}
		if target == watched {
			return
		}
		if watched != "" {
			_ = watcher.Remove(watched)
		}
		if err := watcher.Add(target); err != nil {
			log.Debug().Err(err).Str("dir", target).Msg("watch tools dir failed")
			return
		}
		watched = target
	}
	ensureWatch()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Chmod) {
				ensureWatch()
				d.Refresh()
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(werr).Str("dir", d.root).Msg("tools watcher error")
		}
	}
}

func executableName(tool string) string {
	tool = strings.TrimSpace(tool)
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(tool), ".exe") {
		return tool + ".exe"
	}
	return tool
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
