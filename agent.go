// Package flashagent 管理单台 Android/MediaTek 设备在 adb、fastboot、
// preloader/BootROM 之间的状态，并以该状态为依据授权命令、刷写与 pipeline。
package flashagent

import (
	"context"
	"sync"
	"time"

	"github.com/httprunner/FlashAgent/internal/agent/device"
	"github.com/httprunner/FlashAgent/internal/agent/gate"
	"github.com/httprunner/FlashAgent/internal/probe"
	"github.com/httprunner/FlashAgent/internal/process"
	adbprovider "github.com/httprunner/FlashAgent/internal/providers/adb"
	"github.com/httprunner/FlashAgent/internal/tools"
	"github.com/httprunner/FlashAgent/pkg/devrecorder"
	"github.com/httprunner/FlashAgent/pkg/diagnostics"
	"github.com/httprunner/FlashAgent/pkg/notify"
	"github.com/httprunner/FlashAgent/pkg/pipeline"
	"github.com/httprunner/FlashAgent/pkg/profile"
	"github.com/httprunner/FlashAgent/pkg/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Version 由构建时 -ldflags 覆盖。
var Version = "dev"

const shutdownGrace = 2 * time.Second

// Agent 是进程内唯一的应用状态：持有状态单元、检测循环、命令 gate、
// pipeline 执行器与通知通道。检测循环是状态单元的唯一写入方。
type Agent struct {
	cfg Config

	runner   process.Runner
	tools    tools.Provider
	probes   *device.Probes
	store    *device.Store
	loop     *device.Loop
	gate     *gate.Gate
	registry *pipeline.Registry
	executor *pipeline.Executor

	events     *notify.Channel
	sink       notify.Sink
	extraSinks []notify.Sink

	journal     *storage.Journal
	transitions *storage.TransitionWriter
	recorder    devrecorder.Recorder
	logs        *diagnostics.LogBuffer

	profilesOnce sync.Once
	profiles     []profile.Profile

	runMu   sync.Mutex
	running bool

	closeOnce sync.Once
	closeErr  error
}

// Option 定制 Agent 的协作对象，主要用于测试与嵌入。
type Option func(*Agent)

// WithRunner 替换外部进程执行器。
func WithRunner(r process.Runner) Option {
	return func(a *Agent) { a.runner = r }
}

// WithTools 替换 platform-tools 提供方。
func WithTools(p tools.Provider) Option {
	return func(a *Agent) { a.tools = p }
}

// WithProbes 替换三种传输探测。
func WithProbes(p device.Probes) Option {
	return func(a *Agent) { a.probes = &p }
}

// WithSink 追加通知接收方。
func WithSink(s notify.Sink) Option {
	return func(a *Agent) { a.extraSinks = append(a.extraSinks, s) }
}

// WithRecorder 设置远端状态记录器；未设置时从环境变量构建。
func WithRecorder(r devrecorder.Recorder) Option {
	return func(a *Agent) { a.recorder = r }
}

// WithLogBuffer 设置诊断导出使用的日志缓冲。
func WithLogBuffer(b *diagnostics.LogBuffer) Option {
	return func(a *Agent) { a.logs = b }
}

// WithRegistry 替换 pipeline 注册表。
func WithRegistry(r *pipeline.Registry) Option {
	return func(a *Agent) { a.registry = r }
}

// New 构建 Agent。journal 打开失败只记录警告，Agent 仍可用。
func New(cfg Config, opts ...Option) (*Agent, error) {
	a := &Agent{cfg: cfg.withDefaults()}
	for _, opt := range opts {
		opt(a)
	}
	if a.runner == nil {
		a.runner = process.NewExecRunner()
	}
	if a.tools == nil {
		a.tools = tools.NewDir(a.cfg.ToolsDir)
	}
	if a.registry == nil {
		a.registry = pipeline.Builtin()
	}
	if a.logs == nil {
		a.logs = diagnostics.NewLogBuffer(diagnostics.DefaultLogLines)
	}
	if a.recorder == nil {
		a.recorder = devrecorder.NoopRecorder{}
	}

	if !a.cfg.DisableJournal {
		journal, err := storage.Open(a.cfg.JournalPath)
		if err != nil {
			log.Warn().Err(err).Msg("journal disabled: open failed")
		} else {
			a.journal = journal
		}
	}

	a.events = notify.NewChannel(a.cfg.EventBuffer)
	sinks := notify.Multi{a.events}
	if a.journal != nil {
		a.transitions = storage.NewTransitionWriter(a.journal, 0)
		sinks = append(sinks, a.transitions)
	}
	sinks = append(sinks, a.extraSinks...)
	a.sink = sinks

	a.store = device.NewStore()
	a.gate = gate.New(a.store, a.runner, a.tools).WithSink(a.sink)
	if a.journal != nil {
		a.gate.WithAuditor(a.journal)
	}
	a.executor = pipeline.NewExecutor(a.gate, a.sink)
	if a.journal != nil {
		a.executor.WithRecorder(a.journal)
	}

	probes := a.defaultProbes()
	if a.probes != nil {
		probes = *a.probes
	}
	loop, err := device.NewLoop(a.store, device.LoopConfig{
		Interval:     a.cfg.PollInterval,
		ConfirmPolls: a.cfg.ConfirmPolls,
		Probes:       probes,
		Sink:         a.sink,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.loop = loop

	log.Debug().
		Str("tools_dir", a.cfg.ToolsDir).
		Str("bridge_backend", a.cfg.BridgeBackend).
		Dur("poll_interval", a.cfg.PollInterval).
		Int("confirm_polls", a.cfg.ConfirmPolls).
		Bool("journal", a.journal != nil).
		Msg("flash agent initialized")
	return a, nil
}

func (a *Agent) defaultProbes() device.Probes {
	var bridge probe.Prober
	switch a.cfg.BridgeBackend {
	case BridgeBackendGADB:
		bridge = adbprovider.NewBridgeProbe(adbprovider.NewLazy(), a.cfg.ProbeTimeout)
	default:
		bridge = probe.NewBridge(a.runner, a.tools, a.cfg.ProbeTimeout)
	}
	return device.Probes{
		Bridge:     bridge,
		Bootloader: probe.NewBootloader(a.runner, a.tools, a.cfg.ProbeTimeout),
		Preloader:  probe.NewPreloader(a.runner, a.cfg.ProbeTimeout),
	}
}

// Run 启动检测循环、工具目录监听与状态上报，阻塞直到 ctx 结束。
// 同一 Agent 同时只能运行一次。
func (a *Agent) Run(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return errors.New("flash agent already running")
	}
	a.running = true
	a.runMu.Unlock()
	defer func() {
		a.runMu.Lock()
		a.running = false
		a.runMu.Unlock()
	}()

	sg := newSafeGroup(ctx)
	sg.goSafe("device-loop", a.loop.Run)
	if dir, ok := a.tools.(*tools.Dir); ok {
		sg.goSafe("tools-watcher", dir.Watch)
	}
	if a.journal != nil && a.recorder.Enabled() {
		reporter := storage.NewReporter(a.journal, a.recorder)
		sg.goSafe("state-reporter", reporter.Run)
	}
	log.Info().Dur("interval", a.loop.Interval()).Msg("flash agent started")
	err := sg.wait(shutdownGrace)
	log.Info().Msg("flash agent stopped")
	return err
}

// Refresh 立即执行一轮探测并直接采纳结果（不等待 ConfirmPolls 确认），适合一次性命令在操作前同步状态。
func (a *Agent) Refresh(ctx context.Context) device.Snapshot {
	snap, _ := a.loop.Sync(ctx)
	return snap
}

// Snapshot 返回当前快照。
func (a *Agent) Snapshot() device.Snapshot {
	return a.store.Load()
}

// Events 返回通知通道的接收端，在 Close 后关闭。
func (a *Agent) Events() <-chan notify.Event {
	return a.events.C()
}

// DroppedEvents 返回因接收方未及时读取而丢弃的通知数。
func (a *Agent) DroppedEvents() uint64 {
	return a.events.Dropped()
}

// Journal 返回本地审计日志，未启用时为 nil。
func (a *Agent) Journal() *storage.Journal {
	return a.journal
}

// ToolsInstalled 报告 adb 与 fastboot 是否都可用。
func (a *Agent) ToolsInstalled() bool {
	return a.tools.Installed()
}

// Close 关闭通知通道，写完排队的迁移后关闭 journal，可重复调用。
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		if a.events != nil {
			a.events.Close()
		}
		if a.transitions != nil {
			if err := a.transitions.Close(shutdownGrace); err != nil {
				log.Warn().Err(err).Msg("journal writer close failed")
			}
		}
		if a.journal != nil {
			a.closeErr = a.journal.Close()
		}
	})
	return a.closeErr
}
