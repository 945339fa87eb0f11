package device

import (
	"context"
	"sync"
	"time"

	"github.com/httprunner/FlashAgent/internal/probe"
	"github.com/httprunner/FlashAgent/pkg/notify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval 参考值 750ms；与优先级一样属于可调常量。
const DefaultPollInterval = 750 * time.Millisecond

// Probes 聚合三种传输探测。
type Probes struct {
	Bridge     probe.Prober
	Bootloader probe.Prober
	Preloader  probe.Prober
}

// LoopConfig 控制检测循环。
type LoopConfig struct {
	Interval time.Duration
	// ConfirmPolls 候选状态需要连续出现的轮数才会发布，1 表示立即发布。
	ConfirmPolls int
	Probes       Probes
	Sink         notify.Sink
}

// Loop 按固定节奏轮询探测，并在状态迁移时写入 Store 后发布一次通知。
type Loop struct {
	cfg   LoopConfig
	store *Store

	pollMu       sync.Mutex
	last         State
	pending      State
	pendingCount int
}

// NewLoop 构建检测循环，store 是唯一被写入的状态单元。
func NewLoop(store *Store, cfg LoopConfig) (*Loop, error) {
	if store == nil {
		return nil, errors.New("device loop: store is nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.ConfirmPolls <= 0 {
		cfg.ConfirmPolls = 1
	}
	if cfg.Sink == nil {
		cfg.Sink = notify.Discard{}
	}
	return &Loop{cfg: cfg, store: store, last: store.State()}, nil
}

// Interval 返回轮询间隔。
func (l *Loop) Interval() time.Duration {
	return l.cfg.Interval
}

// Run 立即执行一轮，然后按 Interval 轮询直到 ctx 结束。外部工具缺失不会使循环退出。
func (l *Loop) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context cannot be nil")
	}
	log.Info().Dur("interval", l.cfg.Interval).Int("confirm_polls", l.cfg.ConfirmPolls).Msg("start device detection loop")
	l.PollOnce(ctx)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("device detection loop stopped")
			return nil
		case <-ticker.C:
			l.PollOnce(ctx)
		}
	}
}

// PollOnce 执行一轮探测，返回当前快照以及本轮是否发布了迁移。
func (l *Loop) PollOnce(ctx context.Context) (Snapshot, bool) {
	return l.poll(ctx, l.cfg.ConfirmPolls)
}

// Sync 执行一轮探测并立即采纳结果，不经过 ConfirmPolls 确认，供一次性命令在操作前同步状态。
func (l *Loop) Sync(ctx context.Context) (Snapshot, bool) {
	return l.poll(ctx, 1)
}

func (l *Loop) poll(ctx context.Context, confirmPolls int) (Snapshot, bool) {
	l.pollMu.Lock()
	defer l.pollMu.Unlock()

	bridge, bootloader, preloader := l.probeAll(ctx)
	if ctx.Err() != nil {
		// 关闭过程中被取消的探测不代表设备离线。
		return l.store.Load(), false
	}
	candidate := Reconcile(bridge, bootloader, preloader)

	if candidate == l.last {
		l.pending, l.pendingCount = "", 0
		// preloader 与 brom 之间切换只更新快照，不发布通知
		if snap, changed := l.store.updateMode(candidate, preloader.Detail); changed {
			log.Info().Str("preloader", preloader.String()).Msg("preloader mode changed")
			return snap, false
		}
		return l.store.Load(), false
	}
	if candidate == l.pending {
		l.pendingCount++
	} else {
		l.pending, l.pendingCount = candidate, 1
	}
	if l.pendingCount < confirmPolls {
		log.Debug().Str("candidate", string(candidate)).Int("seen", l.pendingCount).Msg("device state pending confirmation")
		return l.store.Load(), false
	}

	prev := l.last
	// 先写 Store 再发布，收到通知的读者一定能读到新状态。
	snap := l.store.publish(candidate, preloader.Detail, time.Now())
	l.last = candidate
	l.pending, l.pendingCount = "", 0

	log.Info().
		Str("from", string(prev)).
		Str("to", string(candidate)).
		Str("bridge", bridge.String()).
		Str("bootloader", bootloader.String()).
		Str("preloader", preloader.String()).
		Msg("device state changed")
	l.cfg.Sink.Publish(ctx, notify.EventDeviceState, snap)
	return snap, true
}

// probeAll 并发执行三个探测，任一探测为空时视为 Absent。
func (l *Loop) probeAll(ctx context.Context) (bridge, bootloader, preloader probe.Result) {
	var g errgroup.Group
	run := func(p probe.Prober, out *probe.Result) {
		if p == nil {
			return
		}
		g.Go(func() error {
			*out = p.Probe(ctx)
			return nil
		})
	}
	run(l.cfg.Probes.Bridge, &bridge)
	run(l.cfg.Probes.Bootloader, &bootloader)
	run(l.cfg.Probes.Preloader, &preloader)
	_ = g.Wait()
	return bridge, bootloader, preloader
}
