package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/httprunner/FlashAgent/internal/agent/device"
	"github.com/httprunner/FlashAgent/pkg/notify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultWriterQueue         = 256
	defaultWriterRetryInterval = 500 * time.Millisecond
	maxTransitionAttempts      = 5
)

// TransitionWriter 是 device-state 事件的 notify.Sink。
// Publish 只把快照放入队列，后台 goroutine 串行写入 journal，因此检测循环不会被 SQLite 锁住。
// 队列满时丢弃并计数；写入失败按退避重试，超过次数后记录错误并计入 Failed。
type TransitionWriter struct {
	journal       *Journal
	queue         chan device.Snapshot
	retryInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}

	dropped   atomic.Uint64
	failed    atomic.Uint64
	closeOnce sync.Once
}

var _ notify.Sink = (*TransitionWriter)(nil)

// NewTransitionWriter 启动后台写入 goroutine，queueSize<=0 时使用默认值。
func NewTransitionWriter(j *Journal, queueSize int) *TransitionWriter {
	if queueSize <= 0 {
		queueSize = defaultWriterQueue
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &TransitionWriter{
		journal:       j,
		queue:         make(chan device.Snapshot, queueSize),
		retryInterval: defaultWriterRetryInterval,
		ctx:           ctx,
		cancel:        cancel,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go w.run()
	return w
}

// Publish 实现 notify.Sink，从不阻塞。
func (w *TransitionWriter) Publish(_ context.Context, name string, payload any) {
	if name != notify.EventDeviceState {
		return
	}
	snap, ok := payload.(device.Snapshot)
	if !ok {
		return
	}
	select {
	case <-w.stop:
		return
	default:
	}
	select {
	case w.queue <- snap:
	default:
		n := w.dropped.Add(1)
		log.Warn().Str("state", string(snap.State)).Uint64("seq", snap.Seq).Uint64("dropped", n).
			Msg("storage: transition queue full, dropping")
	}
}

// Dropped 返回因队列满被丢弃的迁移数。
func (w *TransitionWriter) Dropped() uint64 { return w.dropped.Load() }

// Failed 返回重试耗尽仍未写入的迁移数。
func (w *TransitionWriter) Failed() uint64 { return w.failed.Load() }

// Close 停止接收并写完已排队的迁移；grace 内未完成时中断正在进行的写入。
func (w *TransitionWriter) Close(grace time.Duration) error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		select {
		case <-w.done:
		case <-time.After(grace):
			w.cancel()
			<-w.done
			err = errors.New("storage: transition writer did not drain in time")
		}
		w.cancel()
	})
	return err
}

func (w *TransitionWriter) run() {
	defer close(w.done)
	for {
		select {
		case snap := <-w.queue:
			w.write(snap)
		case <-w.stop:
			for {
				select {
				case snap := <-w.queue:
					w.write(snap)
				default:
					return
				}
			}
		}
	}
}

func (w *TransitionWriter) write(snap device.Snapshot) {
	backoff := w.retryInterval
	for attempt := 1; ; attempt++ {
		err := w.journal.RecordTransition(w.ctx, snap)
		if err == nil {
			return
		}
		if attempt >= maxTransitionAttempts || w.ctx.Err() != nil {
			w.failed.Add(1)
			log.Error().Err(err).Str("state", string(snap.State)).Uint64("seq", snap.Seq).Int("attempts", attempt).
				Msg("storage: record transition failed")
			return
		}
		log.Warn().Err(err).Str("state", string(snap.State)).Int("attempt", attempt).Dur("backoff", backoff).
			Msg("storage: record transition retry")
		select {
		case <-time.After(backoff):
		case <-w.ctx.Done():
		}
		backoff *= 2
	}
}
