// Package notify 提供单向、尽力而为的事件发布。
//
// 发布方只持有 Sink；订阅方只持有 Channel.C() 返回的接收端，
// 不存在可被运行期修改的回调注册表。
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	EventDeviceState      = "device-state"
	EventPipelineProgress = "pipeline-progress"
	EventFlashRequest     = "flash-request"
)

// Event 是一条通知。
type Event struct {
	Name    string
	Payload any
	At      time.Time
}

// Sink 接收 (name, payload)，不返回确认。
type Sink interface {
	Publish(ctx context.Context, name string, payload any)
}

// Discard 丢弃所有事件。
type Discard struct{}

func (Discard) Publish(context.Context, string, any) {}

// Multi 按顺序转发给多个 Sink，组合在启动时确定。
type Multi []Sink

func (m Multi) Publish(ctx context.Context, name string, payload any) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, name, payload)
		}
	}
}

// LogSink 以 debug 级别结构化日志输出事件。
type LogSink struct{}

func (LogSink) Publish(_ context.Context, name string, payload any) {
	log.Debug().Str("event", name).Interface("payload", payload).Msg("notify")
}

// Channel 把事件写入带缓冲的 channel。缓冲满时丢弃新事件并计数，发布方永不阻塞；
// 已投递事件保持发布顺序。
type Channel struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	dropped atomic.Uint64
}

// NewChannel 创建缓冲为 size 的 Channel。
func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 64
	}
	return &Channel{ch: make(chan Event, size)}
}

// C 返回接收端。
func (c *Channel) C() <-chan Event {
	return c.ch
}

// Dropped 返回因缓冲满被丢弃的事件数。
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *Channel) Publish(_ context.Context, name string, payload any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- Event{Name: name, Payload: payload, At: time.Now()}:
	default:
		n := c.dropped.Add(1)
		log.Warn().Str("event", name).Uint64("dropped", n).Msg("notification buffer full, event dropped")
	}
}

// Close 关闭接收端，之后的 Publish 为空操作。
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
