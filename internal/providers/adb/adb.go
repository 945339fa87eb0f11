package adb

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/httprunner/FlashAgent/internal/probe"
	"github.com/httprunner/FlashAgent/internal/process"
	"github.com/httprunner/httprunner/v5/pkg/gadb"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DeviceLister 抽象 gadb 的设备枚举，便于替换。
type DeviceLister interface {
	ListDevicesWithState(ctx context.Context) (map[string]string, error)
}

// Provider 通过 adb server 协议（gadb）枚举设备，作为调试桥探测的另一种后端。
type Provider struct {
	mu     sync.Mutex
	client gadb.Client
	ready  bool
	dial   func() (gadb.Client, error)
}

// New creates a Provider backed by the given gadb client.
func New(client gadb.Client) *Provider {
	return &Provider{client: client, ready: true}
}

// NewLazy 在首次查询时才连接 adb server；连接失败下次重试。
func NewLazy() *Provider {
	return &Provider{dial: gadb.NewClient}
}

func (p *Provider) ensureClient() (gadb.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		return p.client, nil
	}
	if p.dial == nil {
		return gadb.Client{}, errors.New("adb provider: no client")
	}
	client, err := p.dial()
	if err != nil {
		return gadb.Client{}, errors.Wrap(err, "init adb client for provider")
	}
	p.client = client
	p.ready = true
	return client, nil
}

// ListDevicesWithState returns device serials with their raw gadb state names.
func (p *Provider) ListDevicesWithState(ctx context.Context) (map[string]string, error) {
	if p == nil {
		return nil, errors.New("adb provider is nil")
	}
	client, err := p.ensureClient()
	if err != nil {
		return nil, err
	}
	devs, err := client.DeviceList()
	if err != nil {
		return nil, errors.Wrap(err, "list adb devices")
	}
	stateBySerial := make(map[string]string, len(devs))
	for _, dev := range devs {
		if dev == nil {
			continue
		}
		serial := strings.TrimSpace(dev.Serial())
		if serial == "" {
			continue
		}
		state, err := dev.State()
		if err != nil {
			stateBySerial[serial] = string(gadb.StateUnknown)
			continue
		}
		stateBySerial[serial] = string(state)
	}
	return stateBySerial, nil
}

// BridgeProbe 把 gadb 设备枚举折算为单设备的调试桥探测结果。
//
// gadb 的 socket 读写不接受 ctx，枚举放在独立 goroutine 中并受 timeout 约束；
// 上一次枚举尚未返回时直接视为 Absent，不再叠加新的查询。
type BridgeProbe struct {
	lister   DeviceLister
	timeout  time.Duration
	inflight atomic.Bool
}

type listResult struct {
	states map[string]string
	err    error
}

// NewBridgeProbe 构建基于 gadb 的调试桥探测，timeout<=0 时使用 probe.DefaultTimeout。
func NewBridgeProbe(lister DeviceLister, timeout time.Duration) *BridgeProbe {
	if timeout <= 0 {
		timeout = probe.DefaultTimeout
	}
	return &BridgeProbe{lister: lister, timeout: timeout}
}

func (b *BridgeProbe) Name() string { return "adb-server" }

// Probe 只要有一台设备处于 online 即视为已授权；否则出现 unauthorized 视为未授权。
func (b *BridgeProbe) Probe(ctx context.Context) probe.Result {
	if b == nil || b.lister == nil {
		return probe.Absent()
	}
	states, err := b.list(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("adb server probe failed")
		return probe.Absent()
	}
	result := probe.Absent()
	for _, raw := range states {
		state := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case state == strings.ToLower(string(gadb.StateOnline)) || state == "device":
			return probe.Present(probe.DetailAuthorized)
		case state == "unauthorized":
			result = probe.Present(probe.DetailUnauthorized)
		}
	}
	return result
}

func (b *BridgeProbe) list(ctx context.Context) (map[string]string, error) {
	if !b.inflight.CompareAndSwap(false, true) {
		return nil, errors.New("previous adb server query still running")
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan listResult, 1)
	go func() {
		defer b.inflight.Store(false)
		states, err := b.lister.ListDevicesWithState(ctx)
		done <- listResult{states: states, err: err}
	}()
	select {
	case res := <-done:
		return res.states, res.err
	case <-ctx.Done():
		return nil, errors.Wrapf(process.ErrTimeout, "adb server query exceeded %s", b.timeout)
	}
}
