package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/httprunner/FlashAgent/internal/probe"
	"github.com/httprunner/FlashAgent/internal/process/processtest"
	"github.com/httprunner/FlashAgent/pkg/notify"
)

// switchableProbe 的结果可在测试中随时修改。
type switchableProbe struct {
	mu     sync.Mutex
	result probe.Result
	calls  int
}

func (p *switchableProbe) Name() string { return "switchable" }

func (p *switchableProbe) Probe(ctx context.Context) probe.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.result
}

func (p *switchableProbe) set(r probe.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result = r
}

// storeCheckingSink 在收到通知时读取 Store，校验写入先于发布。
type storeCheckingSink struct {
	t      *testing.T
	store  *Store
	mu     sync.Mutex
	states []State
}

func (s *storeCheckingSink) Publish(_ context.Context, name string, payload any) {
	if name != notify.EventDeviceState {
		s.t.Errorf("unexpected event %s", name)
		return
	}
	snap, ok := payload.(Snapshot)
	if !ok {
		s.t.Errorf("unexpected payload %T", payload)
		return
	}
	if current := s.store.Load(); current != snap {
		s.t.Errorf("store not updated before notification: store=%+v payload=%+v", current, snap)
	}
	s.mu.Lock()
	s.states = append(s.states, snap.State)
	s.mu.Unlock()
}

func (s *storeCheckingSink) published() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.states...)
}

type fixture struct {
	bridge, bootloader, preloader *switchableProbe
	store                         *Store
	sink                          *storeCheckingSink
	loop                          *Loop
}

func newFixture(t *testing.T, confirm int) *fixture {
	t.Helper()
	f := &fixture{
		bridge:     &switchableProbe{},
		bootloader: &switchableProbe{},
		preloader:  &switchableProbe{},
		store:      NewStore(),
	}
	f.sink = &storeCheckingSink{t: t, store: f.store}
	loop, err := NewLoop(f.store, LoopConfig{
		Interval:     10 * time.Millisecond,
		ConfirmPolls: confirm,
		Probes:       Probes{Bridge: f.bridge, Bootloader: f.bootloader, Preloader: f.preloader},
		Sink:         f.sink,
	})
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	f.loop = loop
	return f
}

func TestLoopCoalescesRepeatedPolls(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, changed := f.loop.PollOnce(ctx); changed {
			t.Fatal("disconnected -> disconnected must not notify")
		}
	}

	f.bridge.set(probe.Present(probe.DetailAuthorized))
	if _, changed := f.loop.PollOnce(ctx); !changed {
		t.Fatal("expected transition to adb_ready")
	}
	for i := 0; i < 5; i++ {
		if _, changed := f.loop.PollOnce(ctx); changed {
			t.Fatal("repeat poll must not notify")
		}
	}

	got := f.sink.published()
	if len(got) != 1 || got[0] != DebugBridgeReady {
		t.Fatalf("expected exactly one notification, got %v", got)
	}
	if snap := f.store.Load(); snap.Seq != 1 || snap.State != DebugBridgeReady {
		t.Fatalf("unexpected store snapshot %+v", snap)
	}
}

func TestLoopPublishesTransitionsInOrder(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	f.bridge.set(probe.Present(probe.DetailUnauthorized))
	f.loop.PollOnce(ctx)
	f.bridge.set(probe.Present(probe.DetailAuthorized))
	f.loop.PollOnce(ctx)
	// 模式切换瞬间 adb 仍残留，bootloader 优先。
	f.bootloader.set(probe.Present(probe.DetailNone))
	f.loop.PollOnce(ctx)
	f.bridge.set(probe.Absent())
	f.loop.PollOnce(ctx)
	f.bootloader.set(probe.Absent())
	f.preloader.set(probe.Present(probe.DetailBootROM))
	f.loop.PollOnce(ctx)
	f.preloader.set(probe.Absent())
	f.loop.PollOnce(ctx)

	want := []State{DebugBridgeUnauthorized, DebugBridgeReady, BootloaderReady, PreloaderReady, Disconnected}
	got := f.sink.published()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLoopRecordsPreloaderMode(t *testing.T) {
	f := newFixture(t, 1)
	f.preloader.set(probe.Present(probe.DetailPreloader))
	snap, changed := f.loop.PollOnce(context.Background())
	if !changed || snap.PreloaderMode != probe.DetailPreloader {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestLoopHysteresis(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	f.bridge.set(probe.Present(probe.DetailAuthorized))
	if _, changed := f.loop.PollOnce(ctx); changed {
		t.Fatal("first sighting must wait for confirmation")
	}
	// 抖动回 Disconnected，计数清零。
	f.bridge.set(probe.Absent())
	f.loop.PollOnce(ctx)
	f.bridge.set(probe.Present(probe.DetailAuthorized))
	if _, changed := f.loop.PollOnce(ctx); changed {
		t.Fatal("oscillation must reset confirmation")
	}
	if _, changed := f.loop.PollOnce(ctx); !changed {
		t.Fatal("second consecutive sighting must publish")
	}
	if got := f.sink.published(); len(got) != 1 {
		t.Fatalf("expected one notification, got %v", got)
	}
}

func TestLoopMissingToolsIsDisconnected(t *testing.T) {
	fake := processtest.New() // 没有任何预设响应，所有调用均为 ErrToolUnavailable
	store := NewStore()
	loop, err := NewLoop(store, LoopConfig{Probes: Probes{
		Bridge:     probe.NewBridge(fake, nil, time.Second),
		Bootloader: probe.NewBootloader(fake, nil, time.Second),
		Preloader:  probe.NewPreloader(fake, time.Second),
	}})
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	snap, changed := loop.PollOnce(context.Background())
	if changed || snap.State != Disconnected {
		t.Fatalf("absent tools must keep disconnected, got %+v changed=%v", snap, changed)
	}
	if fake.CallCount() != 3 {
		t.Fatalf("expected one query per probe, got %d", fake.CallCount())
	}
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	f.bridge.set(probe.Present(probe.DetailAuthorized))
	deadline := time.After(2 * time.Second)
	for f.store.State() != DebugBridgeReady {
		select {
		case <-deadline:
			t.Fatal("loop did not observe device")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopUpdatesPreloaderModeWithoutNotification(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	f.preloader.set(probe.Present(probe.DetailPreloader))
	first, _ := f.loop.PollOnce(ctx)

	f.preloader.set(probe.Present(probe.DetailBootROM))
	snap, changed := f.loop.PollOnce(ctx)
	if changed {
		t.Fatal("mode change inside preloader_ready must not notify")
	}
	if snap.PreloaderMode != probe.DetailBootROM || f.store.Load().PreloaderMode != probe.DetailBootROM {
		t.Fatalf("store mode not updated: %+v", f.store.Load())
	}
	if snap.Seq != first.Seq {
		t.Fatalf("seq must stay %d, got %d", first.Seq, snap.Seq)
	}
	if got := f.sink.published(); len(got) != 1 {
		t.Fatalf("expected one notification, got %v", got)
	}
}

func TestLoopSyncSkipsConfirmation(t *testing.T) {
	f := newFixture(t, 3)
	f.bootloader.set(probe.Present(probe.DetailNone))

	snap, changed := f.loop.Sync(context.Background())
	if !changed || snap.State != BootloaderReady {
		t.Fatalf("sync must publish immediately, got %+v changed=%v", snap, changed)
	}
	if _, changed := f.loop.PollOnce(context.Background()); changed {
		t.Fatal("repeat poll after sync must not notify")
	}
}
