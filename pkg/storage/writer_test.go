package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/httprunner/FlashAgent/internal/agent/device"
	"github.com/httprunner/FlashAgent/pkg/notify"
	"github.com/httprunner/FlashAgent/pkg/pipeline"
)

func waitTransitions(t *testing.T, j *Journal, want int, timeout time.Duration) []Transition {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		got, err := j.RecentTransitions(context.Background(), 10)
		if err == nil && len(got) >= want {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d transitions, got %d (err=%v)", want, len(got), err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestTransitionWriterRecordsDeviceStateEvents(t *testing.T) {
	j := openTestJournal(t)
	w := NewTransitionWriter(j, 0)
	ctx := context.Background()
	now := time.Now()

	w.Publish(ctx, notify.EventDeviceState, device.Snapshot{State: device.DebugBridgeReady, ChangedAt: now, Seq: 1})
	w.Publish(ctx, notify.EventDeviceState, device.Snapshot{State: device.PreloaderReady, PreloaderMode: "brom", ChangedAt: now, Seq: 2})
	// 非状态事件不入库
	w.Publish(ctx, notify.EventPipelineProgress, pipeline.Progress{RunID: "x"})

	if err := w.Close(5 * time.Second); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	got := waitTransitions(t, j, 2, time.Second)
	if len(got) != 2 || got[0].Seq != 2 || got[1].Seq != 1 {
		t.Fatalf("unexpected transitions %+v", got)
	}
	// 关闭后的事件被忽略
	w.Publish(ctx, notify.EventDeviceState, device.Snapshot{State: device.Disconnected, Seq: 3})
}

func TestTransitionWriterDoesNotBlockOnLockedDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.sqlite")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	other, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open second connection: %v", err)
	}
	defer other.Close()
	conn, err := other.Conn(ctx)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		t.Fatalf("lock database: %v", err)
	}

	w := NewTransitionWriter(j, 4)
	start := time.Now()
	for i := 1; i <= 3; i++ {
		w.Publish(ctx, notify.EventDeviceState, device.Snapshot{State: device.BootloaderReady, ChangedAt: time.Now(), Seq: uint64(i)})
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("publish blocked for %s while database locked", elapsed)
	}

	if _, err := conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		t.Fatalf("unlock database: %v", err)
	}
	waitTransitions(t, j, 3, 20*time.Second)
	if err := w.Close(5 * time.Second); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if w.Failed() != 0 || w.Dropped() != 0 {
		t.Fatalf("unexpected losses: failed=%d dropped=%d", w.Failed(), w.Dropped())
	}
}

func TestTransitionWriterCountsDropsWhenQueueFull(t *testing.T) {
	j := openTestJournal(t)
	w := &TransitionWriter{
		journal: j,
		queue:   make(chan device.Snapshot, 1),
		stop:    make(chan struct{}),
	}
	w.Publish(context.Background(), notify.EventDeviceState, device.Snapshot{Seq: 1})
	w.Publish(context.Background(), notify.EventDeviceState, device.Snapshot{Seq: 2})
	if w.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", w.Dropped())
	}
}
