package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/httprunner/FlashAgent/internal/agent/device"
	"github.com/pkg/errors"
)

type flakyUploader struct {
	mu     sync.Mutex
	failOn map[device.State]bool
	sent   []Transition
}

func (u *flakyUploader) UploadTransition(_ context.Context, t Transition) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failOn[t.State] {
		return errors.New("feishu: http 500")
	}
	u.sent = append(u.sent, t)
	return nil
}

func TestReporterRetriesFailedRows(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Now()
	for i, st := range []device.State{device.DebugBridgeReady, device.BootloaderReady, device.Disconnected} {
		if err := j.RecordTransition(ctx, device.Snapshot{State: st, ChangedAt: now, Seq: uint64(i + 1)}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	up := &flakyUploader{failOn: map[device.State]bool{device.BootloaderReady: true}}
	r := NewReporter(j, up)
	if sent := r.FlushOnce(ctx); sent != 2 {
		t.Fatalf("expected 2 rows sent, got %d", sent)
	}

	pending, err := j.PendingTransitions(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].State != device.BootloaderReady {
		t.Fatalf("expected only the failed row pending, got %+v", pending)
	}

	up.failOn = nil
	if sent := r.FlushOnce(ctx); sent != 1 {
		t.Fatalf("expected retry to send 1 row, got %d", sent)
	}
	if pending, _ := j.PendingTransitions(ctx, 10); len(pending) != 0 {
		t.Fatalf("expected nothing pending, got %d", len(pending))
	}
}
