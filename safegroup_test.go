package flashagent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeGroupRestartsAfterPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	sg := newSafeGroup(ctx)
	sg.goSafe("flaky", func(ctx context.Context) error {
		if attempts.Add(1) == 1 {
			panic("boom")
		}
		<-ctx.Done()
		return ctx.Err()
	})

	require.Eventually(t, func() bool { return attempts.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, sg.wait(time.Second))
}

func TestSafeGroupPropagatesError(t *testing.T) {
	sg := newSafeGroup(context.Background())
	boom := errors.New("boom")
	sg.goSafe("failing", func(context.Context) error { return boom })
	sg.goSafe("waiting", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	assert.ErrorIs(t, sg.wait(time.Second), boom)
}

func TestNormalizeInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.Error(t, normalizeInterrupt(ctx, context.Canceled))
	cancel()
	assert.NoError(t, normalizeInterrupt(ctx, context.Canceled))
	assert.Error(t, normalizeInterrupt(ctx, errors.New("other")))
}
