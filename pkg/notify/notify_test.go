package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelPreservesOrderAndDropsWhenFull(t *testing.T) {
	ch := NewChannel(2)
	ctx := context.Background()
	ch.Publish(ctx, EventDeviceState, 1)
	ch.Publish(ctx, EventDeviceState, 2)
	ch.Publish(ctx, EventDeviceState, 3)

	assert.Equal(t, uint64(1), ch.Dropped())
	first := <-ch.C()
	second := <-ch.C()
	assert.Equal(t, 1, first.Payload)
	assert.Equal(t, 2, second.Payload)
}

func TestChannelCloseIsIdempotent(t *testing.T) {
	ch := NewChannel(1)
	ch.Close()
	ch.Close()
	ch.Publish(context.Background(), EventDeviceState, "after close")
	_, ok := <-ch.C()
	require.False(t, ok)
}

type recordSink struct{ names []string }

func (r *recordSink) Publish(_ context.Context, name string, _ any) { r.names = append(r.names, name) }

func TestMultiFansOut(t *testing.T) {
	a, b := &recordSink{}, &recordSink{}
	Multi{a, nil, b}.Publish(context.Background(), EventPipelineProgress, nil)
	assert.Equal(t, []string{EventPipelineProgress}, a.names)
	assert.Equal(t, []string{EventPipelineProgress}, b.names)
}
