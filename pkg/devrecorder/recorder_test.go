package devrecorder

import (
	"context"
	"testing"
	"time"

	"github.com/httprunner/FlashAgent/internal/agent/device"
	"github.com/httprunner/FlashAgent/pkg/feishu"
	"github.com/httprunner/FlashAgent/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	ref feishu.BitableRef
	in  feishu.StateRecordInput
}

func (c *captureWriter) CreateStateRecord(_ context.Context, ref feishu.BitableRef, _ feishu.StateFields, in feishu.StateRecordInput) (string, error) {
	c.ref = ref
	c.in = in
	return "rec1", nil
}

func TestFeishuRecorderUploadTransition(t *testing.T) {
	w := &captureWriter{}
	r := &FeishuRecorder{client: w, ref: feishu.BitableRef{AppToken: "app", TableID: "tbl"}, fields: feishu.DefaultStateFields, host: "lab-01"}
	at := time.Now()

	err := r.UploadTransition(context.Background(), storage.Transition{State: device.PreloaderReady, PreloaderMode: "brom", Seq: 3, ChangedAt: at})
	require.NoError(t, err)
	assert.Equal(t, "tbl", w.ref.TableID)
	assert.Equal(t, "preloader_ready", w.in.State)
	assert.Equal(t, device.PreloaderReady.Label(), w.in.Label)
	assert.Equal(t, "brom", w.in.PreloaderMode)
	assert.Equal(t, uint64(3), w.in.Seq)
	assert.Equal(t, "lab-01", w.in.Host)
}

func TestNewFromEnvFallsBackToNoop(t *testing.T) {
	t.Setenv("FLASHAGENT_STATE_APP_TOKEN", "")
	t.Setenv("FLASHAGENT_STATE_TABLE_ID", "")
	rec, err := NewFromEnv(context.Background())
	require.NoError(t, err)
	assert.False(t, rec.Enabled())
	assert.NoError(t, rec.UploadTransition(context.Background(), storage.Transition{}))
}

func TestNewFromEnvRequiresCredentials(t *testing.T) {
	t.Setenv("FLASHAGENT_STATE_APP_TOKEN", "app")
	t.Setenv("FLASHAGENT_STATE_TABLE_ID", "tbl")
	t.Setenv("FEISHU_APP_ID", "")
	t.Setenv("FEISHU_APP_SECRET", "")
	_, err := NewFromEnv(context.Background())
	assert.ErrorIs(t, err, feishu.ErrNotConfigured)
}

func TestParseHardwareUUID(t *testing.T) {
	out := "Hardware:\n\n    Hardware Overview:\n      Model Name: MacBook Pro\n      Hardware UUID: 1A2B3C4D-0000-1111-2222-333344445555\n"
	assert.Equal(t, "1A2B3C4D-0000-1111-2222-333344445555", parseHardwareUUID(out))
	assert.Empty(t, parseHardwareUUID("nothing here"))
}
