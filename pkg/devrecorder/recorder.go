// Package devrecorder 把本机观测到的设备状态迁移同步到外部存储。
package devrecorder

import (
	"context"
	"os"
	"strings"

	"github.com/httprunner/FlashAgent/internal/config"
	"github.com/httprunner/FlashAgent/pkg/feishu"
	"github.com/httprunner/FlashAgent/pkg/storage"
	"github.com/rs/zerolog/log"
)

// Recorder 把迁移写到远端，满足 storage.Uploader。
type Recorder interface {
	UploadTransition(ctx context.Context, t storage.Transition) error
	Enabled() bool
}

// NoopRecorder 未配置远端时使用。
type NoopRecorder struct{}

func (NoopRecorder) UploadTransition(context.Context, storage.Transition) error { return nil }
func (NoopRecorder) Enabled() bool                                              { return false }

// stateWriter 是 FeishuRecorder 依赖的最小写接口。
type stateWriter interface {
	CreateStateRecord(ctx context.Context, ref feishu.BitableRef, fields feishu.StateFields, in feishu.StateRecordInput) (string, error)
}

// FeishuRecorder 把迁移追加到飞书多维表格。
type FeishuRecorder struct {
	client stateWriter
	ref    feishu.BitableRef
	fields feishu.StateFields
	host   string
}

// NewFeishuRecorder 构建飞书记录器；ref 不完整时返回 nil。
func NewFeishuRecorder(client *feishu.Client, ref feishu.BitableRef, host string) *FeishuRecorder {
	if client == nil || !ref.Valid() {
		return nil
	}
	return &FeishuRecorder{client: client, ref: ref, fields: feishu.StateFieldsFromEnv(), host: host}
}

// NewFromEnv 读取 FLASHAGENT_STATE_APP_TOKEN / FLASHAGENT_STATE_TABLE_ID 与飞书凭证，
// 任一缺失时退化为 NoopRecorder。
func NewFromEnv(ctx context.Context) (Recorder, error) {
	ref := feishu.BitableRef{
		AppToken: config.String(config.EnvStateBitableApp, ""),
		TableID:  config.String(config.EnvStateBitableTable, ""),
	}
	if !ref.Valid() {
		return NoopRecorder{}, nil
	}
	cli, err := feishu.NewClientFromEnv()
	if err != nil {
		return nil, err
	}
	host := HostID(ctx)
	if host == "" {
		host, _ = os.Hostname()
	}
	log.Info().Str("table", ref.TableID).Str("host", host).Msg("device state recorder enabled")
	return NewFeishuRecorder(cli, ref, host), nil
}

// Enabled 总为 true。
func (r *FeishuRecorder) Enabled() bool { return true }

// UploadTransition 追加一行状态记录。
func (r *FeishuRecorder) UploadTransition(ctx context.Context, t storage.Transition) error {
	_, err := r.client.CreateStateRecord(ctx, r.ref, r.fields, feishu.StateRecordInput{
		Host:          r.host,
		State:         string(t.State),
		Label:         t.State.Label(),
		PreloaderMode: strings.TrimSpace(t.PreloaderMode),
		Seq:           t.Seq,
		ChangedAt:     t.ChangedAt,
	})
	return err
}

var _ Recorder = (*FeishuRecorder)(nil)
