package feishu

import (
	"context"
	"time"

	"github.com/httprunner/FlashAgent/internal/config"
)

// 状态表列名覆盖。
const (
	EnvStateFieldHost          = "STATE_FIELD_HOST"
	EnvStateFieldState         = "STATE_FIELD_STATE"
	EnvStateFieldLabel         = "STATE_FIELD_LABEL"
	EnvStateFieldPreloaderMode = "STATE_FIELD_PRELOADER_MODE"
	EnvStateFieldSeq           = "STATE_FIELD_SEQ"
	EnvStateFieldChangedAt     = "STATE_FIELD_CHANGED_AT"
)

// StateFields 是设备状态表的列名。
type StateFields struct {
	Host          string
	State         string
	Label         string
	PreloaderMode string
	Seq           string
	ChangedAt     string
}

// DefaultStateFields 默认列名。
var DefaultStateFields = StateFields{
	Host:          "Host",          // 上报主机
	State:         "State",         // 状态机取值
	Label:         "Label",         // 人类可读状态
	PreloaderMode: "PreloaderMode", // preloader / brom
	Seq:           "Seq",           // 迁移序号
	ChangedAt:     "ChangedAt",     // 迁移时间
}

// StateFieldsFromEnv 读取列名覆盖。
func StateFieldsFromEnv() StateFields {
	f := DefaultStateFields
	f.Host = config.String(EnvStateFieldHost, f.Host)
	f.State = config.String(EnvStateFieldState, f.State)
	f.Label = config.String(EnvStateFieldLabel, f.Label)
	f.PreloaderMode = config.String(EnvStateFieldPreloaderMode, f.PreloaderMode)
	f.Seq = config.String(EnvStateFieldSeq, f.Seq)
	f.ChangedAt = config.String(EnvStateFieldChangedAt, f.ChangedAt)
	return f
}

// StateRecordInput 是一行状态记录。
type StateRecordInput struct {
	Host          string
	State         string
	Label         string
	PreloaderMode string
	Seq           uint64
	ChangedAt     time.Time
}

// Fields 按列名生成写入载荷；日期列使用毫秒时间戳。
func (in StateRecordInput) Fields(f StateFields) map[string]any {
	fields := map[string]any{
		f.State: in.State,
		f.Seq:   int64(in.Seq),
	}
	if in.Host != "" {
		fields[f.Host] = in.Host
	}
	if in.Label != "" {
		fields[f.Label] = in.Label
	}
	if in.PreloaderMode != "" {
		fields[f.PreloaderMode] = in.PreloaderMode
	}
	if !in.ChangedAt.IsZero() {
		fields[f.ChangedAt] = in.ChangedAt.UnixMilli()
	}
	return fields
}

// CreateStateRecord 追加一条状态记录。
func (c *Client) CreateStateRecord(ctx context.Context, ref BitableRef, fields StateFields, in StateRecordInput) (string, error) {
	return c.CreateRecord(ctx, ref, in.Fields(fields))
}
