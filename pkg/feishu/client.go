// Package feishu 通过飞书开放平台 SDK 把设备状态写入多维表格。
package feishu

import (
	"context"
	"strings"

	"github.com/httprunner/FlashAgent/internal/config"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
	"github.com/pkg/errors"
)

const (
	EnvAppID     = "FEISHU_APP_ID"
	EnvAppSecret = "FEISHU_APP_SECRET"
	EnvBaseURL   = "FEISHU_BASE_URL"

	defaultBaseURL = "https://open.feishu.cn"
)

// ErrNotConfigured 未配置飞书应用凭证。
var ErrNotConfigured = errors.New("feishu: app credentials not configured")

// bitableRecordAPI 是多维表格记录接口的最小子集，便于测试替换。
type bitableRecordAPI interface {
	Create(ctx context.Context, appToken, tableID string, record *larkbitable.AppTableRecord) (*larkbitable.CreateAppTableRecordResp, error)
}

// larkAppTableRecordService 对应 SDK 中未导出的 appTableRecord 服务。
type larkAppTableRecordService interface {
	Create(ctx context.Context, req *larkbitable.CreateAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.CreateAppTableRecordResp, error)
}

type sdkBitableRecordAPI struct {
	svc larkAppTableRecordService
}

func (a sdkBitableRecordAPI) Create(ctx context.Context, appToken, tableID string, record *larkbitable.AppTableRecord) (*larkbitable.CreateAppTableRecordResp, error) {
	req := larkbitable.NewCreateAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		AppTableRecord(record).
		Build()
	return a.svc.Create(ctx, req)
}

// BitableRef 定位一张多维表格。
type BitableRef struct {
	AppToken string
	TableID  string
}

// Valid 两个字段都非空。
func (r BitableRef) Valid() bool {
	return strings.TrimSpace(r.AppToken) != "" && strings.TrimSpace(r.TableID) != ""
}

// Client 封装飞书 SDK。
type Client struct {
	baseURL string
	records bitableRecordAPI
}

// NewClient 使用应用凭证构建客户端；SDK 自行缓存 tenant_access_token。
func NewClient(appID, appSecret, baseURL string) (*Client, error) {
	appID = strings.TrimSpace(appID)
	appSecret = strings.TrimSpace(appSecret)
	if appID == "" || appSecret == "" {
		return nil, ErrNotConfigured
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelError),
	}
	if baseURL != lark.FeishuBaseUrl {
		opts = append(opts, lark.WithOpenBaseUrl(baseURL))
	}
	cli := lark.NewClient(appID, appSecret, opts...)
	return &Client{
		baseURL: baseURL,
		records: sdkBitableRecordAPI{svc: cli.Bitable.V1.AppTableRecord},
	}, nil
}

// NewClientFromEnv 读取 FEISHU_APP_ID / FEISHU_APP_SECRET / FEISHU_BASE_URL。
func NewClientFromEnv() (*Client, error) {
	return NewClient(
		config.String(EnvAppID, ""),
		config.String(EnvAppSecret, ""),
		config.String(EnvBaseURL, defaultBaseURL),
	)
}

// BaseURL 返回开放平台地址。
func (c *Client) BaseURL() string { return c.baseURL }

// CreateRecord 新增一行并返回 record_id。
func (c *Client) CreateRecord(ctx context.Context, ref BitableRef, fields map[string]any) (string, error) {
	if c == nil || c.records == nil {
		return "", errors.New("feishu: client is nil")
	}
	if !ref.Valid() {
		return "", errors.New("feishu: bitable app token and table id are required")
	}
	if len(fields) == 0 {
		return "", errors.New("feishu: no fields provided for creation")
	}
	record := larkbitable.NewAppTableRecordBuilder().
		Fields(fields).
		Build()
	resp, err := c.records.Create(ctx, ref.AppToken, ref.TableID, record)
	if err != nil {
		return "", errors.Wrap(err, "feishu: create record request failed")
	}
	if resp == nil {
		return "", errors.New("feishu: empty response when creating record")
	}
	if !resp.Success() {
		return "", errors.Errorf("feishu: create record failed code=%d msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.Record == nil {
		return "", errors.New("feishu: create record response missing record")
	}
	return strings.TrimSpace(larkcore.StringValue(resp.Data.Record.RecordId)), nil
}
