// Package gate 在调用 adb/fastboot 之前根据当前设备状态进行授权。
//
// 读取状态后立即释放锁再启动进程，长时间运行的刷写不会阻塞检测循环。
// 被拒绝的请求不会启动任何外部进程。
package gate

import (
	"context"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/httprunner/FlashAgent/internal/agent/device"
	"github.com/httprunner/FlashAgent/internal/process"
	"github.com/httprunner/FlashAgent/internal/tools"
	"github.com/httprunner/FlashAgent/pkg/notify"
	"github.com/httprunner/FlashAgent/pkg/risk"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrTransportNotAuthorized 当前设备状态不满足请求的传输模式。
	ErrTransportNotAuthorized = errors.New("transport not authorized")
	// ErrExpertModeRequired 自由格式的 fastboot 命令需要显式开启专家模式。
	ErrExpertModeRequired = errors.New("expert mode required")
	// ErrInvalidRequest 请求参数不合法（空命令、空分区、镜像不存在等）。
	ErrInvalidRequest = errors.New("invalid request")
)

// Transport 是 gate 能授权的操作类别。
type Transport string

const (
	TransportDebugBridge Transport = "adb"
	TransportBootloader  Transport = "fastboot"
	TransportFlash       Transport = "flash"
)

// 兼容表：操作 -> 要求的状态与拒绝原因。
var compatibility = map[Transport]struct {
	required device.State
	reason   string
}{
	TransportDebugBridge: {required: device.DebugBridgeReady, reason: "transport not authorized/available"},
	TransportBootloader:  {required: device.BootloaderReady, reason: "bootloader not active"},
	TransportFlash:       {required: device.BootloaderReady, reason: "bootloader not active"},
}

// StateReader 提供当前设备状态快照。
type StateReader interface {
	Load() device.Snapshot
}

// Auditor 记录刷写请求；可为空。
type Auditor interface {
	RecordFlash(ctx context.Context, req FlashRequest, output string, err error)
}

// FlashRequest 描述一次分区刷写及其风险等级（仅作提示与审计，不参与授权）。
type FlashRequest struct {
	Partition string       `json:"partition"`
	Image     string       `json:"image"`
	ImageSize int64        `json:"image_size"`
	Tier      risk.Tier    `json:"tier"`
	State     device.State `json:"state"`
}

// FlashStage 是 flash-request 通知所处的阶段。
type FlashStage string

const (
	FlashStarted  FlashStage = "started"
	FlashFinished FlashStage = "finished"
	FlashFailed   FlashStage = "failed"
)

// FlashEvent 是 flash-request 通知的负载。
type FlashEvent struct {
	FlashRequest
	Stage FlashStage `json:"stage"`
	Error string     `json:"error,omitempty"`
}

// Gate 授权并执行 adb/fastboot 调用。
type Gate struct {
	states  StateReader
	runner  process.Runner
	tools   tools.Provider
	auditor Auditor
	sink    notify.Sink
}

// New 构建 Gate。
func New(states StateReader, runner process.Runner, provider tools.Provider) *Gate {
	return &Gate{states: states, runner: runner, tools: provider, sink: notify.Discard{}}
}

// WithSink 设置 flash-request 通知的接收方。
func (g *Gate) WithSink(s notify.Sink) *Gate {
	if s != nil {
		g.sink = s
	}
	return g
}

// WithAuditor 设置刷写审计。
func (g *Gate) WithAuditor(a Auditor) *Gate {
	g.auditor = a
	return g
}

// Authorize 检查 transport 是否被当前状态允许。
func (g *Gate) Authorize(transport Transport) (device.Snapshot, error) {
	rule, ok := compatibility[transport]
	if !ok {
		return device.Snapshot{}, errors.Wrapf(ErrInvalidRequest, "unknown transport %q", transport)
	}
	snap := g.states.Load()
	if snap.State != rule.required {
		log.Warn().
			Str("transport", string(transport)).
			Str("state", string(snap.State)).
			Str("required", string(rule.required)).
			Msg("gate rejected command")
		return snap, errors.Wrapf(ErrTransportNotAuthorized, "%s (state %s)", rule.reason, snap.State)
	}
	return snap, nil
}

// RunDebugBridge 在 DebugBridgeReady 时执行 `adb <command...>`。
func (g *Gate) RunDebugBridge(ctx context.Context, command string) (string, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return "", errors.Wrap(ErrInvalidRequest, "empty adb command")
	}
	return g.RunDebugBridgeArgs(ctx, args...)
}

// RunDebugBridgeArgs 与 RunDebugBridge 相同，参数已拆分。
func (g *Gate) RunDebugBridgeArgs(ctx context.Context, args ...string) (string, error) {
	if len(args) == 0 {
		return "", errors.Wrap(ErrInvalidRequest, "empty adb command")
	}
	if _, err := g.Authorize(TransportDebugBridge); err != nil {
		return "", err
	}
	res, err := g.runner.Run(ctx, g.tools.Path(tools.ADB), args...)
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// RunBootloader 执行自由格式的 fastboot 命令；expert 为 false 时无论状态如何都拒绝。
func (g *Gate) RunBootloader(ctx context.Context, expert bool, command string) (string, error) {
	if !expert {
		return "", errors.Wrap(ErrExpertModeRequired, "free-form fastboot command refused")
	}
	args := strings.Fields(command)
	if len(args) == 0 {
		return "", errors.Wrap(ErrInvalidRequest, "empty fastboot command")
	}
	return g.RunBootloaderArgs(ctx, args...)
}

// RunBootloaderArgs 在 BootloaderReady 时执行 `fastboot <args...>`，供内置操作与 pipeline 使用。
func (g *Gate) RunBootloaderArgs(ctx context.Context, args ...string) (string, error) {
	if len(args) == 0 {
		return "", errors.Wrap(ErrInvalidRequest, "empty fastboot command")
	}
	if _, err := g.Authorize(TransportBootloader); err != nil {
		return "", err
	}
	res, err := g.runner.Run(ctx, g.tools.Path(tools.Fastboot), args...)
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", err
	}
	// fastboot 把进度写到 stderr。
	return res.Output(), nil
}

// PrepareFlash 校验参数并计算风险等级，不启动进程。
func (g *Gate) PrepareFlash(partition, image string) (FlashRequest, error) {
	partition = strings.TrimSpace(partition)
	image = strings.TrimSpace(image)
	req := FlashRequest{Partition: partition, Image: image, Tier: risk.Classify(partition)}
	if partition == "" || strings.ContainsAny(partition, " \t/\\") {
		return req, errors.Wrapf(ErrInvalidRequest, "invalid partition name %q", partition)
	}
	if image == "" {
		return req, errors.Wrap(ErrInvalidRequest, "image path is empty")
	}
	info, err := os.Stat(image)
	if err != nil {
		return req, errors.Wrapf(ErrInvalidRequest, "image %s: %v", image, err)
	}
	if info.IsDir() {
		return req, errors.Wrapf(ErrInvalidRequest, "image %s is a directory", image)
	}
	req.ImageSize = info.Size()
	return req, nil
}

// FlashPartition 在 BootloaderReady 时执行 `fastboot flash <partition> <image>`。
// 刷写不可逆，任何情况下都不重试。
func (g *Gate) FlashPartition(ctx context.Context, partition, image string) (string, error) {
	snap, err := g.Authorize(TransportFlash)
	if err != nil {
		return "", err
	}
	req, err := g.PrepareFlash(partition, image)
	if err != nil {
		return "", err
	}
	req.State = snap.State

	log.Warn().
		Str("partition", req.Partition).
		Str("image", req.Image).
		Str("size", humanize.Bytes(uint64(req.ImageSize))).
		Str("risk", req.Tier.Label()).
		Msg("flashing partition")
	g.sink.Publish(ctx, notify.EventFlashRequest, FlashEvent{FlashRequest: req, Stage: FlashStarted})

	res, runErr := g.runner.Run(ctx, g.tools.Path(tools.Fastboot), "flash", req.Partition, req.Image)
	if runErr == nil {
		runErr = res.Err()
	}
	output := res.Output()
	if g.auditor != nil {
		g.auditor.RecordFlash(ctx, req, output, runErr)
	}
	if runErr != nil {
		log.Error().Err(runErr).Str("partition", req.Partition).Msg("flash failed")
		g.sink.Publish(ctx, notify.EventFlashRequest, FlashEvent{FlashRequest: req, Stage: FlashFailed, Error: runErr.Error()})
		return "", runErr
	}
	log.Info().Str("partition", req.Partition).Msg("flash finished")
	g.sink.Publish(ctx, notify.EventFlashRequest, FlashEvent{FlashRequest: req, Stage: FlashFinished})
	return output, nil
}

// RebootTarget 是重启目标。
type RebootTarget string

const (
	RebootSystem     RebootTarget = "system"
	RebootRecovery   RebootTarget = "recovery"
	RebootBootloader RebootTarget = "bootloader"
)

// Reboot 根据当前模式选择 adb reboot 或 fastboot reboot。
func (g *Gate) Reboot(ctx context.Context, target RebootTarget) (string, error) {
	args := []string{"reboot"}
	switch target {
	case "", RebootSystem:
	case RebootRecovery, RebootBootloader:
		args = append(args, string(target))
	default:
		return "", errors.Wrapf(ErrInvalidRequest, "unknown reboot target %q", target)
	}
	if g.states.Load().State == device.BootloaderReady {
		return g.RunBootloaderArgs(ctx, args...)
	}
	return g.RunDebugBridgeArgs(ctx, args...)
}
