package flashagent

import (
	"context"

	"github.com/httprunner/FlashAgent/internal/agent/device"
	"github.com/httprunner/FlashAgent/internal/agent/gate"
	"github.com/httprunner/FlashAgent/pkg/pipeline"
	"github.com/httprunner/FlashAgent/pkg/risk"
)

// CurrentDeviceState 返回当前状态，不触发探测。
func (a *Agent) CurrentDeviceState() device.State {
	return a.store.State()
}

// RunDebugBridgeCommand 在 DebugBridgeReady 时执行 `adb <command>` 并返回标准输出。
func (a *Agent) RunDebugBridgeCommand(ctx context.Context, command string) (string, error) {
	return a.gate.RunDebugBridge(ctx, command)
}

// RunBootloaderCommand 执行自由格式的 fastboot 命令；expert 为 false 时总是拒绝。
func (a *Agent) RunBootloaderCommand(ctx context.Context, expert bool, command string) (string, error) {
	return a.gate.RunBootloader(ctx, expert, command)
}

// FlashPartition 在 BootloaderReady 时刷写分区。风险等级只用于日志与审计，不阻止操作。
func (a *Agent) FlashPartition(ctx context.Context, partition, imagePath string) (string, error) {
	return a.gate.FlashPartition(ctx, partition, imagePath)
}

// PrepareFlash 校验刷写参数并返回风险评估，不检查设备状态也不执行。
func (a *Agent) PrepareFlash(partition, imagePath string) (gate.FlashRequest, error) {
	return a.gate.PrepareFlash(partition, imagePath)
}

// Reboot 根据当前模式选择 adb 或 fastboot 重启到 target。
func (a *Agent) Reboot(ctx context.Context, target gate.RebootTarget) (string, error) {
	return a.gate.Reboot(ctx, target)
}

// ListPipelines 返回所有已注册 pipeline 的描述。
func (a *Agent) ListPipelines() []pipeline.Descriptor {
	return a.registry.List()
}

// RunPipeline 按 ID 执行 pipeline。
func (a *Agent) RunPipeline(ctx context.Context, id string, dryRun bool) (*pipeline.Run, error) {
	p, err := a.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return a.executor.Execute(ctx, p, dryRun)
}

// ClassifyPartitionRisk 返回分区的风险等级。
func (a *Agent) ClassifyPartitionRisk(partition string) risk.Tier {
	return risk.Classify(partition)
}
