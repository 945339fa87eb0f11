package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/httprunner/FlashAgent/internal/agent/device"
	"github.com/httprunner/FlashAgent/internal/agent/gate"
	"github.com/httprunner/FlashAgent/pkg/notify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Transports 是执行器依赖的受控命令通道，*gate.Gate 即满足该接口。
type Transports interface {
	Authorize(transport gate.Transport) (device.Snapshot, error)
	RunDebugBridgeArgs(ctx context.Context, args ...string) (string, error)
	RunBootloaderArgs(ctx context.Context, args ...string) (string, error)
	FlashPartition(ctx context.Context, partition, image string) (string, error)
}

// RunRecorder 持久化运行结果；可为空。
type RunRecorder interface {
	RecordRun(ctx context.Context, run *Run)
}

// Executor 顺序执行 pipeline 步骤，遇到第一个失败即停止。
type Executor struct {
	transports Transports
	sink       notify.Sink
	recorder   RunRecorder
	now        func() time.Time
}

// NewExecutor 构建执行器；sink 为 nil 时不发送进度事件。
func NewExecutor(transports Transports, sink notify.Sink) *Executor {
	if sink == nil {
		sink = notify.Discard{}
	}
	return &Executor{transports: transports, sink: sink, now: time.Now}
}

// WithRecorder 设置运行记录持久化。
func (e *Executor) WithRecorder(r RunRecorder) *Executor {
	e.recorder = r
	return e
}

// Execute 执行 pipeline。dryRun 时只校验并记录每一步将执行的命令，
// 既不检查设备状态也不启动任何外部进程。
// 运行开始后不响应 ctx 取消，避免设备停留在半完成状态。
func (e *Executor) Execute(ctx context.Context, p Pipeline, dryRun bool) (*Run, error) {
	ctx = context.WithoutCancel(ctx)
	run := &Run{
		ID:          uuid.NewString(),
		PipelineID:  p.ID,
		DryRun:      dryRun,
		Destructive: p.Destructive,
		Status:      StatusPending,
		FailedStep:  -1,
		StartedAt:   e.now(),
	}
	for i, s := range p.Steps {
		rec := StepRecord{Index: i, DryRun: dryRun, Status: StatusPending}
		if s != nil {
			rec.Kind = s.Kind()
			rec.Description = s.Describe()
		}
		run.Steps = append(run.Steps, rec)
	}

	logger := log.With().Str("run", run.ID).Str("pipeline", p.ID).Bool("dry_run", dryRun).Logger()

	if err := p.Validate(); err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			run.FailedStep = stepErr.Index
			run.Steps[stepErr.Index].Status = StatusFailed
			run.Steps[stepErr.Index].Error = stepErr.Err.Error()
		}
		return e.finish(ctx, run, err)
	}

	if !dryRun {
		if err := e.checkStart(p); err != nil {
			logger.Warn().Err(err).Msg("pipeline rejected")
			return e.finish(ctx, run, err)
		}
	}

	run.Status = StatusRunning
	logger.Info().Int("steps", len(p.Steps)).Msg("pipeline started")

	for i, s := range p.Steps {
		rec := &run.Steps[i]
		rec.Status = StatusRunning
		e.progress(ctx, run, i)

		v := &stepRunner{ctx: ctx, transports: e.transports, dryRun: dryRun, rec: rec}
		if err := s.Accept(v); err != nil {
			rec.Status = StatusFailed
			rec.Error = err.Error()
			run.FailedStep = i
			e.progress(ctx, run, i)
			logger.Error().Err(err).Int("step", i).Str("desc", rec.Description).Msg("pipeline step failed")
			return e.finish(ctx, run, &StepError{Index: i, Description: rec.Description, Err: err})
		}
		rec.Status = StatusCompleted
		e.progress(ctx, run, i)
	}

	logger.Info().Msg("pipeline completed")
	return e.finish(ctx, run, nil)
}

func (e *Executor) checkStart(p Pipeline) error {
	switch {
	case p.RequiresDebugBridge:
		_, err := e.transports.Authorize(gate.TransportDebugBridge)
		return err
	case p.RequiresBootloader:
		_, err := e.transports.Authorize(gate.TransportBootloader)
		return err
	}
	return nil
}

func (e *Executor) finish(ctx context.Context, run *Run, err error) (*Run, error) {
	run.FinishedAt = e.now()
	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
	} else {
		run.Status = StatusCompleted
	}
	if e.recorder != nil {
		e.recorder.RecordRun(ctx, run)
	}
	return run, err
}

func (e *Executor) progress(ctx context.Context, run *Run, index int) {
	rec := run.Steps[index]
	e.sink.Publish(ctx, notify.EventPipelineProgress, Progress{
		RunID:       run.ID,
		PipelineID:  run.PipelineID,
		Index:       index,
		Total:       len(run.Steps),
		Kind:        rec.Kind,
		Description: rec.Description,
		Status:      rec.Status,
		DryRun:      run.DryRun,
		Error:       rec.Error,
	})
}

// stepRunner 把单个步骤映射到受控命令通道。
type stepRunner struct {
	ctx        context.Context
	transports Transports
	dryRun     bool
	rec        *StepRecord
}

func (r *stepRunner) VisitShell(step ShellCommand) error {
	r.rec.Invocation = string(step.Transport) + " " + strings.Join(step.Args, " ")
	if r.dryRun {
		return nil
	}
	var (
		out string
		err error
	)
	switch step.Transport {
	case gate.TransportDebugBridge:
		out, err = r.transports.RunDebugBridgeArgs(r.ctx, step.Args...)
	case gate.TransportBootloader:
		out, err = r.transports.RunBootloaderArgs(r.ctx, step.Args...)
	default:
		return errors.Wrapf(ErrInvalidStep, "unsupported transport %q", step.Transport)
	}
	r.rec.Output = out
	return err
}

func (r *stepRunner) VisitFlash(step FlashCommand) error {
	r.rec.Invocation = "fastboot flash " + step.Partition + " " + step.Image
	if r.dryRun {
		return nil
	}
	out, err := r.transports.FlashPartition(r.ctx, step.Partition, step.Image)
	r.rec.Output = out
	return err
}

func (r *stepRunner) VisitAnnotate(step Annotate) error {
	r.rec.Output = step.Text
	return nil
}
