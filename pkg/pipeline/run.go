package pipeline

import (
	"fmt"
	"time"
)

// Status 是一次运行的生命周期状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StepRecord 记录单个步骤的执行结果。
type StepRecord struct {
	Index       int    `json:"index"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	// Invocation 是步骤对应的完整外部命令；Annotate 步骤为空
	Invocation string `json:"invocation,omitempty"`
	Output     string `json:"output,omitempty"`
	DryRun     bool   `json:"dry_run"`
	Status     Status `json:"status"`
	Error      string `json:"error,omitempty"`
}

// Run 是一次 pipeline 执行的完整记录。
type Run struct {
	ID          string       `json:"id"`
	PipelineID  string       `json:"pipeline_id"`
	DryRun      bool         `json:"dry_run"`
	Destructive bool         `json:"destructive"`
	Status      Status       `json:"status"`
	Steps       []StepRecord `json:"steps"`
	// FailedStep 为失败步骤的下标，没有步骤失败时为 -1
	FailedStep int       `json:"failed_step"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration 返回运行耗时。
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StepError 标识导致运行中止的步骤。
type StepError struct {
	Index       int
	Description string
	Err         error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index, e.Description, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Progress 是 pipeline-progress 事件的载荷。
type Progress struct {
	RunID       string `json:"run_id"`
	PipelineID  string `json:"pipeline_id"`
	Index       int    `json:"index"`
	Total       int    `json:"total"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Status      Status `json:"status"`
	DryRun      bool   `json:"dry_run"`
	Error       string `json:"error,omitempty"`
}
