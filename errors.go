package flashagent

import (
	"github.com/httprunner/FlashAgent/internal/agent/gate"
	"github.com/httprunner/FlashAgent/internal/process"
	"github.com/httprunner/FlashAgent/pkg/pipeline"
)

// 对外错误，均可用 errors.Is / errors.As 判断。
var (
	ErrToolUnavailable        = process.ErrToolUnavailable
	ErrTimeout                = process.ErrTimeout
	ErrTransportNotAuthorized = gate.ErrTransportNotAuthorized
	ErrExpertModeRequired     = gate.ErrExpertModeRequired
	ErrInvalidRequest         = gate.ErrInvalidRequest
	ErrPipelineNotFound       = pipeline.ErrPipelineNotFound
	ErrInvalidStep            = pipeline.ErrInvalidStep
)

type (
	// ExitError 外部命令以非零状态退出。
	ExitError = process.ExitError
	// StepError pipeline 某一步失败。
	StepError = pipeline.StepError
)
