package pipeline

import (
	"strings"

	"github.com/httprunner/FlashAgent/internal/agent/gate"
	"github.com/pkg/errors"
)

// ErrInvalidStep 步骤定义不完整。
var ErrInvalidStep = errors.New("invalid pipeline step")

// StepVisitor 每种步骤对应一个方法。新增步骤类型时必须扩展该接口，
// 所有执行器随之无法编译，直到处理了新类型。
type StepVisitor interface {
	VisitShell(step ShellCommand) error
	VisitFlash(step FlashCommand) error
	VisitAnnotate(step Annotate) error
}

// Step 是封闭的步骤联合类型，只有本包内的类型可以实现。
type Step interface {
	Accept(v StepVisitor) error
	Kind() string
	Describe() string
	Validate() error
	sealed()
}

// ShellCommand 通过 adb 或 fastboot 执行一条命令。
type ShellCommand struct {
	Transport gate.Transport `json:"transport"`
	Args      []string       `json:"args"`
}

func (s ShellCommand) Accept(v StepVisitor) error { return v.VisitShell(s) }
func (ShellCommand) Kind() string                 { return "shell" }
func (ShellCommand) sealed()                      {}

func (s ShellCommand) Describe() string {
	return strings.TrimSpace(string(s.Transport) + " " + strings.Join(s.Args, " "))
}

func (s ShellCommand) Validate() error {
	switch s.Transport {
	case gate.TransportDebugBridge, gate.TransportBootloader:
	default:
		return errors.Wrapf(ErrInvalidStep, "shell step has unsupported transport %q", s.Transport)
	}
	if len(s.Args) == 0 || strings.TrimSpace(s.Args[0]) == "" {
		return errors.Wrap(ErrInvalidStep, "shell step has no arguments")
	}
	return nil
}

// FlashCommand 把镜像写入分区。
type FlashCommand struct {
	Partition string `json:"partition"`
	Image     string `json:"image"`
}

func (f FlashCommand) Accept(v StepVisitor) error { return v.VisitFlash(f) }
func (FlashCommand) Kind() string                 { return "flash" }
func (FlashCommand) sealed()                      {}

func (f FlashCommand) Describe() string {
	return "fastboot flash " + f.Partition + " " + f.Image
}

func (f FlashCommand) Validate() error {
	if strings.TrimSpace(f.Partition) == "" {
		return errors.Wrap(ErrInvalidStep, "flash step has no partition")
	}
	if strings.TrimSpace(f.Image) == "" {
		return errors.Wrap(ErrInvalidStep, "flash step has no image")
	}
	return nil
}

// Annotate 只产生进度消息，没有外部副作用。
type Annotate struct {
	Text string `json:"text"`
}

func (a Annotate) Accept(v StepVisitor) error { return v.VisitAnnotate(a) }
func (Annotate) Kind() string                 { return "annotate" }
func (Annotate) sealed()                      {}
func (a Annotate) Describe() string           { return a.Text }
func (Annotate) Validate() error              { return nil }
