// Package process 封装外部程序（adb/fastboot/lsusb 等）的调用。
//
// Run 只在进程无法启动（二进制缺失、权限不足）或超时时返回 error；
// 程序正常运行但退出码非零属于执行结果，由 Result.Err 转换为 *ExitError。
package process

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrToolUnavailable 表示外部程序不存在或无法启动。
	ErrToolUnavailable = errors.New("tool unavailable")
	// ErrTimeout 表示外部程序在截止时间内未结束并被终止。
	ErrTimeout = errors.New("tool timed out")
)

const waitDelay = 500 * time.Millisecond

// Runner 执行外部程序并捕获输出。
type Runner interface {
	Run(ctx context.Context, program string, args ...string) (Result, error)
}

// Result 保存一次调用的输出与退出状态。
type Result struct {
	Program  string
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Success 表示进程以 0 退出。
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Output 返回 stdout，stdout 为空时回落到 stderr（fastboot 习惯把结果写到 stderr）。
func (r Result) Output() string {
	if out := strings.TrimSpace(r.Stdout); out != "" {
		return r.Stdout
	}
	return r.Stderr
}

// Err 在退出码非零时返回 *ExitError。
func (r Result) Err() error {
	if r.Success() {
		return nil
	}
	return &ExitError{Program: r.Program, Args: r.Args, ExitCode: r.ExitCode, Stderr: r.Stderr}
}

// ExitError 表示外部程序运行完成但退出码非零，Stderr 原样保留。
type ExitError struct {
	Program  string
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "no stderr output"
	}
	return fmt.Sprintf("%s %s exited with code %d: %s", e.Program, strings.Join(e.Args, " "), e.ExitCode, msg)
}

// ExecRunner 基于 os/exec 的 Runner 实现。
type ExecRunner struct{}

// NewExecRunner 返回默认 Runner。
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run 启动 program 并等待结束。ctx 到期时进程被杀死并返回 ErrTimeout。
func (ExecRunner) Run(ctx context.Context, program string, args ...string) (result Result, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	result = Result{Program: program, Args: append([]string(nil), args...), ExitCode: -1}
	if strings.TrimSpace(program) == "" {
		return result, errors.Wrap(ErrToolUnavailable, "empty program")
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrToolUnavailable, "spawn %s panicked: %v", program, r)
		}
	}()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// 子进程继承输出管道时，避免 Wait 在 kill 之后无限等待。
	cmd.WaitDelay = waitDelay
	hideWindow(cmd)

	start := time.Now()
	runErr := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Debug().Str("program", program).Dur("elapsed", result.Duration).Msg("process killed by context")
		return result, errors.Wrapf(ErrTimeout, "%s: %v", program, ctxErr)
	}
	if runErr == nil {
		result.ExitCode = 0
		return result, nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, errors.Wrapf(ErrToolUnavailable, "spawn %s: %v", program, runErr)
}
