// Package processtest 提供可编排输出的 process.Runner 替身。
package processtest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/httprunner/FlashAgent/internal/process"
	"github.com/pkg/errors"
)

// Response 描述一次调用的预设结果。
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Call 记录一次调用。
type Call struct {
	Program string
	Args    []string
}

// Line 返回 "program arg1 arg2" 形式，program 仅保留文件名。
func (c Call) Line() string {
	return strings.TrimSpace(toolName(c.Program) + " " + strings.Join(c.Args, " "))
}

// Fake 按 "程序名 参数..." 匹配预设响应；未匹配的调用视为工具缺失。
type Fake struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []Call
}

// New 构建空的 Fake。
func New() *Fake {
	return &Fake{responses: make(map[string]Response)}
}

// Set 为 line（如 "adb get-state"）设置响应，可在运行期修改。
func (f *Fake) Set(line string, resp Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[strings.TrimSpace(line)] = resp
}

// Unset 删除 line 的响应。
func (f *Fake) Unset(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.responses, strings.TrimSpace(line))
}

// Run 实现 process.Runner。
func (f *Fake) Run(ctx context.Context, program string, args ...string) (process.Result, error) {
	call := Call{Program: program, Args: append([]string(nil), args...)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	resp, ok := f.responses[call.Line()]
	f.mu.Unlock()

	result := process.Result{Program: program, Args: call.Args, ExitCode: -1}
	if !ok {
		return result, errors.Wrapf(process.ErrToolUnavailable, "spawn %s: executable file not found", program)
	}
	if resp.Err != nil {
		return result, resp.Err
	}
	result.Stdout = resp.Stdout
	result.Stderr = resp.Stderr
	result.ExitCode = resp.ExitCode
	return result, nil
}

// Calls 返回调用记录的副本。
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount 返回调用次数。
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Called 判断是否出现过 line 对应的调用。
func (f *Fake) Called(line string) bool {
	line = strings.TrimSpace(line)
	for _, c := range f.Calls() {
		if c.Line() == line {
			return true
		}
	}
	return false
}

// Reset 清空调用记录。
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func toolName(program string) string {
	base := filepath.Base(program)
	return strings.TrimSuffix(base, ".exe")
}
