// Package probe 实现三种互相独立、无状态的传输模式探测。
//
// 每个探测只发起一次外部查询并带超时；设备不存在、工具缺失、超时都是正常的
// Absent 结果，不会作为错误向上传播。
package probe

import (
	"context"
	"time"

	"github.com/httprunner/FlashAgent/internal/process"
	"github.com/httprunner/FlashAgent/internal/tools"
)

// DefaultTimeout 单次探测的默认超时。
const DefaultTimeout = 2 * time.Second

// Detail 携带探测特有的附加信息。
type Detail string

const (
	DetailNone         Detail = ""
	DetailAuthorized   Detail = "authorized"
	DetailUnauthorized Detail = "unauthorized"
	DetailPreloader    Detail = "preloader"
	DetailBootROM      Detail = "brom"
)

// Result 是探测结果：Absent 或 Present(detail)。
type Result struct {
	Present bool
	Detail  Detail
}

// Absent 表示该传输模式下没有设备。
func Absent() Result { return Result{} }

// Present 表示该传输模式下有设备。
func Present(detail Detail) Result { return Result{Present: true, Detail: detail} }

func (r Result) String() string {
	if !r.Present {
		return "absent"
	}
	if r.Detail == DetailNone {
		return "present"
	}
	return "present(" + string(r.Detail) + ")"
}

// Prober 查询一个外部事实来源。
type Prober interface {
	Name() string
	Probe(ctx context.Context) Result
}

// Func 把函数适配为 Prober，便于测试。
type Func struct {
	Label string
	Fn    func(ctx context.Context) Result
}

func (f Func) Name() string { return f.Label }

func (f Func) Probe(ctx context.Context) Result {
	if f.Fn == nil {
		return Absent()
	}
	return f.Fn(ctx)
}

// base 负责超时与工具路径解析。
type base struct {
	runner  process.Runner
	tools   tools.Provider
	timeout time.Duration
}

func newBase(runner process.Runner, provider tools.Provider, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return base{runner: runner, tools: provider, timeout: timeout}
}

func (b base) resolve(tool string) string {
	if b.tools == nil {
		return tool
	}
	return b.tools.Path(tool)
}

func (b base) run(ctx context.Context, program string, args ...string) (process.Result, bool) {
	if b.runner == nil {
		return process.Result{}, false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	res, err := b.runner.Run(ctx, program, args...)
	if err != nil {
		return res, false
	}
	return res, true
}
