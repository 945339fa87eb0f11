package flashagent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// safeGroup 是带 panic 重启的 errgroup，用于 Agent 的常驻后台任务。
type safeGroup struct {
	*errgroup.Group
	ctx    context.Context
	parent context.Context
}

func newSafeGroup(ctx context.Context) *safeGroup {
	if ctx == nil {
		ctx = context.Background()
	}
	group, groupCtx := errgroup.WithContext(ctx)
	return &safeGroup{Group: group, ctx: groupCtx, parent: ctx}
}

// goSafe 运行 fn；panic 时写 stderr 并按指数退避重启，返回的错误照常取消整组。
// ctx 结束后不再重启。
func (sg *safeGroup) goSafe(name string, fn func(context.Context) error) {
	if sg == nil || fn == nil {
		return
	}
	sg.Go(func() error {
		backoff := 200 * time.Millisecond
		const maxBackoff = 30 * time.Second
		for {
			if sg.ctx.Err() != nil {
				return nil
			}
			recovered, err := runRecover(sg.ctx, fn)
			if recovered == nil {
				return err
			}
			// panic 可能来自 logger 本身，这里只写 stderr
			_, _ = fmt.Fprintf(os.Stderr, "WARN: %s panicked: %v\n%s\n", name, recovered, debug.Stack())

			jitter := time.Duration(0)
			if half := backoff / 2; half > 0 {
				jitter = time.Duration(time.Now().UnixNano() % int64(half))
			}
			select {
			case <-sg.ctx.Done():
				return nil
			case <-time.After(backoff + jitter):
			}
			backoff = min(backoff*2, maxBackoff)
		}
	})
}

func runRecover(ctx context.Context, fn func(context.Context) error) (recovered any, err error) {
	defer func() {
		if r := recover(); r != nil {
			recovered = r
		}
	}()
	return nil, fn(ctx)
}

// wait 等待所有任务结束；父 ctx 结束后最多再等 grace。
func (sg *safeGroup) wait(grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- sg.Wait() }()

	select {
	case err := <-done:
		return normalizeInterrupt(sg.parent, err)
	case <-sg.parent.Done():
	}
	if grace <= 0 {
		return nil
	}
	select {
	case err := <-done:
		return normalizeInterrupt(sg.parent, err)
	case <-time.After(grace):
		return errors.New("background workers did not stop in time")
	}
}

// normalizeInterrupt 把父 ctx 取消引起的错误视为正常退出。
func normalizeInterrupt(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return err
}
