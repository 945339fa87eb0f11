package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	flashagent "github.com/httprunner/FlashAgent"
	"github.com/httprunner/FlashAgent/pkg/devrecorder"
)

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// agentOptions 调整 openAgent 构建的 Agent。
type agentOptions struct {
	// recorder 为 true 时按环境变量启用飞书状态上报
	recorder  bool
	configure func(*flashagent.Config)
	extra     []flashagent.Option
}

// openAgent 按环境变量与全局 flag 构建 Agent，并同步探测一次设备状态。
func openAgent(ctx context.Context, o agentOptions) (*flashagent.Agent, error) {
	cfg := flashagent.ConfigFromEnv()
	cfg.ToolsDir = firstNonEmpty(rootToolsDir, cfg.ToolsDir)
	if o.configure != nil {
		o.configure(&cfg)
	}

	opts := []flashagent.Option{flashagent.WithLogBuffer(logBuffer)}
	if o.recorder {
		rec, err := devrecorder.NewFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, flashagent.WithRecorder(rec))
	}
	opts = append(opts, o.extra...)
	agent, err := flashagent.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	agent.Refresh(ctx)
	return agent, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOutput(out string) {
	if out == "" {
		return
	}
	fmt.Print(out)
	if !strings.HasSuffix(out, "\n") {
		fmt.Println()
	}
}

type passthrough struct {
	args  []string
	flags map[string]bool
	help  bool
}

// parsePassthrough 处理透传命令前导的 flashagent flag（全局 flag 与 localBools），
// 遇到第一个非 flag 参数或 "--" 后其余参数原样保留。
func parsePassthrough(args []string, localBools []string) (passthrough, error) {
	res := passthrough{flags: make(map[string]bool)}
	i := 0
loop:
	for ; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch {
		case arg == "--":
			i++
			break loop
		case arg == "-h" || arg == "--help":
			res.help = true
		case name == "--json":
			res.flags[name] = true
			rootJSON = true
		case name == "--tools-dir" || name == "--log-level":
			if !hasValue {
				if i+1 >= len(args) {
					return res, fmt.Errorf("flag %s needs an argument", name)
				}
				i++
				value = args[i]
			}
			if name == "--tools-dir" {
				rootToolsDir = value
			} else {
				rootLogLevel = value
				if err := setupLogger(value); err != nil {
					return res, err
				}
			}
		case slices.Contains(localBools, name):
			res.flags[name] = true
		default:
			break loop
		}
	}
	res.args = append([]string(nil), args[i:]...)
	return res, nil
}
