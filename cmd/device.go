package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	flashagent "github.com/httprunner/FlashAgent"
	"github.com/httprunner/FlashAgent/internal/agent/device"
	"github.com/httprunner/FlashAgent/internal/agent/gate"
	"github.com/httprunner/FlashAgent/internal/tools"
	"github.com/httprunner/FlashAgent/pkg/notify"
	"github.com/httprunner/FlashAgent/pkg/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Probe once and print the current device state",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := openAgent(cmd.Context(), agentOptions{})
			if err != nil {
				return err
			}
			defer agent.Close()

			snap := agent.Snapshot()
			caps := agent.Capabilities()
			if rootJSON {
				return printJSON(map[string]any{"snapshot": snap, "capabilities": caps})
			}
			fmt.Printf("state:        %s\n", snap.State)
			if snap.PreloaderMode != "" {
				fmt.Printf("preloader:    %s\n", snap.PreloaderMode)
			}
			fmt.Printf("capabilities: %s\n", caps.Description)
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	var flagInterval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the detection loop and print state transitions",
		Long:  "Continuously probes the device, journals transitions and optionally uploads them to the Feishu state table until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			agent, err := openAgent(sigCtx, agentOptions{
				recorder: true,
				configure: func(cfg *flashagent.Config) {
					if flagInterval > 0 {
						cfg.PollInterval = flagInterval
					}
				},
				// --log-level debug 时事件同时写入日志
				extra: []flashagent.Option{flashagent.WithSink(notify.LogSink{})},
			})
			if err != nil {
				return err
			}
			defer agent.Close()

			go printEvents(agent.Events())
			err = agent.Run(sigCtx)
			if dropped := agent.DroppedEvents(); dropped > 0 {
				log.Warn().Uint64("dropped", dropped).Msg("events dropped while printing")
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&flagInterval, "interval", 0, "轮询间隔，覆盖 FLASHAGENT_POLL_INTERVAL")
	return cmd
}

func printEvents(events <-chan notify.Event) {
	for ev := range events {
		if rootJSON {
			_ = printJSON(ev)
			continue
		}
		switch payload := ev.Payload.(type) {
		case device.Snapshot:
			fmt.Printf("%s  #%d %s %s\n", ev.At.Format(time.TimeOnly), payload.Seq, payload.State, payload.PreloaderMode)
		case pipeline.Progress:
			fmt.Printf("%s  [%s %d/%d] %s: %s\n", ev.At.Format(time.TimeOnly),
				payload.PipelineID, payload.Index+1, payload.Total, payload.Status, payload.Description)
		case gate.FlashEvent:
			fmt.Printf("%s  flash %s [%s] %s %s\n", ev.At.Format(time.TimeOnly),
				payload.Partition, payload.Tier.Label(), payload.Stage, payload.Error)
		default:
			log.Debug().Str("event", ev.Name).Msg("unhandled event")
		}
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show device properties over adb",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			agent, err := openAgent(ctx, agentOptions{})
			if err != nil {
				return err
			}
			defer agent.Close()

			info, err := agent.DeviceInfo(ctx)
			if err != nil {
				return err
			}
			rooted, err := agent.RootStatus(ctx)
			if err != nil {
				return err
			}
			if rootJSON {
				return printJSON(struct {
					flashagent.DeviceInfo
					Rooted bool `json:"rooted"`
				}{info, rooted})
			}
			fmt.Printf("serial:   %s\n", info.Serial)
			fmt.Printf("model:    %s\n", info.Model)
			fmt.Printf("android:  %s\n", info.AndroidVersion)
			fmt.Printf("platform: %s\n", info.Platform)
			fmt.Printf("profile:  %s\n", info.Profile)
			fmt.Printf("rooted:   %t\n", rooted)
			return nil
		},
	}
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Check that adb and fastboot are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := flashagent.ConfigFromEnv()
			dir := firstNonEmpty(rootToolsDir, cfg.ToolsDir, tools.DefaultDir())
			agent, err := openAgent(cmd.Context(), agentOptions{})
			if err != nil {
				return err
			}
			defer agent.Close()
			installed := agent.ToolsInstalled()
			if rootJSON {
				return printJSON(map[string]any{"dir": dir, "installed": installed})
			}
			fmt.Printf("platform-tools: %s\ninstalled:      %t\n", dir, installed)
			if !installed {
				return fmt.Errorf("adb/fastboot not found under %s or $PATH", dir)
			}
			return nil
		},
	}
}

func newDiagCmd() *cobra.Command {
	var flagOutDir string

	cmd := &cobra.Command{
		Use:   "diag",
		Short: "Export a diagnostics zip archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			agent, err := openAgent(ctx, agentOptions{})
			if err != nil {
				return err
			}
			defer agent.Close()

			outDir := firstNonEmpty(flagOutDir, ".")
			path, err := agent.ExportDiagnostics(ctx, outDir)
			if err != nil {
				return err
			}
			if stat, statErr := os.Stat(path); statErr == nil {
				log.Info().Str("path", path).Str("size", humanize.Bytes(uint64(stat.Size()))).Msg("diagnostics exported")
			}
			fmt.Println(path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&flagOutDir, "out", "o", "", "输出目录，默认当前目录")
	return cmd
}
