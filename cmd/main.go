package main

import (
	"io"
	"os"
	"strings"

	"github.com/httprunner/FlashAgent/internal/env"
	"github.com/httprunner/FlashAgent/pkg/diagnostics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flashagent",
	Short: "Device state manager for adb, fastboot and MediaTek preloader",
	Long:  `flashagent 持续探测 USB 设备所处模式（adb / fastboot / MTK preloader），按当前状态放行命令、评估刷写风险并执行内置流水线；日志统一为结构化输出。`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(rootLogLevel)
	},
	SilenceUsage: true,
}

var (
	rootToolsDir string
	rootLogLevel string
	rootJSON     bool

	// logBuffer 保存最近的日志行，diag 命令会把它写进诊断包
	logBuffer = diagnostics.NewLogBuffer(diagnostics.DefaultLogLines)
)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootToolsDir, "tools-dir", "", "platform-tools 目录，覆盖 FLASHAGENT_PLATFORM_TOOLS_DIR")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "日志级别 (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&rootJSON, "json", false, "以 JSON 输出结果")
	rootCmd.AddCommand(
		newStateCmd(),
		newWatchCmd(),
		newInfoCmd(),
		newToolsCmd(),
		newDiagCmd(),
		newAdbCmd(),
		newFastbootCmd(),
		newFlashCmd(),
		newRebootCmd(),
		newRiskCmd(),
		newPipelinesCmd(),
	)
	_ = env.Ensure()
}

func setupLogger(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	var writer io.Writer = zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: os.Stderr},
		zerolog.ConsoleWriter{Out: logBuffer, NoColor: true},
	)
	log.Logger = zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("flashagent command failed")
	}
}
