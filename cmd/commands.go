package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/httprunner/FlashAgent/internal/agent/gate"
	"github.com/httprunner/FlashAgent/pkg/risk"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newAdbCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "adb [--json] [--tools-dir dir] [--] <command...>",
		Short:              "Run an adb command when the debug bridge is ready",
		Long:               "Arguments are passed to adb unchanged, including flags such as `shell ls -l`. Global flags must come before the adb command; `--` ends flashagent flags explicitly.",
		// adb 的参数原样透传，flashagent 自己的 flag 由 parsePassthrough 处理
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := parsePassthrough(args, nil)
			if err != nil {
				return err
			}
			if pass.help {
				return cmd.Help()
			}
			if len(pass.args) == 0 {
				return errors.New("adb command is required")
			}
			ctx := cmd.Context()
			agent, err := openAgent(ctx, agentOptions{})
			if err != nil {
				return err
			}
			defer agent.Close()

			out, err := agent.RunDebugBridgeCommand(ctx, strings.Join(pass.args, " "))
			if err != nil {
				return err
			}
			printOutput(out)
			return nil
		},
	}
}

func newFastbootCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "fastboot [--expert] [--] <command...>",
		Short:              "Run a free-form fastboot command (expert mode)",
		Long:               "Arguments are passed to fastboot unchanged. --expert and global flags must come before the fastboot command; `--` ends flashagent flags explicitly.",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := parsePassthrough(args, []string{"--expert"})
			if err != nil {
				return err
			}
			if pass.help {
				return cmd.Help()
			}
			if len(pass.args) == 0 {
				return errors.New("fastboot command is required")
			}
			ctx := cmd.Context()
			agent, err := openAgent(ctx, agentOptions{})
			if err != nil {
				return err
			}
			defer agent.Close()

			out, err := agent.RunBootloaderCommand(ctx, pass.flags["--expert"], strings.Join(pass.args, " "))
			if err != nil {
				return err
			}
			printOutput(out)
			return nil
		},
	}
}

func newFlashCmd() *cobra.Command {
	var flagYes bool

	cmd := &cobra.Command{
		Use:   "flash <partition> <image>",
		Short: "Flash an image to a partition in fastboot mode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			agent, err := openAgent(ctx, agentOptions{})
			if err != nil {
				return err
			}
			defer agent.Close()

			req, err := agent.PrepareFlash(args[0], args[1])
			if err != nil {
				return err
			}
			summary := risk.Summary(req.Partition)
			log.Info().
				Str("partition", req.Partition).
				Str("size", humanize.Bytes(uint64(req.ImageSize))).
				Str("risk", summary).
				Msg("flash request")
			if req.Tier >= risk.High && !flagYes {
				return errors.Errorf("partition %s is %s; re-run with --yes to confirm", req.Partition, summary)
			}
			out, err := agent.FlashPartition(ctx, req.Partition, req.Image)
			if err != nil {
				return err
			}
			printOutput(out)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "确认刷写高风险分区")
	return cmd
}

func newRebootCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "reboot [system|recovery|bootloader]",
		Short:     "Reboot the device through adb or fastboot",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(gate.RebootSystem), string(gate.RebootRecovery), string(gate.RebootBootloader)},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target := gate.RebootSystem
			if len(args) == 1 {
				target = gate.RebootTarget(strings.ToLower(args[0]))
			}
			agent, err := openAgent(ctx, agentOptions{})
			if err != nil {
				return err
			}
			defer agent.Close()

			out, err := agent.Reboot(ctx, target)
			if err != nil {
				return err
			}
			printOutput(out)
			return nil
		},
	}
}

func newRiskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "risk <partition...>",
		Short: "Classify the flash risk of partitions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			type row struct {
				Partition string    `json:"partition"`
				Tier      risk.Tier `json:"tier"`
				Reason    string    `json:"reason"`
			}
			rows := make([]row, 0, len(args))
			for _, partition := range args {
				tier, reason := risk.Describe(partition)
				rows = append(rows, row{Partition: partition, Tier: tier, Reason: reason})
			}
			if rootJSON {
				return printJSON(rows)
			}
			for _, r := range rows {
				fmt.Printf("%-16s %-8s %s\n", r.Partition, r.Tier.Label(), r.Reason)
			}
			return nil
		},
	}
}
