package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/httprunner/FlashAgent/pkg/pipeline"
	"github.com/spf13/cobra"
)

func newPipelinesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pipelines",
		Aliases: []string{"pipeline"},
		Short:   "List or run built-in command pipelines",
	}
	cmd.AddCommand(newPipelinesListCmd(), newPipelinesRunCmd())
	return cmd
}

func newPipelinesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := openAgent(cmd.Context(), agentOptions{})
			if err != nil {
				return err
			}
			defer agent.Close()

			descriptors := agent.ListPipelines()
			if rootJSON {
				return printJSON(descriptors)
			}
			for _, d := range descriptors {
				var tags []string
				if d.RequiresDebugBridge {
					tags = append(tags, "adb")
				}
				if d.RequiresBootloader {
					tags = append(tags, "fastboot")
				}
				if d.Destructive {
					tags = append(tags, "destructive")
				}
				fmt.Printf("%-20s [%s] %s\n", d.ID, strings.Join(tags, ","), d.Description)
				for i, step := range d.Steps {
					fmt.Printf("    %d. %s\n", i+1, step)
				}
			}
			return nil
		},
	}
}

func newPipelinesRunCmd() *cobra.Command {
	var flagDryRun bool

	cmd := &cobra.Command{
		Use:   "run <pipeline-id>",
		Short: "Run a pipeline, or preview it with --dry-run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			agent, err := openAgent(ctx, agentOptions{})
			if err != nil {
				return err
			}
			defer agent.Close()

			go printEvents(agent.Events())
			run, err := agent.RunPipeline(ctx, args[0], flagDryRun)
			if run != nil {
				printRun(run)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "只校验并展示步骤，不启动任何进程")
	return cmd
}

func printRun(run *pipeline.Run) {
	if rootJSON {
		_ = printJSON(run)
		return
	}
	mode := "run"
	if run.DryRun {
		mode = "dry-run"
	}
	fmt.Printf("%s %s (%s) %s in %s\n", mode, run.PipelineID, run.ID, run.Status, run.Duration().Round(time.Millisecond))
	for _, step := range run.Steps {
		line := step.Description
		if step.Invocation != "" {
			line = step.Invocation
		}
		fmt.Printf("  %d. [%s] %s\n", step.Index+1, step.Status, line)
		if step.Error != "" {
			fmt.Printf("     error: %s\n", step.Error)
		}
	}
}
