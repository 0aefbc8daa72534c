package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/operator-console/internal/model"
	"github.com/capitalize-ai/operator-console/internal/poller"
)

func init() {
	rootCmd.AddCommand(taskProgressCmd)
}

var taskProgressCmd = &cobra.Command{
	Use:   "task-progress <task-id>",
	Short: "Follow a bulk message task until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		task := poller.NewTaskProgress(newBackend(cfg, log), args[0], cfg.PollInterval, func(p model.TaskProgress) {
			fmt.Fprintf(out, "%-10s %3d%%  %d/%d\n", p.Status, p.Percent, p.SuccessCount, p.PhoneCount)
		}, log)

		task.Start(ctx)
		select {
		case <-task.Done():
		case <-ctx.Done():
			task.Stop()
		}

		if p, ok := task.Latest(); ok && p.Status.Terminal() && p.Status != model.TaskCompleted {
			return fmt.Errorf("task %s ended %s", p.TaskID, p.Status)
		}
		return nil
	},
}
