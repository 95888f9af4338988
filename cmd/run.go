// -- cmd/run.go --
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/internal/bridge"
	"github.com/xkilldash9x/operant/internal/observability"
)

const bridgeTeardownBudget = 30 * time.Second

// newRunCmd creates the `run` command: one agent turn per task, against a
// live browser. Without a task argument it drops into an interactive loop
// where consecutive tasks share one conversation.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Execute a task with the autonomous agent in a live browser",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			b := bridge.NewBridge(loadedConfig(), logger)
			if err := b.Initialize(ctx); err != nil {
				return fmt.Errorf("starting the agent stack: %w", err)
			}
			defer teardownBridge(b, logger)

			if len(args) == 1 {
				report, err := b.ExecuteTask(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Message)
				return nil
			}
			return runInteractive(ctx, cmd, b)
		},
	}
	return runCmd
}

// runInteractive reads tasks from stdin until EOF or an exit keyword. The
// conversation carries across tasks, so follow-ups can reference earlier
// results.
func runInteractive(ctx context.Context, cmd *cobra.Command, b *bridge.Bridge) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, `Enter tasks, one per line. Follow-ups share the conversation. "exit" or Ctrl+D quits.`)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "operant > ")
		if !scanner.Scan() {
			break
		}

		task := strings.TrimSpace(scanner.Text())
		if task == "" {
			continue
		}
		if task == "exit" || task == "quit" {
			break
		}

		report, err := b.ExecuteTask(ctx, task)
		if err != nil {
			// An interrupt ends the session; a failed task does not.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "task failed: %v\n", err)
			continue
		}
		fmt.Fprintln(out, report.Message)
	}
	return scanner.Err()
}

// teardownBridge releases the browser on a fresh deadline; the caller's
// context may already be cancelled by the time we get here.
func teardownBridge(b *bridge.Bridge, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), bridgeTeardownBudget)
	defer cancel()

	logger.Info("Session ended.", zap.Int("history_items", len(b.History())))
	if err := b.Cleanup(ctx); err != nil {
		logger.Warn("Bridge cleanup failed.", zap.Error(err))
	}
}
