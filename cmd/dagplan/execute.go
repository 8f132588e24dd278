package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dagplan/dagplan/internal/eventbus"
	"github.com/dagplan/dagplan/internal/executor"
)

func newExecuteCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "execute <dag-id>",
		Short: "Execute a planned DAG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			executionID, err := a.Executor.Execute(cmd.Context(), args[0], executor.ExecutionConfig{})
			if err != nil {
				return err
			}
			fmt.Printf("execution %s started\n", executionID)

			if a.Config.WebhookNotify != "" {
				go a.NotifyTerminalEvents(context.Background(), executionID)
			}
			if watch {
				watchExecution(cmd.Context(), a.Bus, executionID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "stream lifecycle events until the execution finishes")
	return cmd
}

// watchExecution prints executionID's event stream to stdout until a
// terminal event closes it.
func watchExecution(ctx context.Context, bus *eventbus.Bus, executionID string) {
	for ev := range bus.Stream(ctx, executionID) {
		if ev.Error != nil {
			fmt.Printf("[%s] %s: %s\n", ev.Type, executionID, ev.Error.Message)
		} else {
			fmt.Printf("[%s] %s\n", ev.Type, executionID)
		}
	}
}
