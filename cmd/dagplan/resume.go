package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dagplan/dagplan/internal/executor"
)

func newResumeCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "resume <execution-id>",
		Short: "Resume a suspended or failed execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Executor.Resume(cmd.Context(), args[0], executor.ExecutionConfig{}); err != nil {
				return err
			}
			fmt.Printf("execution %s resumed\n", args[0])

			if watch {
				watchExecution(cmd.Context(), a.Bus, args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "stream lifecycle events until the execution finishes")
	return cmd
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <execution-id>",
		Short: "Request a cooperative stop of a running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Stops.RequestStopForExecution(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("stop requested for execution %s\n", args[0])
			return nil
		},
	}
}
