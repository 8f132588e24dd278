package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <execution-id>",
		Short: "Show an execution's status and sub-step table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			exec, err := a.Store.GetExecution(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			steps, err := a.Store.ListSubSteps(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			summary := table.NewWriter()
			summary.AppendHeader(table.Row{"ID", "DAG", "Status", "Completed", "Failed", "Waiting", "Cost USD"})
			cost := ""
			if exec.TotalCostUSD != nil {
				cost = *exec.TotalCostUSD
			}
			summary.AppendRow(table.Row{exec.ID, exec.DAGID, exec.Status, exec.CompletedTasks, exec.FailedTasks, exec.WaitingTasks, cost})
			fmt.Println(summary.Render())

			steptbl := table.NewWriter()
			steptbl.AppendHeader(table.Row{"Task", "Name", "Status", "Duration (ms)", "Error"})
			for _, s := range steps {
				steptbl.AppendRow(table.Row{s.TaskID, s.ToolOrPromptName, s.Status, s.DurationMs, s.Error})
			}
			fmt.Println(steptbl.Render())
			return nil
		},
	}
}
