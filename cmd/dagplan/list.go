package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dagplan/dagplan/internal/store"
)

func newListCommand() *cobra.Command {
	var (
		dagID  string
		status string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions, optionally filtered by DAG or status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			executions, err := a.Store.ListExecutions(cmd.Context(), store.ExecutionFilter{
				DAGID:  dagID,
				Status: store.ExecutionStatus(status),
			})
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.AppendHeader(table.Row{"ID", "DAG", "Status", "Total", "Completed", "Failed", "Created"})
			for _, e := range executions {
				t.AppendRow(table.Row{e.ID, e.DAGID, e.Status, e.TotalTasks, e.CompletedTasks, e.FailedTasks, e.CreatedAt.Format("2006-01-02 15:04:05")})
			}
			fmt.Println(t.Render())
			return nil
		},
	}

	cmd.Flags().StringVar(&dagID, "dag", "", "filter by DAG id")
	cmd.Flags().StringVar(&status, "status", "", "filter by execution status")
	return cmd
}
