package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dagplan/dagplan/internal/planner"
)

func newPlanCommand() *cobra.Command {
	var (
		agentName    string
		provider     string
		model        string
		cronSchedule string
		timezone     string
		scheduleOn   bool
	)

	cmd := &cobra.Command{
		Use:   "plan <goal text>",
		Short: "Decompose a goal into a task DAG",
		Long:  `dagplan plan [--agent=decomposer] [--provider=...] [--model=...] "<goal text>"`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if provider == "" {
				provider = a.Config.DefaultProvider
			}
			if model == "" {
				model = a.Config.DefaultModel
			}
			if timezone == "" {
				timezone = a.Config.DefaultTimezone
			}

			result, err := a.Planner.CreateFromGoal(cmd.Context(), planner.CreateFromGoalOptions{
				GoalText:       args[0],
				AgentName:      agentName,
				Provider:       provider,
				Model:          model,
				CronSchedule:   cronSchedule,
				ScheduleActive: scheduleOn,
				Timezone:       timezone,
			})
			if err != nil {
				return err
			}

			switch result.Kind {
			case planner.ResultSuccess:
				fmt.Printf("dag %s planned successfully\n", result.DAGID)
			case planner.ResultClarificationNeeded:
				fmt.Printf("dag %s needs clarification: %s\n", result.DAGID, result.Query)
			case planner.ResultValidationError:
				fmt.Printf("dag %s failed validation after retries\n", result.DAGID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentName, "agent", "decomposer", "planning agent name")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (default from config)")
	cmd.Flags().StringVar(&model, "model", "", "LLM model (default from config)")
	cmd.Flags().StringVar(&cronSchedule, "cron", "", "optional cron schedule")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone for --cron (default from config)")
	cmd.Flags().BoolVar(&scheduleOn, "active", false, "activate the cron schedule immediately")
	return cmd
}
