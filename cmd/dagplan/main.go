// Command dagplan is a thin CLI over the goal-to-DAG planning and
// execution engine: a cobra root command with persistent --config/--quiet
// flags, one subcommand per engine operation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "0.0.0"

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "dagplan",
		Short: "Goal-to-DAG planning and execution engine",
		Long:  "dagplan decomposes a natural-language goal into a task DAG and executes it.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.config/dagplan/config.yaml)")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress log output to stderr")

	root.AddCommand(
		newPlanCommand(),
		newExecuteCommand(),
		newResumeCommand(),
		newStopCommand(),
		newStatusCommand(),
		newListCommand(),
		newServeCommand(),
		newVersionCommand(),
	)
	return root
}

var (
	cfgFile string
	quiet   bool
)
