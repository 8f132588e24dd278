package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dagplan/dagplan/internal/app"
	"github.com/dagplan/dagplan/internal/config"
)

// buildApp loads configuration (flags bound onto viper, layered over the
// env/file/default precedence config.Load implements) and constructs the
// composition root every subcommand runs against.
func buildApp(cmd *cobra.Command) (*app.App, error) {
	v := viper.New()
	bindFlags(v, cmd)

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Quiet = quiet

	return app.New(cfg)
}

// bindFlags binds every locally-defined flag on cmd onto v under the same
// name. No flag name matches a key config.Load reads (those are keys such
// as default_provider), so the bindings leave the loaded Config unchanged;
// commands apply their own flags over the Config values.
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}
