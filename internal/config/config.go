// Package config loads dagplan's configuration through viper layered over
// cobra persistent flags: defaults, then a YAML config file, then
// DAGPLAN_-prefixed environment variables, then explicit flags, in
// ascending priority.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved runtime configuration for every dagplan
// entrypoint (CLI commands and the thin HTTP surface).
type Config struct {
	// Store
	StorePath string

	// LLM
	DefaultProvider string
	DefaultModel    string
	TitleAgentName  string

	// Engine
	ArtifactsDir string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string
	Quiet     bool

	// HTTP surface
	HTTPAddr string

	// Tracing
	OTelEnabled  bool
	OTelEndpoint string

	// Scheduling
	DefaultTimezone string

	// Tooling
	ShellTimeout  time.Duration
	SMTPHost      string
	SMTPPort      int
	WebhookNotify string // optional webhook/Slack URL posted to on execution terminal events
}

// ConfigDir is $HOME/.config/dagplan.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dagplan"
	}
	return filepath.Join(home, ".config", "dagplan")
}

func defaults(v *viper.Viper) {
	v.SetDefault("store_path", filepath.Join(ConfigDir(), "dagplan.db"))
	v.SetDefault("default_provider", "anthropic")
	v.SetDefault("default_model", "claude-sonnet-4-5")
	v.SetDefault("title_agent_name", "")
	v.SetDefault("artifacts_dir", filepath.Join(ConfigDir(), "artifacts"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")
	v.SetDefault("http_addr", "localhost:8080")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "localhost:4318")
	v.SetDefault("default_timezone", "UTC")
	v.SetDefault("shell_timeout", 30*time.Second)
	v.SetDefault("smtp_host", "")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("webhook_notify", "")
}

// Load builds a Config from (in ascending priority) defaults, a YAML file
// (cfgFile if non-empty, else config.yaml in ConfigDir() if present),
// and DAGPLAN_-prefixed environment variables. v is expected to already
// have cobra flags bound via BindPFlag by the caller.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	defaults(v)

	v.SetEnvPrefix("dagplan")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(ConfigDir())
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && cfgFile != "" {
			return nil, fmt.Errorf("config: read %s: %w", cfgFile, err)
		}
	}

	cfg := &Config{
		StorePath:       v.GetString("store_path"),
		DefaultProvider: v.GetString("default_provider"),
		DefaultModel:    v.GetString("default_model"),
		TitleAgentName:  v.GetString("title_agent_name"),
		ArtifactsDir:    v.GetString("artifacts_dir"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
		LogFile:         v.GetString("log_file"),
		HTTPAddr:        v.GetString("http_addr"),
		OTelEnabled:     v.GetBool("otel_enabled"),
		OTelEndpoint:    v.GetString("otel_endpoint"),
		DefaultTimezone: v.GetString("default_timezone"),
		ShellTimeout:    v.GetDuration("shell_timeout"),
		SMTPHost:        v.GetString("smtp_host"),
		SMTPPort:        v.GetInt("smtp_port"),
		WebhookNotify:   v.GetString("webhook_notify"),
	}
	return cfg, nil
}
