// Package app is the composition root shared by every cmd/dagplan
// subcommand and the thin HTTP surface: it wires the SQLite store, event
// bus, stop coordinator, planner, and executor from a resolved
// config.Config. Modules are constructed once and shared by every
// command.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dagplan/dagplan/internal/cmn/telemetry"
	"github.com/dagplan/dagplan/internal/config"
	"github.com/dagplan/dagplan/internal/eventbus"
	"github.com/dagplan/dagplan/internal/executor"
	"github.com/dagplan/dagplan/internal/llm"
	_ "github.com/dagplan/dagplan/internal/llm/providers/anthropic"
	_ "github.com/dagplan/dagplan/internal/llm/providers/openai"
	"github.com/dagplan/dagplan/internal/logging"
	"github.com/dagplan/dagplan/internal/planner"
	"github.com/dagplan/dagplan/internal/store"
	"github.com/dagplan/dagplan/internal/stopcoord"
	_ "github.com/dagplan/dagplan/internal/tools"
)

// App bundles every long-lived dependency a command or HTTP handler needs.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    store.Store
	Bus      *eventbus.Bus
	Stops    *stopcoord.Coordinator
	Planner  *planner.Planner
	Executor *executor.Executor
	Tracer   *telemetry.Tracer
}

// New opens the store, builds the provider resolver, and wires the
// planner/executor/stopcoord from cfg. Callers must call Close when done.
func New(cfg *config.Config) (*App, error) {
	logger := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Quiet:  cfg.Quiet,
	})

	if err := os.MkdirAll(cfg.ArtifactsDir, 0755); err != nil {
		return nil, fmt.Errorf("app: create artifacts dir: %w", err)
	}
	if cfg.StorePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0755); err != nil {
			return nil, fmt.Errorf("app: create store dir: %w", err)
		}
	}

	tracer, err := telemetry.NewTracer(context.Background(), "dagplan", telemetry.Config{
		Enabled:  cfg.OTelEnabled,
		Endpoint: cfg.OTelEndpoint,
		Insecure: true,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init tracing: %w", err)
	}

	s, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	bus := eventbus.New()
	stops := stopcoord.New(s)
	resolve := newProviderResolver()

	pl := planner.New(s, stops, resolve, cfg.TitleAgentName, logging.ForComponent(logger, "planner"))
	ex := executor.New(s, bus, stops, resolve, cfg.DefaultProvider, cfg.DefaultModel, cfg.ArtifactsDir, logging.ForComponent(logger, "executor"))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    s,
		Bus:      bus,
		Stops:    stops,
		Planner:  pl,
		Executor: ex,
		Tracer:   tracer,
	}, nil
}

// Close flushes any buffered trace spans and releases the store's
// underlying resources.
func (a *App) Close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Tracer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("tracer shutdown", "err", err)
	}
	return a.Store.Close()
}

// newProviderResolver returns an executor.ProviderResolver / planner's
// equivalent (identical signature) that constructs a provider from its
// registered factory, sourcing its API key from the conventional
// environment variable for that provider.
func newProviderResolver() func(string) (llm.Provider, error) {
	return func(name string) (llm.Provider, error) {
		pt, err := llm.ParseProviderType(name)
		if err != nil {
			return nil, err
		}
		cfg := llm.NewConfig(
			llm.WithAPIKey(llm.GetAPIKeyFromEnv(pt)),
			llm.WithBaseURL(llm.DefaultBaseURL(pt)),
		)
		return llm.NewProvider(pt, cfg)
	}
}

// NotifyTerminalEvents subscribes to executionID's event stream and, when
// cfg.WebhookNotify is configured, posts a one-line summary to it once a
// terminal event arrives. Intended to be launched in its own goroutine
// by the caller that just started or resumed an execution.
func (a *App) NotifyTerminalEvents(ctx context.Context, executionID string) {
	if a.Config.WebhookNotify == "" {
		return
	}
	for ev := range a.Bus.Stream(ctx, executionID) {
		if !eventbus.IsTerminal(ev.Type) {
			continue
		}
		a.notify(ctx, executionID, ev)
		return
	}
}
