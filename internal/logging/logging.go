// Package logging assembles dagplan's base slog.Logger: a stderr handler
// fanned out with a rotating log file handler via
// github.com/samber/slog-multi when a log file is configured. Component
// loggers are derived from the base via With("component", ...).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the base logger.
type Options struct {
	Level  string // debug | info | warn | error
	Format string // text | json
	File   string // optional rotating log file path; empty disables file sink
	Quiet  bool   // suppress the stderr sink, logging only to File
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// New builds the base logger. With both a stderr sink and a file sink
// configured, log records fan out to both via slogmulti.Fanout; with only
// one sink configured, that sink's handler is used directly.
func New(opts Options) *slog.Logger {
	level := parseLevel(opts.Level)

	var handlers []slog.Handler
	if !opts.Quiet {
		handlers = append(handlers, newHandler(os.Stderr, opts.Format, level))
	}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		handlers = append(handlers, newHandler(rotator, opts.Format, level))
	}

	switch len(handlers) {
	case 0:
		return slog.New(slog.DiscardHandler)
	case 1:
		return slog.New(handlers[0])
	default:
		return slog.New(slogmulti.Fanout(handlers...))
	}
}

// ForExecution returns a child logger scoped to one DAG execution,
// tagging every record with dag_id/execution_id.
func ForExecution(base *slog.Logger, dagID, executionID string) *slog.Logger {
	return base.With("dag_id", dagID, "execution_id", executionID)
}

// ForComponent returns a child logger tagged with the owning package name,
// e.g. ForComponent(base, "executor").
func ForComponent(base *slog.Logger, component string) *slog.Logger {
	return base.With("component", component)
}
