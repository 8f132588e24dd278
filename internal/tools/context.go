package tools

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Emitter reports in-flight tool state back to the executor's event
// stream via progress(message) and completed(message) callbacks.
type Emitter interface {
	Progress(message string)
	Completed(message string)
}

// Context is the per-task execution environment a tool runs under:
// logger, read-only DB handle, execution/sub-step ids, abort signal,
// artifacts directory, and an event emitter.
type Context struct {
	// Context carries the abort signal; a tool observing ctx.Done() must
	// return promptly so the executor can reset the task to pending
	// rather than marking it failed.
	Context context.Context
	Logger  *slog.Logger
	// DB is read-only access for tools that need lookups.
	DB           *sql.DB
	ExecutionID  string
	SubStepID    string
	ArtifactsDir string
	Emit         Emitter
}

// noopEmitter discards progress/completion reports, used when a Context
// is built without one (e.g. in tests).
type noopEmitter struct{}

func (noopEmitter) Progress(string)  {}
func (noopEmitter) Completed(string) {}

// NewContext builds a Context with a non-nil Emit, defaulting to a
// no-op emitter and context.Background when unset.
func NewContext(ctx context.Context, db *sql.DB, logger *slog.Logger, executionID, subStepID, artifactsDir string, emit Emitter) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if emit == nil {
		emit = noopEmitter{}
	}
	return &Context{
		Context:      ctx,
		Logger:       logger,
		DB:           db,
		ExecutionID:  executionID,
		SubStepID:    subStepID,
		ArtifactsDir: artifactsDir,
		Emit:         emit,
	}
}

// resolveArtifactPath joins relPath under artifactsDir and refuses any
// path that escapes it.
func resolveArtifactPath(artifactsDir, relPath string) (string, error) {
	if artifactsDir == "" {
		return "", fmt.Errorf("tools: no artifacts directory configured")
	}
	joined := filepath.Join(artifactsDir, relPath)
	rel, err := filepath.Rel(artifactsDir, joined)
	if err != nil {
		return "", fmt.Errorf("tools: resolve path %q: %w", relPath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("tools: path %q escapes artifacts directory", relPath)
	}
	return joined, nil
}
