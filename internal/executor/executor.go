// Package executor drives a planned DAG through a wave scheduler:
// preparation, parallel task fan-out per wave, dependency resolution,
// cooperative stop handling, and a final synthesis pass.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/dagplan/dagplan/internal/eventbus"
	"github.com/dagplan/dagplan/internal/llm"
	"github.com/dagplan/dagplan/internal/planner"
	"github.com/dagplan/dagplan/internal/store"
	"github.com/dagplan/dagplan/internal/stopcoord"
)

var tracer = otel.Tracer("github.com/dagplan/dagplan/internal/executor")

// ProviderResolver constructs an llm.Provider for a named provider type,
// mirroring planner.ProviderResolver so both packages share one wiring
// convention at the cmd/ composition root.
type ProviderResolver func(providerName string) (llm.Provider, error)

// ExecutionConfig narrows Execute's optional knobs.
type ExecutionConfig struct {
	// SkipEvents suppresses all event emission for maximum throughput.
	SkipEvents bool
	// BatchDBUpdates is accepted but not read by Execute: each task's
	// sub-step row is written with its own UpdateSubStep call once its
	// wave has settled, whatever this field holds.
	BatchDBUpdates *bool
	// AbortSignal is externally-originated cooperative cancellation; its
	// Done() channel firing aborts the in-flight run the same way a stop
	// request does. Nil means no external abort source.
	AbortSignal context.Context
}

func (c ExecutionConfig) batchDBUpdates() bool {
	if c.BatchDBUpdates == nil {
		return true
	}
	return *c.BatchDBUpdates
}

// Executor runs DAGExecutions to completion in the background.
type Executor struct {
	store           store.Store
	bus             *eventbus.Bus
	stops           *stopcoord.Coordinator
	resolve         ProviderResolver
	defaultProvider string
	defaultModel    string
	artifactsDir    string
	clock           func() time.Time
	logger          *slog.Logger
}

// New builds an Executor. defaultProvider/defaultModel are used for the
// post-wave synthesis call. artifactsDir is the root directory tools
// confine file writes to.
func New(s store.Store, bus *eventbus.Bus, stops *stopcoord.Coordinator, resolve ProviderResolver, defaultProvider, defaultModel, artifactsDir string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:           s,
		bus:             bus,
		stops:           stops,
		resolve:         resolve,
		defaultProvider: defaultProvider,
		defaultModel:    defaultModel,
		artifactsDir:    artifactsDir,
		clock:           time.Now,
		logger:          logger,
	}
}

// Execute is non-blocking: it synchronously creates the execution and
// sub-step rows, then continues the run concurrently. Returns the new
// execution id.
func (e *Executor) Execute(ctx context.Context, dagID string, cfg ExecutionConfig) (string, error) {
	dag, err := e.store.GetDAG(ctx, dagID)
	if err != nil {
		return "", fmt.Errorf("executor: load dag: %w", err)
	}
	if dag.Status != store.DAGStatusSuccess || dag.Result == nil || dag.Result.ClarificationNeeded {
		return "", ErrDAGNotReady
	}

	plan := substitutePlanTokens(dag.Result, e.clock())
	if err := planner.ValidatePlanPayload(planToGenericPayload(plan)); err != nil {
		return "", fmt.Errorf("executor: re-validate plan: %w", err)
	}

	exec := &store.Execution{
		DAGID:           dagID,
		OriginalRequest: plan.OriginalRequest,
		PrimaryIntent:   plan.PrimaryIntent,
		Status:          store.ExecutionPending,
		TotalTasks:      len(plan.Tasks),
		WaitingTasks:    len(plan.Tasks),
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return "", fmt.Errorf("executor: create execution: %w", err)
	}

	for _, t := range plan.Tasks {
		step := &store.SubStep{
			ExecutionID:        exec.ID,
			TaskID:             t.ID,
			Description:        t.Description,
			Thought:            t.Thought,
			ActionType:         t.ActionType,
			ToolOrPromptName:   t.Name,
			ToolOrPromptParams: t.Params,
			Dependencies:       t.Dependencies,
			Status:             store.SubStepPending,
		}
		if err := e.store.CreateSubStep(ctx, step); err != nil {
			return "", fmt.Errorf("executor: create sub-step %q: %w", t.ID, err)
		}
	}

	runCtx, cancel := detachedRunContext(ctx, cfg.AbortSignal)
	go e.run(runCtx, cancel, exec.ID, plan, cfg)

	return exec.ID, nil
}

// Resume restarts a {suspended, failed} execution with a non-null dagId:
// it bumps retryCount and re-enters the wave scheduler against the
// stored Plan, seeding executed/results from already-completed sub-steps
// so none of them runs twice.
func (e *Executor) Resume(ctx context.Context, executionID string, cfg ExecutionConfig) error {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("executor: load execution: %w", err)
	}
	if exec.Status != store.ExecutionSuspended && exec.Status != store.ExecutionFailed {
		return ErrNotResumable
	}
	if exec.DAGID == "" {
		return ErrNotResumable
	}

	dag, err := e.store.GetDAG(ctx, exec.DAGID)
	if err != nil {
		return fmt.Errorf("executor: load dag: %w", err)
	}
	if dag.Result == nil {
		return ErrDAGNotReady
	}
	plan := substitutePlanTokens(dag.Result, e.clock())

	now := e.clock()
	exec.RetryCount++
	exec.LastRetryAt = &now
	exec.Status = store.ExecutionRunning
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return fmt.Errorf("executor: mark resumed execution running: %w", err)
	}

	runCtx, cancel := detachedRunContext(ctx, cfg.AbortSignal)
	go e.run(runCtx, cancel, executionID, plan, cfg)
	return nil
}

// detachedRunContext derives a context for the background run: detached
// from the caller's cancellation (so Execute's synchronous return doesn't
// cut the run short) but still responsive to an externally-supplied
// AbortSignal context.
func detachedRunContext(callerCtx context.Context, abortSignal context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(callerCtx))
	if abortSignal != nil {
		go func() {
			select {
			case <-abortSignal.Done():
				cancel()
			case <-runCtx.Done():
			}
		}()
	}
	return runCtx, cancel
}

// emit publishes an event unless cfg.SkipEvents is set.
func (e *Executor) emit(executionID string, t eventbus.Type, cfg ExecutionConfig, data map[string]any) {
	if cfg.SkipEvents {
		return
	}
	e.bus.Publish(eventbus.Event{
		Type:        t,
		ExecutionID: executionID,
		TS:          e.clock().UnixMilli(),
		Data:        data,
	})
}
