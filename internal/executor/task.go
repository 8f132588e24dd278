package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dagplan/dagplan/internal/eventbus"
	"github.com/dagplan/dagplan/internal/llm"
	"github.com/dagplan/dagplan/internal/store"
	"github.com/dagplan/dagplan/internal/tools"
)

// taskOutcome is one settled task's result, produced by executeTask and
// consumed by the wave loop's batch-update/emission logic.
type taskOutcome struct {
	taskID   string
	result   any
	usage    llm.Usage
	costUSD  string
	genStats llm.GenerationStats
	err      error
	// aborted marks a cooperative abort (ctx canceled / AbortSignal
	// fired) rather than a genuine task failure: the task resets to
	// pending, it never marks failed.
	aborted bool
}

// busEmitter adapts the executor's event bus into the tools.Emitter
// contract a running tool uses to report progress.
type busEmitter struct {
	executor    *Executor
	executionID string
	taskID      string
	cfg         ExecutionConfig
}

func (e busEmitter) Progress(message string) {
	e.executor.emit(e.executionID, eventbus.TaskProgress, e.cfg, map[string]any{"taskId": e.taskID, "message": message})
}

func (e busEmitter) Completed(message string) {
	e.executor.emit(e.executionID, eventbus.TaskProgress, e.cfg, map[string]any{"taskId": e.taskID, "message": message, "final": true})
}

// executeTask runs one ready task and reports its settled outcome. A
// panic inside the task is recovered here and becomes the outcome's
// error, so it never crosses runWave's goroutine boundary.
func (e *Executor) executeTask(ctx context.Context, executionID, artifactsDir string, plan *store.Plan, task store.PlanTask, resultsSoFar map[string]any, agents map[string]*store.Agent, cfg ExecutionConfig) (out taskOutcome) {
	out.taskID = task.ID
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("executor: task %s panicked: %v", task.ID, r)
		}
	}()

	ctx, span := tracer.Start(ctx, "executeTask", withTaskAttributes(task)...)
	defer span.End()

	deps := dependencyResultsFor(task, resultsSoFar)
	emitter := busEmitter{executor: e, executionID: executionID, taskID: task.ID, cfg: cfg}
	toolCtx := tools.NewContext(ctx, nil, e.logger, executionID, task.ID, artifactsDir, emitter)

	if isInferenceTask(task) {
		out.result, out.usage, out.costUSD, out.genStats, out.err = e.executeInferenceTask(ctx, plan, task, deps, agents)
	} else {
		out.result, out.err = e.executeToolTask(ctx, toolCtx, task, deps)
	}

	if out.err != nil {
		out.aborted = isAbortError(ctx, out.err)
		span.RecordError(out.err)
	}
	return out
}

func isInferenceTask(task store.PlanTask) bool {
	return task.ActionType == "inference" || task.Name == "inference"
}

func isAbortError(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || ctx.Err() != nil
}

func (e *Executor) executeToolTask(ctx context.Context, toolCtx *tools.Context, task store.PlanTask, deps []tools.DependencyResult) (string, error) {
	tool, ok := tools.Get(task.Name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrToolNotFound, task.Name)
	}

	input := task.Params
	if _, hasSpecificResolver := tool.(tools.DependencyResolver); !hasSpecificResolver && len(deps) > 0 {
		input = substituteParams(task.Params, deps)
	}
	return tools.Execute(ctx, toolCtx, task.Name, input, deps)
}

// executeInferenceTask builds a single prompt concatenating the global
// context header, the task description, truncated dependency snippets,
// and the agent's own prompt template, then sends it to that agent's
// configured provider/model.
func (e *Executor) executeInferenceTask(ctx context.Context, plan *store.Plan, task store.PlanTask, deps []tools.DependencyResult, agents map[string]*store.Agent) (string, llm.Usage, string, llm.GenerationStats, error) {
	agent, ok := agents[task.Name]
	if !ok {
		return "", llm.Usage{}, "", llm.GenerationStats{}, fmt.Errorf("%w: %q", ErrAgentNotFound, task.Name)
	}
	provider, err := e.resolve(agent.Provider)
	if err != nil {
		return "", llm.Usage{}, "", llm.GenerationStats{}, fmt.Errorf("executor: resolve provider for agent %q: %w", agent.Name, err)
	}

	prompt := buildInferencePrompt(plan, task, deps, agent)
	req := llm.NewChatRequest(agent.Model, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	resp, err := provider.Chat(ctx, req)
	if err != nil {
		return "", llm.Usage{}, "", llm.GenerationStats{}, err
	}
	return resp.Content, resp.Usage, resp.CostUSD, resp.GenerationStats, nil
}

// buildInferencePrompt concatenates the inference prompt's four parts in
// order: global context header, task description, truncated dependency
// snippets, then the agent's own prompt template.
func buildInferencePrompt(plan *store.Plan, task store.PlanTask, deps []tools.DependencyResult, agent *store.Agent) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original request: %s\nPrimary intent: %s", plan.OriginalRequest, plan.PrimaryIntent)
	sb.WriteString("\n\n")
	sb.WriteString(task.Description)
	for _, d := range deps {
		fmt.Fprintf(&sb, "\n\n[Result of Task %s]\n%s", d.TaskID, truncateSnippet(tools.StringifyResult(d.Result), maxDependencySnippetChars))
	}
	sb.WriteString("\n\n")
	sb.WriteString(agent.PromptTemplate)
	return sb.String()
}

func withTaskAttributes(task store.PlanTask) []trace.SpanStartOption {
	return []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("task.action_type", task.ActionType),
			attribute.String("task.name", task.Name),
		),
	}
}
