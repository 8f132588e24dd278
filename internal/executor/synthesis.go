package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/dagplan/dagplan/internal/eventbus"
	"github.com/dagplan/dagplan/internal/llm"
	"github.com/dagplan/dagplan/internal/store"
	"github.com/dagplan/dagplan/internal/tools"
)

const synthesisSystemPrompt = "You are a helpful markdown synthesizer."

// runSynthesis runs once every non-synthesis task has settled without an
// early stop: invoke the
// default provider with the plan's synthesis_plan plus every task's
// result, persist it as the reserved __SYNTHESIS__ sub-step, and finalize
// the execution's status.
func (e *Executor) runSynthesis(ctx context.Context, executionID string, plan *store.Plan, results map[string]any, cfg ExecutionConfig) {
	e.emit(executionID, eventbus.SynthesisStarted, cfg, nil)
	started := e.clock()

	provider, err := e.resolve(e.defaultProvider)
	if err != nil {
		e.suspend(ctx, executionID, fmt.Sprintf("synthesis: resolve default provider: %v", err), cfg)
		return
	}

	prompt := buildSynthesisPrompt(plan, results)
	req := llm.NewChatRequest(e.defaultModel, []llm.Message{
		{Role: llm.RoleSystem, Content: synthesisSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	resp, err := provider.Chat(ctx, req)
	if err != nil {
		e.suspend(ctx, executionID, fmt.Sprintf("synthesis: llm call failed: %v", err), cfg)
		return
	}

	completedAt := e.clock()
	durationMs := completedAt.Sub(started).Milliseconds()
	costUSD := resp.CostUSD
	step := &store.SubStep{
		ExecutionID:      executionID,
		TaskID:           store.SynthesisTaskID,
		Description:      "Synthesize final output",
		ActionType:       "inference",
		ToolOrPromptName: "synthesis",
		Status:           store.SubStepCompleted,
		StartedAt:        &started,
		CompletedAt:      &completedAt,
		DurationMs:       durationMs,
		Result:           resp.Content,
		Usage:            resp.Usage,
		GenerationStats:  resp.GenerationStats,
	}
	if costUSD != "" {
		step.CostUSD = &costUSD
	}
	if err := e.store.CreateSubStep(ctx, step); err != nil {
		e.suspend(ctx, executionID, fmt.Sprintf("synthesis: persist sub-step: %v", err), cfg)
		return
	}

	e.emit(executionID, eventbus.SynthesisCompleted, cfg, map[string]any{"durationMs": durationMs})
	e.finalize(ctx, executionID, resp.Content, cfg)
}

func buildSynthesisPrompt(plan *store.Plan, results map[string]any) string {
	var sb strings.Builder
	sb.WriteString(plan.SynthesisPlan)
	sb.WriteString("\n\n")
	for _, t := range plan.Tasks {
		fmt.Fprintf(&sb, "## Task %s: %s\n%s\n\n", t.ID, t.Description, tools.StringifyResult(results[t.ID]))
	}
	return sb.String()
}
