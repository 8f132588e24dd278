package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dagplan/dagplan/internal/eventbus"
	"github.com/dagplan/dagplan/internal/store"
	"github.com/dagplan/dagplan/internal/tools"
)

func TestIsInferenceTaskRecognizesActionTypeOrReservedName(t *testing.T) {
	t.Parallel()
	assert.True(t, isInferenceTask(store.PlanTask{ActionType: "inference", Name: "writer"}))
	assert.True(t, isInferenceTask(store.PlanTask{ActionType: "tool", Name: "inference"}))
	assert.False(t, isInferenceTask(store.PlanTask{ActionType: "tool", Name: "shell"}))
}

func TestIsAbortErrorDetectsCanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, isAbortError(ctx, context.Canceled))
	assert.True(t, isAbortError(ctx, errors.New("some other tool error")))
}

func TestIsAbortErrorFalseForUnrelatedErrorOnLiveContext(t *testing.T) {
	t.Parallel()
	assert.False(t, isAbortError(context.Background(), errors.New("boom")))
}

func TestBuildInferencePromptConcatenatesAllFourParts(t *testing.T) {
	t.Parallel()
	plan := &store.Plan{OriginalRequest: "ship it", PrimaryIntent: "ship the release"}
	task := store.PlanTask{ID: "002", Description: "write the changelog"}
	deps := []tools.DependencyResult{{TaskID: "001", Result: strings.Repeat("x", maxDependencySnippetChars+50)}}
	agent := &store.Agent{PromptTemplate: "You write concise changelogs."}

	prompt := buildInferencePrompt(plan, task, deps, agent)

	assert.Contains(t, prompt, "ship it")
	assert.Contains(t, prompt, "ship the release")
	assert.Contains(t, prompt, "write the changelog")
	assert.Contains(t, prompt, "[Result of Task 001]")
	assert.Contains(t, prompt, "...")
	assert.Contains(t, prompt, "You write concise changelogs.")
	assert.Less(t, strings.Index(prompt, "ship it"), strings.Index(prompt, "write the changelog"))
	assert.Less(t, strings.Index(prompt, "write the changelog"), strings.Index(prompt, "[Result of Task 001]"))
	assert.Less(t, strings.Index(prompt, "[Result of Task 001]"), strings.Index(prompt, "You write concise changelogs."))
}

func TestBusEmitterProgressAndCompletedRespectSkipEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	e := &Executor{bus: bus, clock: func() time.Time { return time.Unix(0, 0) }}
	emitter := busEmitter{executor: e, executionID: "exec-1", taskID: "001", cfg: ExecutionConfig{SkipEvents: true}}

	// Should not panic even though nothing subscribes; SkipEvents means no
	// publish call reaches the bus at all.
	emitter.Progress("halfway there")
	emitter.Completed("done")
}
