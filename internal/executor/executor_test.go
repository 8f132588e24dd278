package executor

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagplan/dagplan/internal/eventbus"
	"github.com/dagplan/dagplan/internal/llm"
	"github.com/dagplan/dagplan/internal/stopcoord"
	"github.com/dagplan/dagplan/internal/store"
	"github.com/dagplan/dagplan/internal/store/storetest"
)

// scriptedProvider returns canned chat responses in order, looping once
// exhausted, mirroring planner's test double of the same name.
type scriptedProvider struct {
	name      string
	responses []string
	costUSD   string
}

func (p *scriptedProvider) Chat(_ context.Context, _ *llm.ChatRequest) (*llm.ChatResponse, error) {
	content := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return &llm.ChatResponse{
		Content: content,
		Usage:   llm.Usage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10},
		CostUSD: p.costUSD,
	}, nil
}

func (p *scriptedProvider) ChatStream(context.Context, *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	return nil, nil
}

func (p *scriptedProvider) Name() string { return p.name }

func newTestExecutor(t *testing.T, s store.Store, bus *eventbus.Bus, resolve ProviderResolver, artifactsDir string) *Executor {
	t.Helper()
	stops := stopcoord.New(s)
	return New(s, bus, stops, resolve, "openai", "gpt-4o", artifactsDir, slog.New(slog.DiscardHandler))
}

func toolOnlyPlan() *store.Plan {
	return &store.Plan{
		OriginalRequest: "ship the thing",
		PrimaryIntent:   "ship the thing",
		SynthesisPlan:   "summarize results",
		Tasks: []store.PlanTask{
			{
				ID:          "001",
				Description: "write greeting",
				ActionType:  "tool",
				Name:        "writeFile",
				Params:      map[string]any{"path": "greeting.txt", "content": "hello"},
			},
			{
				ID:           "002",
				Description:  "write farewell referencing task 001",
				ActionType:   "tool",
				Name:         "writeFile",
				Params:       map[string]any{"path": "farewell.txt", "content": "<Result of Task 001>, goodbye"},
				Dependencies: []string{"001"},
			},
		},
	}
}

func seedSuccessDAG(t *testing.T, s store.Store, plan *store.Plan) *store.DAG {
	t.Helper()
	dag := &store.DAG{Status: store.DAGStatusSuccess, Result: plan}
	require.NoError(t, s.CreateDAG(context.Background(), dag))
	return dag
}

func waitForTerminal(t *testing.T, s store.Store, executionID string) *store.Execution {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := s.GetExecution(context.Background(), executionID)
		require.NoError(t, err)
		switch exec.Status {
		case store.ExecutionCompleted, store.ExecutionFailed:
			if exec.CompletedAt != nil {
				return exec
			}
		case store.ExecutionSuspended:
			if exec.SuspendedAt != nil {
				return exec
			}
		case store.ExecutionPending:
			// Distinguish a stopped-back-to-pending run (StartedAt set by
			// run() before anything else) from the initial pre-run row.
			if exec.StartedAt != nil {
				return exec
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("execution never reached a terminal state")
	return nil
}

func TestExecuteRejectsDAGNotSuccess(t *testing.T) {
	t.Parallel()
	s := storetest.New()
	bus := eventbus.New()
	e := newTestExecutor(t, s, bus, nil, t.TempDir())

	dag := &store.DAG{Status: store.DAGStatusPending}
	require.NoError(t, s.CreateDAG(context.Background(), dag))

	_, err := e.Execute(context.Background(), dag.ID, ExecutionConfig{})
	require.ErrorIs(t, err, ErrDAGNotReady)
}

func TestExecuteRejectsClarificationNeeded(t *testing.T) {
	t.Parallel()
	s := storetest.New()
	bus := eventbus.New()
	e := newTestExecutor(t, s, bus, nil, t.TempDir())

	dag := seedSuccessDAG(t, s, &store.Plan{ClarificationNeeded: true})

	_, err := e.Execute(context.Background(), dag.ID, ExecutionConfig{})
	require.ErrorIs(t, err, ErrDAGNotReady)
}

func TestExecuteToolOnlyPlanCompletesWithSynthesis(t *testing.T) {
	t.Parallel()
	s := storetest.New()
	bus := eventbus.New()
	resolve := func(string) (llm.Provider, error) {
		return &scriptedProvider{name: "openai", responses: []string{"## Final summary"}}, nil
	}
	e := newTestExecutor(t, s, bus, resolve, t.TempDir())

	dag := seedSuccessDAG(t, s, toolOnlyPlan())

	executionID, err := e.Execute(context.Background(), dag.ID, ExecutionConfig{})
	require.NoError(t, err)

	exec := waitForTerminal(t, s, executionID)
	require.Equal(t, store.ExecutionCompleted, exec.Status)
	assert.Equal(t, 2, exec.CompletedTasks)
	assert.Equal(t, 0, exec.FailedTasks)
	assert.Equal(t, "## Final summary", exec.FinalResult)
	assert.Greater(t, exec.TotalUsage.TotalTokens, 0)

	synthesis, err := s.GetSubStep(context.Background(), executionID, store.SynthesisTaskID)
	require.NoError(t, err)
	assert.Equal(t, store.SubStepCompleted, synthesis.Status)

	step2, err := s.GetSubStep(context.Background(), executionID, "002")
	require.NoError(t, err)
	assert.Contains(t, step2.Result, "farewell.txt")
}

func TestExecuteDeadlockOnUnsatisfiableDependency(t *testing.T) {
	t.Parallel()
	s := storetest.New()
	bus := eventbus.New()
	e := newTestExecutor(t, s, bus, nil, t.TempDir())

	plan := &store.Plan{
		Tasks: []store.PlanTask{
			{ID: "001", ActionType: "tool", Name: "writeFile", Params: map[string]any{"path": "a.txt", "content": "x"}, Dependencies: []string{"999"}},
		},
	}
	dag := seedSuccessDAG(t, s, plan)

	executionID, err := e.Execute(context.Background(), dag.ID, ExecutionConfig{})
	require.NoError(t, err)

	exec := waitForTerminal(t, s, executionID)
	require.Equal(t, store.ExecutionFailed, exec.Status)
}

func TestExecuteFailedToolSuspendsExecution(t *testing.T) {
	t.Parallel()
	s := storetest.New()
	bus := eventbus.New()
	e := newTestExecutor(t, s, bus, nil, t.TempDir())

	plan := &store.Plan{
		Tasks: []store.PlanTask{
			{ID: "001", ActionType: "tool", Name: "doesNotExist", Params: map[string]any{}},
		},
	}
	dag := seedSuccessDAG(t, s, plan)

	executionID, err := e.Execute(context.Background(), dag.ID, ExecutionConfig{})
	require.NoError(t, err)

	exec := waitForTerminal(t, s, executionID)
	require.Equal(t, store.ExecutionSuspended, exec.Status)
	assert.Contains(t, exec.SuspendedReason, "tool not found")
	assert.Equal(t, 1, exec.FailedTasks)

	step, err := s.GetSubStep(context.Background(), executionID, "001")
	require.NoError(t, err)
	assert.Equal(t, store.SubStepFailed, step.Status)
	assert.Contains(t, step.Error, "tool not found")
}

// TestRunStopRequestedBeforeFirstWaveEndsExecutionPending calls the wave
// scheduler directly (not via the async Execute entrypoint) so the stop
// request is guaranteed to be in place before the first probe runs.
func TestRunStopRequestedBeforeFirstWaveEndsExecutionPending(t *testing.T) {
	t.Parallel()
	s := storetest.New()
	bus := eventbus.New()
	e := newTestExecutor(t, s, bus, nil, t.TempDir())

	plan := toolOnlyPlan()
	dag := seedSuccessDAG(t, s, plan)
	exec := &store.Execution{DAGID: dag.ID, Status: store.ExecutionPending, TotalTasks: len(plan.Tasks)}
	require.NoError(t, s.CreateExecution(context.Background(), exec))
	for _, task := range plan.Tasks {
		require.NoError(t, s.CreateSubStep(context.Background(), &store.SubStep{
			ExecutionID: exec.ID, TaskID: task.ID, Status: store.SubStepPending,
			ActionType: task.ActionType, ToolOrPromptName: task.Name,
			ToolOrPromptParams: task.Params, Dependencies: task.Dependencies,
		}))
	}
	require.NoError(t, e.stops.RequestStopForExecution(context.Background(), exec.ID))

	ctx, cancel := context.WithCancel(context.Background())
	e.run(ctx, cancel, exec.ID, plan, ExecutionConfig{})

	final, err := s.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ExecutionPending, final.Status)

	pending, err := s.PendingForExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestResumeRejectsNonResumableStatus(t *testing.T) {
	t.Parallel()
	s := storetest.New()
	bus := eventbus.New()
	e := newTestExecutor(t, s, bus, nil, t.TempDir())

	exec := &store.Execution{Status: store.ExecutionRunning}
	require.NoError(t, s.CreateExecution(context.Background(), exec))

	err := e.Resume(context.Background(), exec.ID, ExecutionConfig{})
	require.ErrorIs(t, err, ErrNotResumable)
}

func TestResumeSeedsCompletedSubStepsAndFinishes(t *testing.T) {
	t.Parallel()
	s := storetest.New()
	bus := eventbus.New()
	resolve := func(string) (llm.Provider, error) {
		return &scriptedProvider{name: "openai", responses: []string{"## Final summary"}}, nil
	}
	e := newTestExecutor(t, s, bus, resolve, t.TempDir())
	plan := toolOnlyPlan()
	dag := seedSuccessDAG(t, s, plan)

	exec := &store.Execution{
		DAGID:      dag.ID,
		Status:     store.ExecutionFailed,
		TotalTasks: len(plan.Tasks),
	}
	require.NoError(t, s.CreateExecution(context.Background(), exec))
	require.NoError(t, s.CreateSubStep(context.Background(), &store.SubStep{
		ExecutionID: exec.ID, TaskID: "001", Status: store.SubStepCompleted, Result: "hello",
	}))
	require.NoError(t, s.CreateSubStep(context.Background(), &store.SubStep{
		ExecutionID: exec.ID, TaskID: "002", Status: store.SubStepPending,
		ToolOrPromptName: "writeFile", ActionType: "tool",
		ToolOrPromptParams: map[string]any{"path": "farewell.txt", "content": "<Result of Task 001>, goodbye"},
		Dependencies:       []string{"001"},
	}))

	require.NoError(t, e.Resume(context.Background(), exec.ID, ExecutionConfig{}))

	final := waitForTerminal(t, s, exec.ID)
	require.Equal(t, store.ExecutionCompleted, final.Status)
	assert.Equal(t, 2, final.CompletedTasks)
}

func TestExecuteInferenceTaskUsesAgentProviderAndTemplate(t *testing.T) {
	t.Parallel()
	s := storetest.New()
	bus := eventbus.New()
	require.NoError(t, s.CreateAgent(context.Background(), &store.Agent{
		Name: "writer", Version: 1, Active: true, Provider: "anthropic", Model: "claude",
		PromptTemplate: "Write one sentence.",
	}))

	resolve := func(provider string) (llm.Provider, error) {
		if provider == "anthropic" {
			return &scriptedProvider{name: provider, responses: []string{"a single sentence"}, costUSD: "0.002"}, nil
		}
		return &scriptedProvider{name: provider, responses: []string{"## synthesized"}}, nil
	}
	e := newTestExecutor(t, s, bus, resolve, t.TempDir())

	plan := &store.Plan{
		OriginalRequest: "write something",
		PrimaryIntent:   "write something",
		SynthesisPlan:   "combine",
		Tasks: []store.PlanTask{
			{ID: "001", Description: "write a sentence", ActionType: "inference", Name: "writer"},
		},
	}
	dag := seedSuccessDAG(t, s, plan)

	executionID, err := e.Execute(context.Background(), dag.ID, ExecutionConfig{})
	require.NoError(t, err)

	exec := waitForTerminal(t, s, executionID)
	require.Equal(t, store.ExecutionCompleted, exec.Status)
	assert.Equal(t, "0.002000", *exec.TotalCostUSD)

	step, err := s.GetSubStep(context.Background(), executionID, "001")
	require.NoError(t, err)
	assert.Equal(t, "a single sentence", step.Result)
}

func TestExecuteUnknownAgentSuspendsExecution(t *testing.T) {
	t.Parallel()
	s := storetest.New()
	bus := eventbus.New()
	e := newTestExecutor(t, s, bus, nil, t.TempDir())

	plan := &store.Plan{
		Tasks: []store.PlanTask{
			{ID: "001", ActionType: "inference", Name: "ghost"},
		},
	}
	dag := seedSuccessDAG(t, s, plan)

	executionID, err := e.Execute(context.Background(), dag.ID, ExecutionConfig{})
	require.NoError(t, err)

	exec := waitForTerminal(t, s, executionID)
	require.Equal(t, store.ExecutionSuspended, exec.Status)
	assert.Contains(t, exec.SuspendedReason, "unknown or inactive agent")

	step, err := s.GetSubStep(context.Background(), executionID, "001")
	require.NoError(t, err)
	assert.Contains(t, step.Error, "unknown or inactive agent")
}
