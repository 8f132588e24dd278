package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dagplan/dagplan/internal/llm"
	"github.com/dagplan/dagplan/internal/store"
)

func TestReadyTasksSelectsDependencySatisfiedOnly(t *testing.T) {
	t.Parallel()
	tasks := []store.PlanTask{
		{ID: "001"},
		{ID: "002", Dependencies: []string{"001"}},
		{ID: "003", Dependencies: []string{"002"}},
		{ID: "004", Dependencies: []string{"none"}},
	}
	ready := readyTasks(tasks, map[string]bool{})
	ids := idsOf(ready)
	assert.ElementsMatch(t, []string{"001", "004"}, ids)
}

func TestReadyTasksSkipsAlreadyExecuted(t *testing.T) {
	t.Parallel()
	tasks := []store.PlanTask{
		{ID: "001"},
		{ID: "002", Dependencies: []string{"001"}},
	}
	ready := readyTasks(tasks, map[string]bool{"001": true})
	assert.Equal(t, []string{"002"}, idsOf(ready))
}

func idsOf(tasks []store.PlanTask) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestDeriveExecutionStatusWaitingTakesPriority(t *testing.T) {
	t.Parallel()
	status := deriveExecutionStatus(subStepCounts{waiting: 1, running: 1, completed: 1, total: 3})
	assert.Equal(t, "waiting", status)
}

func TestDeriveExecutionStatusAllFailed(t *testing.T) {
	t.Parallel()
	status := deriveExecutionStatus(subStepCounts{failed: 2, total: 2})
	assert.Equal(t, "failed", status)
}

func TestDeriveExecutionStatusPartialFailure(t *testing.T) {
	t.Parallel()
	status := deriveExecutionStatus(subStepCounts{completed: 1, failed: 1, total: 2})
	assert.Equal(t, "partial", status)
}

func TestDeriveExecutionStatusAllCompleted(t *testing.T) {
	t.Parallel()
	status := deriveExecutionStatus(subStepCounts{completed: 2, total: 2})
	assert.Equal(t, "completed", status)
}

func TestDeriveExecutionStatusRunningWithSomeCompleted(t *testing.T) {
	t.Parallel()
	status := deriveExecutionStatus(subStepCounts{running: 1, completed: 1, total: 3})
	assert.Equal(t, "running", status)
}

func TestDeriveExecutionStatusPendingWhenNothingStarted(t *testing.T) {
	t.Parallel()
	status := deriveExecutionStatus(subStepCounts{total: 2})
	assert.Equal(t, "pending", status)
}

func TestAggregateUsageCostSumsTokensAndCost(t *testing.T) {
	t.Parallel()
	costA, costB := "0.01", "0.02"
	steps := []*store.SubStep{
		{Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}, CostUSD: &costA},
		{Usage: llm.Usage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10}, CostUSD: &costB},
	}
	usage, cost := aggregateUsageCost(steps)
	assert.Equal(t, 30, usage.TotalTokens)
	assert.NotNil(t, cost)
	assert.Equal(t, "0.030000", *cost)
}

func TestAggregateUsageCostNilWhenNoContribution(t *testing.T) {
	t.Parallel()
	steps := []*store.SubStep{
		{Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}},
	}
	usage, cost := aggregateUsageCost(steps)
	assert.Equal(t, 20, usage.TotalTokens)
	assert.Nil(t, cost)
}
