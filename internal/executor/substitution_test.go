package executor

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagplan/dagplan/internal/store"
	"github.com/dagplan/dagplan/internal/tools"
)

func TestSubstitutePlanTokensReplacesCurrentDateEverywhere(t *testing.T) {
	t.Parallel()
	plan := &store.Plan{
		SynthesisPlan: "today is {{currentDate}}",
		Tasks: []store.PlanTask{
			{
				ID:          "001",
				Description: "report for {{Today}}",
				Params:      map[string]any{"note": "as of {{currentDate}}", "nested": map[string]any{"when": "{{Today}}"}},
			},
		},
	}
	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

	out := substitutePlanTokens(plan, now)

	assert.Equal(t, "today is 2026-03-05", out.SynthesisPlan)
	assert.Equal(t, "report for 2026-03-05", out.Tasks[0].Description)
	assert.Equal(t, "as of 2026-03-05", out.Tasks[0].Params["note"])
	nested := out.Tasks[0].Params["nested"].(map[string]any)
	assert.Equal(t, "2026-03-05", nested["when"])
	// original untouched
	assert.Equal(t, "today is {{currentDate}}", plan.SynthesisPlan)
}

func TestDependencyRefMatchesExactAndOrdinalForms(t *testing.T) {
	t.Parallel()
	assert.True(t, dependencyRefMatches("003", "003"))
	assert.True(t, dependencyRefMatches("003", "3"))
	assert.True(t, dependencyRefMatches("000", "0"))
	assert.False(t, dependencyRefMatches("003", "4"))
	assert.False(t, dependencyRefMatches("003", "abc"))
}

func TestSubstituteParamsReplacesResultReferences(t *testing.T) {
	t.Parallel()
	deps := []tools.DependencyResult{{TaskID: "001", Result: "hello world"}}
	params := map[string]any{
		"content": "prefix <Result of Task 001> suffix",
		"list":    []any{"<Results from Task 1>"},
	}
	out := substituteParams(params, deps)
	assert.Equal(t, "prefix hello world suffix", out["content"])
	assert.Equal(t, []any{"hello world"}, out["list"])
}

func TestSubstituteParamsLeavesUnmatchedReferenceAlone(t *testing.T) {
	t.Parallel()
	deps := []tools.DependencyResult{{TaskID: "001", Result: "hello"}}
	out := substituteParams(map[string]any{"content": "<Result of Task 999>"}, deps)
	assert.Equal(t, "<Result of Task 999>", out["content"])
}

func TestTruncateSnippetAddsEllipsisOnlyWhenOverLimit(t *testing.T) {
	t.Parallel()
	short := "short"
	assert.Equal(t, short, truncateSnippet(short, 10))

	long := strings.Repeat("a", 20)
	truncated := truncateSnippet(long, 10)
	assert.Equal(t, strings.Repeat("a", 10)+"...", truncated)
}

func TestPlanToGenericPayloadRoundTripsValidatable(t *testing.T) {
	t.Parallel()
	plan := &store.Plan{
		OriginalRequest: "do a thing",
		SynthesisPlan:   "wrap it up",
		Coverage:        "high",
		Tasks: []store.PlanTask{
			{ID: "001", Description: "step one", ActionType: "tool", Name: "shell", Params: map[string]any{"command": "echo hi"}},
		},
	}
	payload := planToGenericPayload(plan)
	require.Equal(t, "do a thing", payload["original_request"])
	subTasks, ok := payload["sub_tasks"].([]any)
	require.True(t, ok)
	require.Len(t, subTasks, 1)
	task := subTasks[0].(map[string]any)
	assert.Equal(t, "001", task["id"])
	toolOrPrompt := task["tool_or_prompt"].(map[string]any)
	assert.Equal(t, "shell", toolOrPrompt["name"])
}
