package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONPrefersJSONFence(t *testing.T) {
	t.Parallel()

	content := "here you go:\n```json\n{\"a\":1}\n```\ntrailer"
	assert.Equal(t, `{"a":1}`, extractJSON(content))
}

func TestExtractJSONFallsBackToAnyFence(t *testing.T) {
	t.Parallel()

	content := "```\n{\"a\":1}\n```"
	assert.Equal(t, `{"a":1}`, extractJSON(content))
}

func TestExtractJSONFallsBackToRawBody(t *testing.T) {
	t.Parallel()

	content := `  {"a":1}  `
	assert.Equal(t, `{"a":1}`, extractJSON(content))
}

func TestParseAndValidatePlanRejectsMissingRequiredFields(t *testing.T) {
	t.Parallel()

	_, err := parseAndValidatePlan(`{"sub_tasks":[]}`)
	require.Error(t, err)
}

func TestParseAndValidatePlanAcceptsWellFormedPlan(t *testing.T) {
	t.Parallel()

	content := "```json\n" + `{
		"original_request": "do the thing",
		"intent": {"primary": "do the thing", "sub_intents": []},
		"entities": [],
		"synthesis_plan": "combine results",
		"validation": {"coverage": "high", "gaps": [], "iteration_triggers": []},
		"sub_tasks": [
			{
				"id": "task_a",
				"description": "first step",
				"action_type": "tool",
				"tool_or_prompt": {"name": "shell", "params": {}},
				"dependencies": []
			}
		]
	}` + "\n```"

	plan, err := parseAndValidatePlan(content)
	require.NoError(t, err)
	assert.Equal(t, "high", plan.Validation.Coverage)
	assert.Equal(t, "do the thing", plan.Intent.Primary)
	require.Len(t, plan.SubTasks, 1)
	assert.Equal(t, "task_a", plan.SubTasks[0].ID)
}

func TestParseAndValidatePlanRejectsInvalidCoverageEnum(t *testing.T) {
	t.Parallel()

	content := `{"validation":{"coverage":"huge"},"sub_tasks":[]}`
	_, err := parseAndValidatePlan(content)
	require.Error(t, err)
}

func TestParseAndValidatePlanRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	_, err := parseAndValidatePlan(`{not json`)
	require.Error(t, err)
}
