package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// planSchemaResource is the jsonschema/v6 resource name the compiled Plan
// schema is registered under.
const planSchemaResource = "dagplan://planner/plan.json"

// planJSONSchema is the schema every decomposer response must satisfy
// before it becomes a persisted plan.
var planJSONSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"original_request":     map[string]any{"type": "string"},
		"intent":               map[string]any{"type": "object"},
		"entities":             map[string]any{"type": "array"},
		"synthesis_plan":       map[string]any{"type": "string"},
		"clarification_needed": map[string]any{"type": "boolean"},
		"clarification_query":  map[string]any{"type": "string"},
		"validation": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"coverage":           map[string]any{"type": "string", "enum": []any{"high", "medium", "low"}},
				"gaps":               map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"iteration_triggers": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []any{"coverage"},
		},
		"sub_tasks": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":          map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"thought":     map[string]any{"type": "string"},
					"action_type": map[string]any{"type": "string", "enum": []any{"tool", "inference"}},
					"tool_or_prompt": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"name":   map[string]any{"type": "string"},
							"params": map[string]any{"type": "object"},
						},
						"required": []any{"name"},
					},
					"expected_output": map[string]any{"type": "string"},
					"dependencies":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []any{"id", "description", "action_type", "tool_or_prompt"},
			},
		},
	},
	"required": []any{"sub_tasks", "validation"},
}

var compiledPlanSchema = mustCompilePlanSchema()

func mustCompilePlanSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(planSchemaResource, planJSONSchema); err != nil {
		panic(fmt.Sprintf("planner: compile plan schema: %v", err))
	}
	schema, err := compiler.Compile(planSchemaResource)
	if err != nil {
		panic(fmt.Sprintf("planner: compile plan schema: %v", err))
	}
	return schema
}

// rawPlan is the wire shape emitted by the decomposer LLM. It is
// translated into store.Plan once validated.
type rawPlan struct {
	OriginalRequest string `json:"original_request"`
	Intent          struct {
		Primary     string   `json:"primary"`
		SubIntents  []string `json:"sub_intents"`
	} `json:"intent"`
	Entities            []string `json:"entities"`
	SynthesisPlan       string   `json:"synthesis_plan"`
	ClarificationNeeded bool     `json:"clarification_needed"`
	ClarificationQuery  string   `json:"clarification_query"`
	Validation          struct {
		Coverage          string   `json:"coverage"`
		Gaps              []string `json:"gaps"`
		IterationTriggers []string `json:"iteration_triggers"`
	} `json:"validation"`
	SubTasks []rawSubTask `json:"sub_tasks"`
}

type rawSubTask struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	Thought       string   `json:"thought"`
	ActionType    string   `json:"action_type"`
	ToolOrPrompt  struct {
		Name   string         `json:"name"`
		Params map[string]any `json:"params"`
	} `json:"tool_or_prompt"`
	ExpectedOutput string   `json:"expected_output"`
	Dependencies   []string `json:"dependencies"`
}

var (
	fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*\\n(.*?)```")
	fencedAnyBlock  = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n(.*?)```")
)

// extractJSON pulls the JSON payload out of the decomposer response:
// prefer a
// ```json fenced block, then any fenced block, then the raw body.
func extractJSON(content string) string {
	if m := fencedJSONBlock.FindStringSubmatch(content); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	if m := fencedAnyBlock.FindStringSubmatch(content); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(content)
}

// ValidatePlanPayload validates a generic (snake_case) Plan payload against
// the same compiled schema used at planning time. Exported so the executor
// can re-validate a stored Plan after runtime token substitution.
func ValidatePlanPayload(payload map[string]any) error {
	if err := compiledPlanSchema.Validate(payload); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

// parseAndValidatePlan parses content as a Plan (after fenced-JSON
// extraction) and validates it against the Plan schema.
func parseAndValidatePlan(content string) (*rawPlan, error) {
	candidate := extractJSON(content)

	var generic any
	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	if err := compiledPlanSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	var plan rawPlan
	if err := json.Unmarshal([]byte(candidate), &plan); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &plan, nil
}
