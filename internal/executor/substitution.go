package executor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dagplan/dagplan/internal/store"
	"github.com/dagplan/dagplan/internal/tools"
)

// maxDependencySnippetChars caps each dependency's text embedded into an
// inference prompt, each capped with an ellipsis once it grows past this.
const maxDependencySnippetChars = 2000

// substitutePlanTokens replaces the runtime tokens {{currentDate}} and
// {{Today}} throughout a stored Plan's task descriptions/thoughts/params,
// returning a copy. The synthesis plan string is substituted too, since
// it is fed to the synthesis LLM call.
func substitutePlanTokens(plan *store.Plan, now time.Time) *store.Plan {
	replacer := strings.NewReplacer(
		"{{currentDate}}", now.Format("2006-01-02"),
		"{{Today}}", now.Format("2006-01-02"),
	)

	out := *plan
	out.SynthesisPlan = replacer.Replace(plan.SynthesisPlan)
	out.Tasks = make([]store.PlanTask, len(plan.Tasks))
	for i, t := range plan.Tasks {
		nt := t
		nt.Description = replacer.Replace(t.Description)
		nt.Thought = replacer.Replace(t.Thought)
		if t.Params != nil {
			nt.Params = substituteTokensInValue(t.Params, replacer).(map[string]any)
		}
		out.Tasks[i] = nt
	}
	return &out
}

func substituteTokensInValue(v any, replacer *strings.Replacer) any {
	switch val := v.(type) {
	case string:
		return replacer.Replace(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = substituteTokensInValue(item, replacer)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substituteTokensInValue(item, replacer)
		}
		return out
	default:
		return v
	}
}

// planToGenericPayload reshapes a stored Plan back into the snake_case
// wire shape the decomposer schema validates (planner.ValidatePlanPayload),
// so the post-substitution plan can be re-validated against the exact same
// schema used at planning time.
func planToGenericPayload(plan *store.Plan) map[string]any {
	subTasks := make([]any, len(plan.Tasks))
	for i, t := range plan.Tasks {
		subTasks[i] = map[string]any{
			"id":          t.ID,
			"description": t.Description,
			"thought":     t.Thought,
			"action_type": t.ActionType,
			"tool_or_prompt": map[string]any{
				"name":   t.Name,
				"params": t.Params,
			},
			"dependencies": toAnySlice(t.Dependencies),
		}
	}
	return map[string]any{
		"original_request": plan.OriginalRequest,
		"synthesis_plan":    plan.SynthesisPlan,
		"validation": map[string]any{
			"coverage":           orDefault(plan.Coverage, "high"),
			"gaps":               toAnySlice(plan.CoverageGaps),
			"iteration_triggers": toAnySlice(plan.IterationTriggers),
		},
		"sub_tasks": subTasks,
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// resultRefPattern matches the literal dependency-reference token the
// catch-all dependency-resolution rule names: "<Result(s) (from|of) Task
// N>".
var resultRefPattern = regexp.MustCompile(`<Results? (?:from|of) Task (\S+)>`)

// substituteParams walks params recursively, replacing every
// resultRefPattern occurrence in string values with the matching
// dependency's result, for tools that don't implement
// tools.DependencyResolver (the catch-all dependency-resolution rule; the
// tool-specific rules are realized as DependencyResolver implementations
// in internal/tools instead).
func substituteParams(params map[string]any, deps []tools.DependencyResult) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = substituteValue(v, deps)
	}
	return out
}

func substituteValue(v any, deps []tools.DependencyResult) any {
	switch val := v.(type) {
	case string:
		return substituteResultRefs(val, deps)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substituteValue(item, deps)
		}
		return out
	case map[string]any:
		return substituteParams(val, deps)
	default:
		return v
	}
}

func substituteResultRefs(value string, deps []tools.DependencyResult) string {
	if len(deps) == 0 {
		return value
	}
	return resultRefPattern.ReplaceAllStringFunc(value, func(match string) string {
		sub := resultRefPattern.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}
		ref := sub[1]
		for _, d := range deps {
			if dependencyRefMatches(d.TaskID, ref) {
				return tools.StringifyResult(d.Result)
			}
		}
		return match
	})
}

// dependencyRefMatches accepts both the exact renumbered task id ("003")
// and a bare ordinal ("3"), since the decomposer's prose may reference a
// dependency by either form.
func dependencyRefMatches(taskID, ref string) bool {
	if taskID == ref {
		return true
	}
	trimmed := strings.TrimLeft(ref, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return false
	}
	return fmt.Sprintf("%03d", n) == taskID
}

func dependencyResultsFor(task store.PlanTask, resultsSoFar map[string]any) []tools.DependencyResult {
	deps := make([]tools.DependencyResult, 0, len(task.Dependencies))
	for _, depID := range task.Dependencies {
		deps = append(deps, tools.DependencyResult{TaskID: depID, Result: resultsSoFar[depID]})
	}
	return deps
}

func truncateSnippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
