package planner

import (
	"fmt"

	"github.com/dagplan/dagplan/internal/store"
)

// renumberTasks rewrites task ids to a contiguous zero-padded sequence
// ("001", "002", ...) in first-occurrence order, rewriting every
// dependency reference through the same mapping so the graph stays
// consistent.
func renumberTasks(tasks []rawSubTask) ([]store.PlanTask, error) {
	mapping := make(map[string]string, len(tasks))
	for i, t := range tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("renumber: sub-task %d has no id", i)
		}
		if _, dup := mapping[t.ID]; dup {
			return nil, fmt.Errorf("renumber: duplicate sub-task id %q", t.ID)
		}
		mapping[t.ID] = fmt.Sprintf("%03d", i+1)
	}

	out := make([]store.PlanTask, 0, len(tasks))
	for _, t := range tasks {
		deps := make([]string, 0, len(t.Dependencies))
		for _, d := range t.Dependencies {
			if d == "none" {
				continue
			}
			newID, ok := mapping[d]
			if !ok {
				return nil, fmt.Errorf("renumber: task %q depends on unknown id %q", t.ID, d)
			}
			deps = append(deps, newID)
		}

		out = append(out, store.PlanTask{
			ID:           mapping[t.ID],
			Description:  t.Description,
			Thought:      t.Thought,
			ActionType:   t.ActionType,
			Name:         t.ToolOrPrompt.Name,
			Params:       t.ToolOrPrompt.Params,
			Dependencies: deps,
		})
	}
	return out, nil
}
