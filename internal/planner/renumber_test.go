package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenumberTasksDeterministicRenumber(t *testing.T) {
	t.Parallel()

	tasks := []rawSubTask{
		{ID: "task_a"},
		{ID: "task_b", Dependencies: []string{"task_a"}},
		{ID: "task_a_2"},
	}

	out, err := renumberTasks(tasks)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "001", out[0].ID)
	assert.Equal(t, "002", out[1].ID)
	assert.Equal(t, []string{"001"}, out[1].Dependencies)
	assert.Equal(t, "003", out[2].ID)
}

func TestRenumberTasksSkipsLiteralNoneDependency(t *testing.T) {
	t.Parallel()

	tasks := []rawSubTask{
		{ID: "task_a", Dependencies: []string{"none"}},
	}
	out, err := renumberTasks(tasks)
	require.NoError(t, err)
	assert.Empty(t, out[0].Dependencies)
}

func TestRenumberTasksRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	tasks := []rawSubTask{{ID: "task_a"}, {ID: "task_a"}}
	_, err := renumberTasks(tasks)
	assert.Error(t, err)
}

func TestRenumberTasksRejectsEmptyID(t *testing.T) {
	t.Parallel()

	tasks := []rawSubTask{{ID: ""}}
	_, err := renumberTasks(tasks)
	assert.Error(t, err)
}

func TestRenumberTasksRejectsUnknownDependency(t *testing.T) {
	t.Parallel()

	tasks := []rawSubTask{
		{ID: "task_a", Dependencies: []string{"task_ghost"}},
	}
	_, err := renumberTasks(tasks)
	assert.Error(t, err)
}
