package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagplan/dagplan/internal/store"
	"github.com/dagplan/dagplan/internal/store/storetest"
)

// newStores returns every Store implementation under conformance test.
func newStores(t *testing.T) map[string]store.Store {
	t.Helper()
	sqlitePath := filepath.Join(t.TempDir(), "dagplan.db")
	sqliteStore, err := store.Open(sqlitePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]store.Store{
		"sqlite": sqliteStore,
		"fake":   storetest.New(),
	}
}

func TestStoreConformance(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("AgentActiveUniqueness", func(t *testing.T) {
				a1 := &store.Agent{Name: "researcher", Version: 1, PromptTemplate: "t1", Provider: "openai", Model: "gpt-4o", Active: true}
				a2 := &store.Agent{Name: "researcher", Version: 2, PromptTemplate: "t2", Provider: "openai", Model: "gpt-4o"}
				require.NoError(t, s.CreateAgent(ctx, a1))
				require.NoError(t, s.CreateAgent(ctx, a2))

				require.NoError(t, s.Activate(ctx, a2.ID))

				got1, err := s.GetAgent(ctx, a1.ID)
				require.NoError(t, err)
				assert.False(t, got1.Active)

				got2, err := s.GetAgent(ctx, a2.ID)
				require.NoError(t, err)
				assert.True(t, got2.Active)

				active, err := s.GetActiveAgentByName(ctx, "researcher")
				require.NoError(t, err)
				assert.Equal(t, a2.ID, active.ID)
			})

			t.Run("DAGDeleteRestrictedWhileInUse", func(t *testing.T) {
				d := &store.DAG{Status: store.DAGStatusSuccess, AgentName: "researcher"}
				require.NoError(t, s.CreateDAG(ctx, d))

				e := &store.Execution{DAGID: d.ID, OriginalRequest: "goal", Status: store.ExecutionPending}
				require.NoError(t, s.CreateExecution(ctx, e))

				err := s.DeleteDAG(ctx, d.ID)
				assert.ErrorIs(t, err, store.ErrDAGInUse)

				require.NoError(t, s.DeleteExecution(ctx, e.ID))
				assert.NoError(t, s.DeleteDAG(ctx, d.ID))
			})

			t.Run("ExecutionDeleteCascadesSubSteps", func(t *testing.T) {
				d := &store.DAG{Status: store.DAGStatusSuccess, AgentName: "researcher"}
				require.NoError(t, s.CreateDAG(ctx, d))
				e := &store.Execution{DAGID: d.ID, OriginalRequest: "goal", Status: store.ExecutionRunning}
				require.NoError(t, s.CreateExecution(ctx, e))
				st := &store.SubStep{ExecutionID: e.ID, TaskID: "001", ActionType: "tool", ToolOrPromptName: "shell", Status: store.SubStepPending}
				require.NoError(t, s.CreateSubStep(ctx, st))

				require.NoError(t, s.DeleteExecution(ctx, e.ID))

				_, err := s.GetSubStep(ctx, e.ID, "001")
				assert.ErrorIs(t, err, store.ErrSubStepNotFound)
			})

			t.Run("SubStepRoundTrip", func(t *testing.T) {
				d := &store.DAG{Status: store.DAGStatusSuccess, AgentName: "researcher"}
				require.NoError(t, s.CreateDAG(ctx, d))
				e := &store.Execution{DAGID: d.ID, OriginalRequest: "goal", Status: store.ExecutionRunning, TotalTasks: 1}
				require.NoError(t, s.CreateExecution(ctx, e))

				cost := "0.0042"
				st := &store.SubStep{
					ExecutionID:        e.ID,
					TaskID:             "001",
					ActionType:         "tool",
					ToolOrPromptName:   "shell",
					ToolOrPromptParams: map[string]any{"command": "echo hi"},
					Dependencies:       []string{},
					Status:             store.SubStepPending,
					CostUSD:            &cost,
				}
				require.NoError(t, s.CreateSubStep(ctx, st))

				got, err := s.GetSubStep(ctx, e.ID, "001")
				require.NoError(t, err)
				assert.Equal(t, "echo hi", got.ToolOrPromptParams["command"])
				require.NotNil(t, got.CostUSD)
				assert.Equal(t, "0.0042", *got.CostUSD)

				got.Status = store.SubStepCompleted
				got.Result = "hi"
				require.NoError(t, s.UpdateSubStep(ctx, got))

				list, err := s.ListSubSteps(ctx, e.ID)
				require.NoError(t, err)
				require.Len(t, list, 1)
				assert.Equal(t, store.SubStepCompleted, list[0].Status)
			})

			t.Run("StopRequestRequiresExactlyOneTarget", func(t *testing.T) {
				err := s.CreateStopRequest(ctx, &store.StopRequest{})
				assert.ErrorIs(t, err, store.ErrInvalidStopRequest)

				dagID, execID := "d1", "e1"
				err = s.CreateStopRequest(ctx, &store.StopRequest{DAGID: &dagID, ExecutionID: &execID})
				assert.ErrorIs(t, err, store.ErrInvalidStopRequest)
			})

			t.Run("StopRequestPendingThenHandled", func(t *testing.T) {
				execID := "exec-stop-1"
				require.NoError(t, s.CreateStopRequest(ctx, &store.StopRequest{ExecutionID: &execID}))

				pending, err := s.PendingForExecution(ctx, execID)
				require.NoError(t, err)
				require.NotNil(t, pending)
				assert.Equal(t, store.StopRequestPending, pending.Status)

				require.NoError(t, s.MarkHandled(ctx, pending.ID))

				pending, err = s.PendingForExecution(ctx, execID)
				require.NoError(t, err)
				assert.Nil(t, pending)
			})
		})
	}
}
