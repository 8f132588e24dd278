package stopcoord_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagplan/dagplan/internal/stopcoord"
	"github.com/dagplan/dagplan/internal/store/storetest"
)

func TestRequestStopForExecutionIdempotent(t *testing.T) {
	t.Parallel()

	s := storetest.New()
	c := stopcoord.New(s)
	ctx := context.Background()

	require.NoError(t, c.RequestStopForExecution(ctx, "exec-1"))
	require.NoError(t, c.RequestStopForExecution(ctx, "exec-1"))

	active, err := c.HasActiveStopRequestForExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.True(t, active)

	all, err := s.PendingForExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.NotNil(t, all)
}

func TestMarkHandledClearsProbe(t *testing.T) {
	t.Parallel()

	s := storetest.New()
	c := stopcoord.New(s)
	ctx := context.Background()

	require.NoError(t, c.RequestStopForDAG(ctx, "dag-1"))
	active, err := c.HasActiveStopRequestForDAG(ctx, "dag-1")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, c.MarkStopRequestHandledForDAG(ctx, "dag-1"))

	active, err = c.HasActiveStopRequestForDAG(ctx, "dag-1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestNoActiveStopRequestByDefault(t *testing.T) {
	t.Parallel()

	c := stopcoord.New(storetest.New())
	active, err := c.HasActiveStopRequestForExecution(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, active)
}
