// Package stopcoord implements the cooperative stop-request coordinator:
// idempotent requests persisted in store.StopRequestStore, probed by the
// planner and executor at their respective safe boundaries.
// A stop never cascades: no sub-step row is deleted, so the rows stay as
// an audit trail (the executor only resets running rows to pending).
package stopcoord

import (
	"context"
	"fmt"

	"github.com/dagplan/dagplan/internal/store"
)

// Coordinator requests and probes cooperative stops.
type Coordinator struct {
	store store.StopRequestStore
}

// New builds a Coordinator backed by s.
func New(s store.StopRequestStore) *Coordinator {
	return &Coordinator{store: s}
}

// RequestStopForDAG idempotently requests a stop for the planner's
// in-flight creation of dagID. A second call while one is already pending
// is a no-op.
func (c *Coordinator) RequestStopForDAG(ctx context.Context, dagID string) error {
	pending, err := c.store.PendingForDAG(ctx, dagID)
	if err != nil {
		return fmt.Errorf("stopcoord: check pending stop for dag: %w", err)
	}
	if pending != nil {
		return nil
	}
	return c.store.CreateStopRequest(ctx, &store.StopRequest{DAGID: &dagID})
}

// RequestStopForExecution idempotently requests a stop for executionID.
func (c *Coordinator) RequestStopForExecution(ctx context.Context, executionID string) error {
	pending, err := c.store.PendingForExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("stopcoord: check pending stop for execution: %w", err)
	}
	if pending != nil {
		return nil
	}
	return c.store.CreateStopRequest(ctx, &store.StopRequest{ExecutionID: &executionID})
}

// HasActiveStopRequestForDAG is the planner's probe, called before each
// LLM call and before persisting the final DAG row.
func (c *Coordinator) HasActiveStopRequestForDAG(ctx context.Context, dagID string) (bool, error) {
	pending, err := c.store.PendingForDAG(ctx, dagID)
	if err != nil {
		return false, fmt.Errorf("stopcoord: probe dag: %w", err)
	}
	return pending != nil, nil
}

// HasActiveStopRequestForExecution is the executor's probe, called at the
// top of each wave and immediately after each wave's completion.
func (c *Coordinator) HasActiveStopRequestForExecution(ctx context.Context, executionID string) (bool, error) {
	pending, err := c.store.PendingForExecution(ctx, executionID)
	if err != nil {
		return false, fmt.Errorf("stopcoord: probe execution: %w", err)
	}
	return pending != nil, nil
}

// MarkStopRequestHandledForDAG marks the most recent pending stop request
// for dagID as handled.
func (c *Coordinator) MarkStopRequestHandledForDAG(ctx context.Context, dagID string) error {
	pending, err := c.store.PendingForDAG(ctx, dagID)
	if err != nil {
		return fmt.Errorf("stopcoord: find pending stop for dag: %w", err)
	}
	if pending == nil {
		return nil
	}
	return c.store.MarkHandled(ctx, pending.ID)
}

// MarkStopRequestHandledForExecution marks the most recent pending stop
// request for executionID as handled.
func (c *Coordinator) MarkStopRequestHandledForExecution(ctx context.Context, executionID string) error {
	pending, err := c.store.PendingForExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("stopcoord: find pending stop for execution: %w", err)
	}
	if pending == nil {
		return nil
	}
	return c.store.MarkHandled(ctx, pending.ID)
}
