package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(ctx context.Context, t *testing.T, bus *Bus, executionID string) []Event {
	t.Helper()
	var out []Event
	for e := range bus.Stream(ctx, executionID) {
		out = append(out, e)
	}
	return out
}

func TestStreamOrdinaryLifecycle(t *testing.T) {
	t.Parallel()

	bus := New()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan []Event, 1)
	go func() { done <- collect(ctx, t, bus, "exec-1") }()

	time.Sleep(10 * time.Millisecond) // let the subscriber register
	bus.Publish(Event{Type: Started, ExecutionID: "exec-1", TS: 1})
	bus.Publish(Event{Type: WaveStarted, ExecutionID: "exec-1", TS: 2})
	bus.Publish(Event{Type: Completed, ExecutionID: "exec-1", TS: 3})

	select {
	case events := <-done:
		require.Len(t, events, 3)
		assert.Equal(t, Started, events[0].Type)
		assert.Equal(t, Completed, events[2].Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream to close")
	}
}

func TestStreamFastPathAlreadyTerminal(t *testing.T) {
	t.Parallel()

	bus := New()
	bus.MarkTerminal("exec-done")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	events := collect(ctx, t, bus, "exec-done")
	assert.Empty(t, events)
}

func TestPublishIgnoresUnrelatedExecutions(t *testing.T) {
	t.Parallel()

	bus := New()
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan []Event, 1)
	go func() { done <- collect(ctx, t, bus, "exec-a") }()
	time.Sleep(10 * time.Millisecond)

	bus.Publish(Event{Type: Started, ExecutionID: "exec-b", TS: 1})
	bus.Publish(Event{Type: Completed, ExecutionID: "exec-a", TS: 2})

	events := <-done
	require.Len(t, events, 1)
	assert.Equal(t, "exec-a", events[0].ExecutionID)
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, IsTerminal(Completed))
	assert.True(t, IsTerminal(Failed))
	assert.True(t, IsTerminal(Suspended))
	assert.True(t, IsTerminal(Stopped))
	assert.False(t, IsTerminal(TaskStarted))
}
