package eventbus

import (
	"context"
	"iter"
	"sync"
	"time"
)

// pollInterval is the idle delay Stream sleeps for when a subscriber's
// queue is empty and the execution hasn't reached a terminal event yet.
const pollInterval = 50 * time.Millisecond

type subscription struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
}

func (s *subscription) push(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, e)
}

func (s *subscription) pop() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	e := s.queue[0]
	s.queue = s.queue[1:]
	return e, true
}

// Bus is a single-process pub/sub keyed by execution id.
type Bus struct {
	mu       sync.Mutex
	subs     map[string][]*subscription
	terminal map[string]bool
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		subs:     make(map[string][]*subscription),
		terminal: make(map[string]bool),
	}
}

// Publish dispatches e to every current subscriber of e.ExecutionID.
// Non-blocking: pushes onto each subscriber's unbounded queue and returns
// immediately, so a slow subscriber never delays the executor.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := append([]*subscription(nil), b.subs[e.ExecutionID]...)
	if IsTerminal(e.Type) {
		b.terminal[e.ExecutionID] = true
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.push(e)
	}
}

// MarkTerminal records executionID as already finished, for the Stream
// fast path, without publishing an event.
func (b *Bus) MarkTerminal(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.terminal[executionID] = true
}

func (b *Bus) subscribe(executionID string) *subscription {
	s := &subscription{}
	b.mu.Lock()
	b.subs[executionID] = append(b.subs[executionID], s)
	b.mu.Unlock()
	return s
}

func (b *Bus) unsubscribe(executionID string, s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	subs := b.subs[executionID]
	for i, sub := range subs {
		if sub == s {
			b.subs[executionID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Stream returns a lazy sequence of events for executionID. It polls the
// subscriber's queue every pollInterval when empty, and terminates after
// yielding the first terminal event (Completed, Failed, Suspended, or
// Stopped). If executionID was already marked terminal before Stream is
// called, it returns an empty sequence (the fast path).
func (b *Bus) Stream(ctx context.Context, executionID string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		b.mu.Lock()
		alreadyTerminal := b.terminal[executionID]
		b.mu.Unlock()
		if alreadyTerminal {
			return
		}

		sub := b.subscribe(executionID)
		defer b.unsubscribe(executionID, sub)

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			if e, ok := sub.pop(); ok {
				if !yield(e) {
					return
				}
				if IsTerminal(e.Type) {
					return
				}
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}
