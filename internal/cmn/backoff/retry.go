// Package backoff implements retry policies. No other package in this
// module imports it: the LLM providers and the planner's plan-generation
// loop do not retry through it.
package backoff

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

var (
	// ErrRetriesExhausted is returned once a policy's retry budget is spent.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrOperationCanceled is returned when ctx is canceled while waiting.
	ErrOperationCanceled = errors.New("operation canceled")
)

// Policy computes the wait interval before the next retry attempt, or an
// error when no further attempts should be made.
type Policy interface {
	ComputeNextInterval(retryCount int, elapsed time.Duration, err error) (time.Duration, error)
}

// Retrier drives repeated attempts against a Policy, sleeping between them.
type Retrier interface {
	// Next blocks for the interval the policy prescribes, or returns
	// ErrRetriesExhausted / ErrOperationCanceled.
	Next(ctx context.Context, err error) error
	Reset()
}

const (
	unlimitedRetries    = 0
	defaultMultiplier   = 2.0
	defaultMaxInterval  = 10 * time.Second
	defaultJitterFactor = 0.0
)

// ExponentialPolicy doubles (or Multiplier-s) the interval on each attempt,
// capped at MaxInterval, with optional +/- Jitter to avoid thundering-herd
// retries when many waves fail at once.
type ExponentialPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxRetries      int
	// Jitter is a fraction in [0,1): the computed interval is perturbed by
	// up to +/- Jitter*interval.
	Jitter float64
}

// NewExponentialPolicy builds an ExponentialPolicy with this package's
// defaults (multiplier 2.0, 10s cap, unlimited retries, no jitter).
func NewExponentialPolicy(initialInterval time.Duration) *ExponentialPolicy {
	return &ExponentialPolicy{
		InitialInterval: initialInterval,
		Multiplier:      defaultMultiplier,
		MaxInterval:     defaultMaxInterval,
		MaxRetries:      unlimitedRetries,
		Jitter:          defaultJitterFactor,
	}
}

func (p *ExponentialPolicy) ComputeNextInterval(retryCount int, _ time.Duration, _ error) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	interval := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(retryCount))
	if interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}
	if p.Jitter > 0 {
		spread := interval * p.Jitter
		interval += spread*rand.Float64()*2 - spread
		if interval < 0 {
			interval = 0
		}
	}
	return time.Duration(interval), nil
}

// ConstantPolicy waits the same interval before every retry.
type ConstantPolicy struct {
	Interval   time.Duration
	MaxRetries int
}

func (p *ConstantPolicy) ComputeNextInterval(retryCount int, _ time.Duration, _ error) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	return p.Interval, nil
}

// NewRetrier returns a Retrier driven by policy.
func NewRetrier(policy Policy) Retrier {
	return &retrier{policy: policy}
}

type retrier struct {
	policy     Policy
	mu         sync.Mutex
	retryCount int
	startTime  time.Time
}

func (r *retrier) Next(ctx context.Context, err error) error {
	r.mu.Lock()
	if r.startTime.IsZero() {
		r.startTime = time.Now()
	}
	elapsed := time.Since(r.startTime)
	interval, computeErr := r.policy.ComputeNextInterval(r.retryCount, elapsed, err)
	if computeErr != nil {
		r.mu.Unlock()
		return computeErr
	}
	r.retryCount++
	r.mu.Unlock()

	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ErrOperationCanceled
	}
}

func (r *retrier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryCount = 0
	r.startTime = time.Time{}
}
