package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialPolicy(t *testing.T) {
	t.Parallel()

	policy := &ExponentialPolicy{
		InitialInterval: 100 * time.Millisecond,
		Multiplier:      2.0,
		MaxInterval:     1 * time.Second,
		MaxRetries:      5,
	}

	tests := []struct {
		retryCount int
		expected   time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1 * time.Second}, // capped
	}

	for _, tc := range tests {
		interval, err := policy.ComputeNextInterval(tc.retryCount, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, interval)
	}

	_, err := policy.ComputeNextInterval(5, 0, nil)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestExponentialPolicyJitter(t *testing.T) {
	t.Parallel()

	policy := &ExponentialPolicy{
		InitialInterval: 1 * time.Second,
		Multiplier:      2.0,
		MaxInterval:     10 * time.Second,
		Jitter:          0.5,
	}

	for i := 0; i < 20; i++ {
		interval, err := policy.ComputeNextInterval(0, 0, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, interval, time.Duration(0))
		assert.LessOrEqual(t, interval, 2*time.Second)
	}
}

func TestConstantPolicy(t *testing.T) {
	t.Parallel()

	policy := &ConstantPolicy{Interval: 50 * time.Millisecond, MaxRetries: 2}

	interval, err := policy.ComputeNextInterval(0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, interval)

	_, err = policy.ComputeNextInterval(2, 0, nil)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestRetrierNext(t *testing.T) {
	t.Parallel()

	r := NewRetrier(&ConstantPolicy{Interval: 1 * time.Millisecond, MaxRetries: 2})
	ctx := context.Background()

	require.NoError(t, r.Next(ctx, nil))
	require.NoError(t, r.Next(ctx, nil))
	assert.ErrorIs(t, r.Next(ctx, nil), ErrRetriesExhausted)

	r.Reset()
	require.NoError(t, r.Next(ctx, nil))
}

func TestRetrierNextCanceled(t *testing.T) {
	t.Parallel()

	r := NewRetrier(&ConstantPolicy{Interval: 1 * time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, r.Next(ctx, nil), ErrOperationCanceled)
}
