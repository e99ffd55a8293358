package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDelay(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	// Clamped by MaxDelay
	assert.Equal(t, 5*time.Second, p.NextDelay(4))
	// Invalid attempt falls back to the first delay
	assert.Equal(t, time.Second, p.NextDelay(0))
}

func TestNextDelayDefaults(t *testing.T) {
	p := Policy{}
	assert.Equal(t, time.Second, p.NextDelay(1))
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 1}

	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsBudget(t *testing.T) {
	sentinel := errors.New("boom")
	calls := 0
	p := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 1}

	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDoAttemptTimeout(t *testing.T) {
	p := Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffFactor: 1, AttemptTimeout: 10 * time.Millisecond}

	err := Do(context.Background(), p, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, InitialDelay: time.Hour}

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, p, func(ctx context.Context) error {
		calls++
		return errors.New("keep going")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPoll(t *testing.T) {
	t.Run("ready on later attempt", func(t *testing.T) {
		calls := 0
		err := Poll(context.Background(), 5, time.Millisecond, func(ctx context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("never ready", func(t *testing.T) {
		err := Poll(context.Background(), 3, time.Millisecond, func(ctx context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, ErrBudgetExhausted)
	})

	t.Run("check error aborts", func(t *testing.T) {
		sentinel := errors.New("dead")
		calls := 0
		err := Poll(context.Background(), 5, time.Millisecond, func(ctx context.Context) (bool, error) {
			calls++
			return false, sentinel
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, calls)
	})
}
