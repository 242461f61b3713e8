package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicySucceedsFirstAttempt(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}

	calls := 0
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}

	boom := errors.New("storage down")
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyRecoversMidway(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Millisecond}

	calls := 0
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, InitialBackoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, err := p.Do(ctx, func(context.Context) error {
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
