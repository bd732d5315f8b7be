package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		Multiplier:    2,
		OnlyRetryable: true,
	}
}

func TestRetryWithResult_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0

	got, err := RetryWithResult(context.Background(), fastRetry(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, New(ErrCodeNetworkUnavailable, "down", nil)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	target := DimensionMismatch(768, 3)

	err := Retry(context.Background(), fastRetry(), func() error {
		calls++
		return target
	})

	assert.Same(t, target, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	cfg := fastRetry()
	cfg.OnlyRetryable = false
	calls := 0

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return errors.New("flaky")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 retries")
	assert.Equal(t, 4, calls)
}

func TestRetry_HonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetry(), func() error {
		t.Fatal("fn must not run")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}
