package recon

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry_TransientFailuresRetried(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), testPolicy(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &TransientError{Op: "order feed", Err: fmt.Errorf("connection reset")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_AttemptsExhausted(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), testPolicy(), func(ctx context.Context) error {
		attempts++
		return &TransientError{Op: "order feed", Err: fmt.Errorf("connection reset")}
	})

	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, testPolicy().RetryAttempts, attempts)
}

func TestWithRetry_ValidationNotRetried(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), testPolicy(), func(ctx context.Context) error {
		attempts++
		return &ValidationError{OrderID: "ord-1", Reason: "negative quantity"}
	})

	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 1, attempts, "validation failures must not be retried blindly")
}

func TestWithRetry_ConfigurationNotRetried(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), testPolicy(), func(ctx context.Context) error {
		attempts++
		return &ConfigurationError{Field: "lookback_window", Reason: "must be positive"}
	})

	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := withRetry(ctx, testPolicy(), func(ctx context.Context) error {
		attempts++
		cancel()
		return &TransientError{Op: "order feed", Err: fmt.Errorf("connection reset")}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
