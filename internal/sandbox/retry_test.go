package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	cases := map[string]bool{
		"connection reset by peer":        true,
		"dial tcp: connection refused":    true,
		"temporary failure in name resolution": true,
		"socket hang up":                  true,
		"request aborted":                 true,
		"http 429 too many requests":      true,
		"http 503 service unavailable":    true,
		"cloudfront error":                true,
		"validation failed: bad input":    false,
		"404 not found":                   false,
	}
	for msg, want := range cases {
		require.Equal(t, want, IsTransient(errors.New(msg)), msg)
	}
	require.False(t, IsTransient(nil))
}

func TestRetry_NonTransientPropagatesImmediately(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), DefaultRetryConfig(), nil, func(context.Context) error {
		attempts++
		return errors.New("permission denied")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestRetry_TransientRetriesUpToMax(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: 0, MaxDelay: 0}
	err := Retry(context.Background(), cfg, nil, func(context.Context) error {
		attempts++
		return errors.New("connection reset")
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetry_SucceedsWithoutExhausting(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: 0, MaxDelay: 0}
	err := Retry(context.Background(), cfg, nil, func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("502 bad gateway")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestRetry_RespectsCancellation(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() bool { return true }, func(context.Context) error {
		attempts++
		return errors.New("connection reset")
	})
	require.Error(t, err)
	require.Zero(t, attempts)
}
