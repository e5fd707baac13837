package sandbox

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
)

// transientMarkers are substring matches used to classify an error as
// retryable infrastructure noise, per SPEC_FULL.md §4.1 Retries / §7.
var transientMarkers = []string{
	"connection reset",
	"connection refused",
	"temporary failure",
	"socket hang up",
	"aborted",
	"timeout",
	"timed out",
	"deadline exceeded",
	"429",
	"502",
	"503",
	"504",
	"gateway",
	"cloudfront",
}

// IsTransient reports whether err should be retried by the network-facing
// primitives (create, get, executeCommand, git.*).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// RetryConfig configures the exponential backoff used by Retry.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig is 5 attempts starting at 5-10s, per SPEC_FULL.md §4.1.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, BaseDelay: 10 * time.Second, MaxDelay: 80 * time.Second}
}

// Retry runs fn up to cfg.MaxAttempts times, retrying only on transient
// errors classified by IsTransient; non-transient errors propagate
// immediately. cancelled is checked between attempts (SPEC_FULL.md §5).
func Retry(ctx context.Context, cfg RetryConfig, cancelled func() bool, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if cancelled != nil && cancelled() {
			if err := ctx.Err(); err != nil {
				return err
			}
			return context.Canceled
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		jittered := delay/2 + time.Duration(rand.Int64N(int64(delay/2)+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
