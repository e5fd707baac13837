package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-swe/agent-engine/internal/llmgateway"
)

type fakeClient struct {
	calls   int
	failN   int // fail the first failN calls
	failErr error
}

func (f *fakeClient) Complete(context.Context, llmgateway.Request) (llmgateway.Response, error) {
	f.calls++
	if f.calls <= f.failN {
		return llmgateway.Response{}, f.failErr
	}
	return llmgateway.Response{Content: "ok"}, nil
}

func TestRuntime_SucceedsWithoutFallback(t *testing.T) {
	fc := &fakeClient{}
	rt := NewRuntime()
	chain := []BoundModel{NewBoundModel(fc, "model-a", 1000)}
	resp, err := rt.Invoke(context.Background(), chain, llmgateway.Request{})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.Equal(t, 1, fc.calls)
}

func TestRuntime_RetriesWithinModelBeforeFallback(t *testing.T) {
	fc := &fakeClient{failN: 2, failErr: errors.New("timeout")}
	rt := NewRuntime()
	rt.now = func() time.Time { return time.Unix(0, 0) }
	chain := []BoundModel{NewBoundModel(fc, "model-a", 1000)}
	resp, err := rt.Invoke(context.Background(), chain, llmgateway.Request{})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.Equal(t, 3, fc.calls)
}

func TestRuntime_FallsBackAfterModelExhausted(t *testing.T) {
	failing := &fakeClient{failN: maxAttemptsPerModel, failErr: errors.New("timeout")}
	succeeding := &fakeClient{}
	rt := NewRuntime()
	chain := []BoundModel{
		NewBoundModel(failing, "model-a", 1000),
		NewBoundModel(succeeding, "model-b", 1000),
	}
	resp, err := rt.Invoke(context.Background(), chain, llmgateway.Request{})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.Equal(t, maxAttemptsPerModel, failing.calls)
	require.Equal(t, 1, succeeding.calls)
}

func TestRuntime_NonRetryableErrorSkipsRetryAndAdvances(t *testing.T) {
	failing := &fakeClient{failN: maxAttemptsPerModel, failErr: errors.New("400 invalid request")}
	succeeding := &fakeClient{}
	rt := NewRuntime()
	chain := []BoundModel{
		NewBoundModel(failing, "model-a", 1000),
		NewBoundModel(succeeding, "model-b", 1000),
	}
	resp, err := rt.Invoke(context.Background(), chain, llmgateway.Request{})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.Equal(t, 1, failing.calls, "a non-retryable error must not be retried within the model")
	require.Equal(t, 1, succeeding.calls, "a non-retryable failure must advance to the next model immediately")
}

func TestRuntime_AllModelsFailReturnsAggregatedError(t *testing.T) {
	a := &fakeClient{failN: maxAttemptsPerModel, failErr: errors.New("timeout")}
	b := &fakeClient{failN: maxAttemptsPerModel, failErr: errors.New("timeout")}
	c := &fakeClient{failN: maxAttemptsPerModel, failErr: errors.New("timeout")}
	rt := NewRuntime()
	chain := []BoundModel{
		NewBoundModel(a, "model-a", 1000),
		NewBoundModel(b, "model-b", 1000),
		NewBoundModel(c, "model-c", 1000),
	}
	_, err := rt.Invoke(context.Background(), chain, llmgateway.Request{})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrAllModelsExhausted)
	require.Contains(t, err.Error(), "model-c")
}

func TestCircuitBreaker_OpensAfterTwoFailures(t *testing.T) {
	b := &circuitBreaker{}
	now := time.Unix(1000, 0)
	require.True(t, b.Allow(now))
	b.RecordFailure(now)
	require.False(t, b.IsOpen())
	b.RecordFailure(now)
	require.True(t, b.IsOpen())
	require.False(t, b.Allow(now))
}

func TestCircuitBreaker_RecoversAfterCooldown(t *testing.T) {
	b := &circuitBreaker{}
	now := time.Unix(1000, 0)
	b.RecordFailure(now)
	b.RecordFailure(now)
	require.True(t, b.IsOpen())
	later := now.Add(181 * time.Second)
	require.True(t, b.Allow(later))
	require.False(t, b.IsOpen())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := &circuitBreaker{}
	now := time.Unix(1000, 0)
	b.RecordFailure(now)
	b.RecordSuccess()
	b.RecordFailure(now)
	require.False(t, b.IsOpen(), "a single failure after reset must not reopen the breaker")
}

// fakeSharedStore is an in-memory SharedBreakerStore for exercising
// Runtime.Shared without a real Redis server.
type fakeSharedStore struct {
	open         bool
	openedAt     time.Time
	failureCount int
	saves        int
}

func (f *fakeSharedStore) Load(context.Context, string) (bool, time.Time, int, error) {
	return f.open, f.openedAt, f.failureCount, nil
}

func (f *fakeSharedStore) Save(_ context.Context, _ string, open bool, openedAt time.Time, failureCount int) error {
	f.saves++
	f.open, f.openedAt, f.failureCount = open, openedAt, failureCount
	return nil
}

func TestRuntime_AdoptsOpenStateFromSharedStore(t *testing.T) {
	opened := time.Unix(2000, 0)
	shared := &fakeSharedStore{open: true, openedAt: opened, failureCount: 2}
	rt := NewRuntime()
	rt.Shared = shared
	rt.now = func() time.Time { return opened }

	failing := &fakeClient{failN: maxAttemptsPerModel, failErr: errors.New("timeout")}
	chain := []BoundModel{NewBoundModel(failing, "model-a", 1000)}

	_, err := rt.Invoke(context.Background(), chain, llmgateway.Request{})
	require.Error(t, err, "a peer's open verdict must be adopted before Allow is checked")
	require.Equal(t, 0, failing.calls, "breaker adopted as open must short-circuit the call entirely")
}

func TestRuntime_PublishesBreakerStateToSharedStore(t *testing.T) {
	shared := &fakeSharedStore{}
	rt := NewRuntime()
	rt.Shared = shared
	now := time.Unix(3000, 0)
	rt.now = func() time.Time { return now }

	failing := &fakeClient{failN: maxAttemptsPerModel, failErr: errors.New("timeout")}
	chain := []BoundModel{NewBoundModel(failing, "model-a", 1000)}

	_, err := rt.Invoke(context.Background(), chain, llmgateway.Request{})
	require.Error(t, err)
	require.Greater(t, shared.saves, 0, "a failing invocation must publish breaker state to the shared store")
}
