package fallback

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/open-swe/agent-engine/internal/llmgateway"
	"github.com/open-swe/agent-engine/internal/sandbox"
	"github.com/open-swe/agent-engine/internal/telemetry"
)

var tracer = telemetry.NewTracer("github.com/open-swe/agent-engine/internal/fallback")

const (
	maxAttemptsPerModel = 5
	baseDelay           = time.Second
	maxDelay            = 30 * time.Second
)

// Runtime invokes an ordered chain of BoundModels, retrying transient
// failures within a model, recording one breaker failure for a model whose
// retries are exhausted (or that fails non-transiently), and moving to the
// next model in the chain. A model's breaker opens once failureThreshold
// such failures have been recorded in a row, across invocations.
type Runtime struct {
	breakers *breakerRegistry
	now      func() time.Time

	// Shared, when set, mirrors every breaker transition to a
	// SharedBreakerStore (e.g. RedisBreakerStore) so a fleet of Runtime
	// instances agrees on which models are open. Best-effort: a Shared
	// error degrades to process-local behavior rather than failing Invoke.
	Shared SharedBreakerStore
}

// NewRuntime constructs a Runtime with a fresh breaker registry and no
// shared store (process-local only).
func NewRuntime() *Runtime {
	return &Runtime{breakers: newBreakerRegistry(), now: time.Now}
}

// ErrAllModelsExhausted is wrapped into the final error when every model in
// the fallback chain has failed.
var ErrAllModelsExhausted = errors.New("all fallback models exhausted")

// Invoke tries each model in chain, in order, until one succeeds or the
// chain is exhausted.
func (r *Runtime) Invoke(ctx context.Context, chain []BoundModel, req llmgateway.Request) (llmgateway.Response, error) {
	if len(chain) == 0 {
		return llmgateway.Response{}, fmt.Errorf("fallback: %w", ErrAllModelsExhausted)
	}
	var lastErr error
	var lastModel string
	for _, bound := range chain {
		lastModel = bound.ModelName
		breaker := r.breakers.get(bound.ModelName)
		r.syncFromShared(ctx, bound.ModelName, breaker)
		if !breaker.Allow(r.now()) {
			lastErr = fmt.Errorf("circuit open for model %s", bound.ModelName)
			tracer.IncCounter(ctx, "fallback.circuit_open", "model", bound.ModelName)
			continue
		}
		spanCtx, span := tracer.Start(ctx, "fallback.invoke", "model", bound.ModelName)
		started := r.now()
		resp, err := r.invokeWithRetry(spanCtx, bound, req, breaker)
		tracer.RecordDuration(ctx, "fallback.invoke.duration", r.now().Sub(started), "model", bound.ModelName)
		span.End(err)
		if err == nil {
			breaker.RecordSuccess()
			r.syncToShared(ctx, bound.ModelName, breaker)
			tracer.IncCounter(ctx, "fallback.invoke.success", "model", bound.ModelName)
			return resp, nil
		}
		lastErr = err
		r.syncToShared(ctx, bound.ModelName, breaker)
		tracer.IncCounter(ctx, "fallback.invoke.failure", "model", bound.ModelName)
	}
	return llmgateway.Response{}, fmt.Errorf("%w: last model %s: %v", ErrAllModelsExhausted, lastModel, lastErr)
}

// invokeWithRetry runs bound.Client.Complete up to maxAttemptsPerModel
// times with jittered exponential backoff, recording one breaker failure
// per exhausted attempt sequence.
// invokeWithRetry retries a single model up to maxAttemptsPerModel times,
// but only on a classified-transient failure (timeout, abort, 429, 5xx,
// network): a non-retryable error breaks immediately so the chain can
// advance to the next model without burning the retry budget (SPEC_FULL.md
// §4.3, "on exhaustion or non-retryable failure record failure and advance
// to model_{i+1}"). Reuses sandbox.IsTransient, the same marker-substring
// classifier C1 uses to gate its own network retries.
func (r *Runtime) invokeWithRetry(ctx context.Context, bound BoundModel, base llmgateway.Request, breaker *circuitBreaker) (llmgateway.Response, error) {
	req := bound.buildRequest(base)
	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt < maxAttemptsPerModel; attempt++ {
		resp, err := bound.Client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !sandbox.IsTransient(err) {
			break
		}
		if attempt == maxAttemptsPerModel-1 {
			break
		}
		jittered := delay/2 + time.Duration(rand.Int64N(int64(delay/2)+1))
		select {
		case <-ctx.Done():
			breaker.RecordFailure(r.now())
			return llmgateway.Response{}, ctx.Err()
		case <-time.After(jittered):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	breaker.RecordFailure(r.now())
	return llmgateway.Response{}, lastErr
}

// CircuitOpen reports whether model's breaker is currently open, for
// diagnostics and progress events.
func (r *Runtime) CircuitOpen(model string) bool {
	return r.breakers.get(model).IsOpen()
}

func (r *Runtime) syncFromShared(ctx context.Context, model string, breaker *circuitBreaker) {
	if r.Shared == nil {
		return
	}
	open, openedAt, failureCount, err := r.Shared.Load(ctx, model)
	if err != nil {
		return
	}
	breaker.adoptIfMoreOpen(open, openedAt, failureCount)
}

func (r *Runtime) syncToShared(ctx context.Context, model string, breaker *circuitBreaker) {
	if r.Shared == nil {
		return
	}
	open, openedAt, failureCount := breaker.snapshot()
	_ = r.Shared.Save(ctx, model, open, openedAt, failureCount)
}
