// Package fallback implements the Fallback & Circuit-Breaker Runtime (C3):
// per-model invocation with bounded retry, a process-local circuit breaker
// per model, and ordered fallback across a model chain, per SPEC_FULL.md
// §4.3. The retry/backoff shape is grounded on internal/sandbox/retry.go;
// the per-tenant error classification on the teacher's
// runtime/a2a/retry.go ErrorToRetryHint convention.
package fallback

import (
	"sync"
	"time"
)

// breakerState is a model's circuit state.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
)

const (
	failureThreshold = 2
	cooldown         = 180 * time.Second
)

// circuitBreaker tracks consecutive-failure state for one model. It is
// process-local and mutex-protected; when Runtime.Shared is set, its state
// is mirrored through a SharedBreakerStore via snapshot/adoptIfMoreOpen.
type circuitBreaker struct {
	mu           sync.Mutex
	state        breakerState
	failureCount int
	openedAt     time.Time
}

// Allow reports whether a call may proceed, auto-recovering the breaker to
// Closed once the cooldown has elapsed since it opened.
func (b *circuitBreaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateClosed {
		return true
	}
	if now.Sub(b.openedAt) >= cooldown {
		b.state = stateClosed
		b.failureCount = 0
		return true
	}
	return false
}

// RecordSuccess resets the breaker to Closed with a zeroed failure count.
func (b *circuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.failureCount = 0
}

// RecordFailure increments the consecutive-failure count and opens the
// breaker once failureThreshold is reached.
func (b *circuitBreaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	if b.failureCount >= failureThreshold {
		b.state = stateOpen
		b.openedAt = now
	}
}

// IsOpen reports the breaker's state without side effects, for diagnostics.
func (b *circuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen
}

// snapshot returns the breaker's raw fields for syncing to a
// SharedBreakerStore.
func (b *circuitBreaker) snapshot() (open bool, openedAt time.Time, failureCount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen, b.openedAt, b.failureCount
}

// adoptIfMoreOpen merges in a remote snapshot when it is more restrictive
// than local state: a peer's Open verdict (with a later openedAt) always
// wins, since any node observing failureThreshold failures is sufficient to
// protect the whole fleet from a bad model.
func (b *circuitBreaker) adoptIfMoreOpen(open bool, openedAt time.Time, failureCount int) {
	if !open {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateOpen && !openedAt.After(b.openedAt) {
		return
	}
	b.state = stateOpen
	b.openedAt = openedAt
	if failureCount > b.failureCount {
		b.failureCount = failureCount
	}
}

// breakerRegistry holds one circuitBreaker per model identifier.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*circuitBreaker
}

func newBreakerRegistry() *breakerRegistry {
	return &breakerRegistry{breakers: map[string]*circuitBreaker{}}
}

func (r *breakerRegistry) get(model string) *circuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[model]
	if !ok {
		b = &circuitBreaker{}
		r.breakers[model] = b
	}
	return b
}
