// Package statestore defines the external persistence contract the graph
// coordinator (C6) is pure over, per SPEC_FULL.md §1's out-of-scope note
// ("persistence of thread state... the engine is pure over an injected
// state store"). Grounded on the teacher's run.Store interface shape
// (features/run/mongo/store.go, runtime/agent/run/inmem/inmem.go).
package statestore

import (
	"context"
	"errors"

	"github.com/open-swe/agent-engine/internal/state"
)

// ErrNotFound is returned when a threadId has no persisted record.
var ErrNotFound = errors.New("statestore: thread not found")

// Store persists and retrieves Thread records by threadId. Implementations
// must be safe for concurrent use across runs (SPEC_FULL.md §5).
type Store interface {
	Get(ctx context.Context, threadID string) (*state.Thread, error)
	Put(ctx context.Context, thread *state.Thread) error
	Delete(ctx context.Context, threadID string) error
}
