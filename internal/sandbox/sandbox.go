// Package sandbox implements the Sandbox Provider Registry (C1): a
// provider-agnostic shell+filesystem+git capability surface over
// heterogeneous remote-execution backends, per SPEC_FULL.md §4.1. Grounded
// on the teacher's provider-abstraction conventions in runtime/a2a/caller.go
// and runtime/registry/cache.go (mutex-protected process-local state).
package sandbox

import (
	"context"
	"errors"
	"time"
)

// State is the sandbox lifecycle state machine: Creating -> Started ->
// (Stopped | Archived) -> (Deleted), per SPEC_FULL.md §4.1.
type State string

const (
	StateCreating State = "creating"
	StateStarted  State = "started"
	StateStopped  State = "stopped"
	StateArchived State = "archived"
	StateUnknown  State = "unknown"
	StateDeleted  State = "deleted"
)

// ProviderType names a C1 backend.
type ProviderType string

const (
	ProviderDaytonaLike ProviderType = "daytona-like"
	ProviderMicroVMLike ProviderType = "microvm-like"
	ProviderMulti       ProviderType = "multi"
	ProviderLocal       ProviderType = "local"
)

// ErrUnrecoverable marks a sandbox state that cannot be resumed; callers must
// delete and recreate per the resume algorithm in SPEC_FULL.md §4.1.
var ErrUnrecoverable = errors.New("sandbox: unrecoverable state")

// Handle identifies a sandbox instance and its last-known state.
type Handle struct {
	ID           string
	State        State
	ProviderType ProviderType
}

// CommandResult normalises process execution to {exitCode, stdout, stderr}
// at the adapter boundary, per the re-architecture note in SPEC_FULL.md §9
// ("Exception-as-control-flow in command execution"): only true transport
// failures are returned as error; a non-zero exit is data, not an error.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ExecuteParams configures a shell command execution.
type ExecuteParams struct {
	Command    string
	Workdir    string
	Env        map[string]string
	TimeoutSec int
}

// GitCloneParams configures the clone algorithm (SPEC_FULL.md §4.1).
type GitCloneParams struct {
	URL        string
	TargetDir  string
	Branch     string
	BaseBranch string
	Commit     string // optional
	Token      string
}

// Git is the git capability surface of a Sandbox.
type Git interface {
	Clone(ctx context.Context, p GitCloneParams) error
	Add(ctx context.Context, workdir string, paths []string) error
	Commit(ctx context.Context, workdir, message string) error
	Push(ctx context.Context, workdir, branch string) error
	Pull(ctx context.Context, workdir, branch string) error
	CreateBranch(ctx context.Context, workdir, branch string) error
	Status(ctx context.Context, workdir string) (string, error)
}

// Sandbox is the provider-agnostic capability surface used by every other
// component that needs to touch the working repository.
type Sandbox interface {
	ExecuteCommand(ctx context.Context, p ExecuteParams) (CommandResult, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
	Mkdir(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
	Git() Git
}

// Provider manages sandbox lifecycle: create, resume, delete, list.
type Provider interface {
	Create(ctx context.Context) (Handle, error)
	Get(ctx context.Context, id string) (Handle, error)
	// Start transitions a Stopped or Archived sandbox back to Started.
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Handle, error)
	// Open returns the capability surface bound to a live sandbox id.
	Open(ctx context.Context, id string) (Sandbox, error)
}

// Resume implements C1's resume algorithm: get + start if not already
// Started; unrecoverable states, and a failed Start, delete the stale
// sandbox and create a fresh one (SPEC_FULL.md §4.1 State machine, and
// Non-goals scenario #2: "start S1; if start fails, delete S1, create S2,
// re-clone, continue").
func Resume(ctx context.Context, p Provider, id string) (Handle, Sandbox, error) {
	h, err := p.Get(ctx, id)
	if err != nil || h.State == StateUnknown {
		return recreate(ctx, p, id)
	}
	switch h.State {
	case StateStarted:
		sb, err := p.Open(ctx, h.ID)
		if err != nil {
			return Handle{}, nil, err
		}
		return h, sb, nil
	case StateStopped, StateArchived:
		if err := p.Start(ctx, h.ID); err != nil {
			return recreate(ctx, p, id)
		}
		sb, err := p.Open(ctx, h.ID)
		if err != nil {
			return recreate(ctx, p, id)
		}
		h.State = StateStarted
		return h, sb, nil
	default:
		return recreate(ctx, p, id)
	}
}

func recreate(ctx context.Context, p Provider, staleID string) (Handle, Sandbox, error) {
	if staleID != "" {
		_ = p.Delete(ctx, staleID) // best-effort: avoid leaking orphans
	}
	h, err := p.Create(ctx)
	if err != nil {
		return Handle{}, nil, err
	}
	sb, err := p.Open(ctx, h.ID)
	if err != nil {
		return Handle{}, nil, err
	}
	return h, sb, nil
}

// IdleTTL is the default interval after which an idle sandbox is deleted by
// the caller's housekeeping loop (SPEC_FULL.md §3, Ownership & lifecycle).
const IdleTTL = 30 * time.Minute
