// Package state defines the thread/run state owned by the graph coordinator
// (C6), per SPEC_FULL.md §3. It is a pure data type: all mutation happens
// through graph reducer return values, never in place, grounded on the
// teacher's run.Context/run.Snapshot split of identity vs. mutable state.
package state

import (
	"fmt"

	"github.com/open-swe/agent-engine/internal/message"
	"github.com/open-swe/agent-engine/internal/plan"
)

// SandboxProviderType names the C1 backend a thread's sandbox is bound to.
type SandboxProviderType string

const (
	ProviderDaytonaLike SandboxProviderType = "daytona-like"
	ProviderMicroVMLike SandboxProviderType = "microvm-like"
	ProviderMulti       SandboxProviderType = "multi"
	ProviderLocal       SandboxProviderType = "local"
)

// Phase names one of the graph's phases.
type Phase string

const (
	PhaseInitializeSandbox Phase = "initializeSandbox"
	PhasePlanner           Phase = "planner"
	PhaseProgrammer        Phase = "programmer"
	PhaseReviewer          Phase = "reviewer"
	PhaseCommit            Phase = "checkoutBranchAndCommit"
	PhaseDone              Phase = "done"
)

// Thread is the full persisted record for one run, keyed by ThreadID.
type Thread struct {
	// Immutable identifiers: never reassigned after creation.
	ThreadID string `json:"threadId" bson:"_id"`
	RunID    string `json:"runId" bson:"runId"`

	Owner      string `json:"owner" bson:"owner"`
	Repo       string `json:"repo" bson:"repo"`
	BaseBranch string `json:"baseBranch" bson:"baseBranch"`
	BaseCommit string `json:"baseCommit,omitempty" bson:"baseCommit,omitempty"`

	BranchName string `json:"branchName" bson:"branchName"`

	SandboxSessionID    string              `json:"sandboxSessionId,omitempty" bson:"sandboxSessionId,omitempty"`
	SandboxProviderType SandboxProviderType `json:"sandboxProviderType,omitempty" bson:"sandboxProviderType,omitempty"`

	CodebaseTree          string `json:"codebaseTree,omitempty" bson:"codebaseTree,omitempty"`
	DependenciesInstalled bool   `json:"dependenciesInstalled" bson:"dependenciesInstalled"`
	CustomRules           string `json:"customRules,omitempty" bson:"customRules,omitempty"`

	// RepoExcludePrefixes and RepoSkipCI come from an optional
	// .openswe/config.yaml committed to the target repo itself, layered on
	// top of the operator-wide defaults at commit time.
	RepoExcludePrefixes []string `json:"repoExcludePrefixes,omitempty" bson:"repoExcludePrefixes,omitempty"`
	RepoSkipCI          bool     `json:"repoSkipCi,omitempty" bson:"repoSkipCi,omitempty"`

	TaskPlan *plan.TaskPlan `json:"taskPlan,omitempty" bson:"taskPlan,omitempty"`

	// Messages is the external-facing log (issue comments, UI progress).
	Messages []message.Message `json:"messages" bson:"messages"`
	// InternalMessages is the model-input log.
	InternalMessages []message.Message `json:"internalMessages" bson:"internalMessages"`

	CurrentPhase Phase `json:"currentPhase" bson:"currentPhase"`
}

// ValidateInvariants checks the invariants named in SPEC_FULL.md §3.
func (t *Thread) ValidateInvariants() error {
	if t.ThreadID == "" {
		return fmt.Errorf("state: threadId is required")
	}
	if err := message.ValidateSequence(t.InternalMessages); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	return nil
}

// RequireDistinctBranches enforces that branchName is never equal to
// baseBranch, checked at commit time per the invariant and the fatal
// precondition in SPEC_FULL.md §7.
func (t *Thread) RequireDistinctBranches() error {
	if t.BranchName != "" && t.BranchName == t.BaseBranch {
		return fmt.Errorf("state: branchName must not equal baseBranch %q", t.BaseBranch)
	}
	return nil
}

// Clone returns a deep-enough copy for reducers to mutate safely before
// returning a new Thread value; graph phases never mutate the input Thread.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	c := *t
	c.Messages = append([]message.Message(nil), t.Messages...)
	c.InternalMessages = append([]message.Message(nil), t.InternalMessages...)
	c.RepoExcludePrefixes = append([]string(nil), t.RepoExcludePrefixes...)
	return &c
}
