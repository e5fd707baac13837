// Package vcs defines the GitHub operation surface C6 depends on for
// branch/commit/PR bookkeeping, per SPEC_FULL.md §6. Grounded on the
// teacher's registry.go/provider.go convention of a narrow interface plus
// a context-bound real implementation, generalized here from A2A transport
// to the GitHub REST API.
package vcs

import "context"

// PullRequest is the subset of a GitHub PR the engine tracks.
type PullRequest struct {
	Number int
	State  string
	Draft  bool
	Head   string
	Base   string
	URL    string
}

// GitHub is the operation surface the graph coordinator's commit phase
// depends on. A production implementation wraps the GitHub REST/GraphQL
// API with installation-token minting and the 401-refresh-then-retry
// policy from SPEC_FULL.md §7; tests substitute an in-memory fake.
type GitHub interface {
	// BranchExists probes whether branch exists on the remote. A 404 is
	// treated as "does not exist", not an error.
	BranchExists(ctx context.Context, owner, repo, branch string) (bool, error)

	// FindOpenPullRequest looks up an existing open PR by head branch, for
	// idempotent re-entry into the commit phase.
	FindOpenPullRequest(ctx context.Context, owner, repo, head string) (*PullRequest, error)

	// CreateDraftPullRequest opens a new draft PR from head into base,
	// linked to the originating issue via body text.
	CreateDraftPullRequest(ctx context.Context, owner, repo, head, base, title, body string) (*PullRequest, error)

	// MarkReady converts a draft PR to ready-for-review.
	MarkReady(ctx context.Context, owner, repo string, number int) error

	// UpsertIssueComment writes or updates the plan comment on an issue,
	// replacing the content between the `<open-swe-plan-message>` markers.
	UpsertIssueComment(ctx context.Context, owner, repo string, issueNumber int, body string) error
}
