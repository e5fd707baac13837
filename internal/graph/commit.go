package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-swe/agent-engine/internal/sandbox"
	"github.com/open-swe/agent-engine/internal/vcs"
)

// BranchName derives the feature branch name for a run, per SPEC_FULL.md
// §6 Branch naming.
func BranchName(threadID string) string {
	return "open-swe/" + threadID
}

// CommitMessage renders the base "Apply patch" message, appending the
// "[skip ci]" suffix when skipCI is set (SPEC_FULL.md §6).
func CommitMessage(skipCI bool) string {
	if skipCI {
		return "Apply patch [skip ci]"
	}
	return "Apply patch"
}

// CommitParams configures CheckoutBranchAndCommit.
type CommitParams struct {
	Owner, Repo       string
	BaseBranch        string
	BranchName        string
	ThreadID          string
	IssueNumber       int
	ChangedFiles      []string
	ExcludePrefixes   []string
	SkipCI            bool
	FirstCommit       bool
	BotName, BotEmail string
	IssueBody         string
}

// FilterExcluded drops any path that starts with one of prefixes.
func FilterExcluded(files []string, prefixes []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		excluded := false
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(f, p) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, f)
		}
	}
	return out
}

// CheckoutBranchAndCommit implements the post-programmer commit flow from
// SPEC_FULL.md §4.6: validate branchName != baseBranch, filter the
// exclusion list, commit as the bot identity, push with one
// retry-after-pull on rejection, and on the first commit open a draft PR —
// tolerating "branch already exists" and "pull request already exists" for
// idempotent re-entry.
func CheckoutBranchAndCommit(ctx context.Context, sb sandbox.Sandbox, gh vcs.GitHub, workdir string, p CommitParams) (*vcs.PullRequest, error) {
	branch := p.BranchName
	if branch == "" || branch == p.BaseBranch {
		branch = BranchName(p.ThreadID)
	}
	if branch == p.BaseBranch {
		return nil, fmt.Errorf("graph: branchName must not equal baseBranch %q", p.BaseBranch)
	}

	git := sb.Git()
	if err := git.CreateBranch(ctx, workdir, branch); err != nil && !isAlreadyExists(err) {
		return nil, fmt.Errorf("graph: create branch: %w", err)
	}

	files := FilterExcluded(p.ChangedFiles, p.ExcludePrefixes)
	if len(files) > 0 {
		if err := git.Add(ctx, workdir, files); err != nil {
			return nil, fmt.Errorf("graph: git add: %w", err)
		}
	}

	msg := CommitMessage(p.SkipCI)
	if err := git.Commit(ctx, workdir, msg); err != nil {
		return nil, fmt.Errorf("graph: git commit: %w", err)
	}

	if err := pushWithRetry(ctx, git, workdir, branch); err != nil {
		return nil, fmt.Errorf("graph: push: %w", err)
	}

	if !p.FirstCommit || gh == nil {
		return nil, nil
	}

	existing, err := gh.FindOpenPullRequest(ctx, p.Owner, p.Repo, branch)
	if err == nil && existing != nil {
		return existing, nil
	}
	title := fmt.Sprintf("open-swe: %s", p.ThreadID)
	pr, err := gh.CreateDraftPullRequest(ctx, p.Owner, p.Repo, branch, p.BaseBranch, title, p.IssueBody)
	if err != nil {
		if isAlreadyExists(err) {
			return gh.FindOpenPullRequest(ctx, p.Owner, p.Repo, branch)
		}
		return nil, fmt.Errorf("graph: create pull request: %w", err)
	}
	return pr, nil
}

// pushWithRetry pushes branch, and on rejection pulls once then retries the
// push exactly once more (SPEC_FULL.md §4.6).
func pushWithRetry(ctx context.Context, git sandbox.Git, workdir, branch string) error {
	err := git.Push(ctx, workdir, branch)
	if err == nil {
		return nil
	}
	if !isRejected(err) {
		return err
	}
	if pullErr := git.Pull(ctx, workdir, branch); pullErr != nil {
		return fmt.Errorf("pull after rejected push: %w", pullErr)
	}
	return git.Push(ctx, workdir, branch)
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func isRejected(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "rejected")
}

// MarkReviewClean converts the PR opened for threadID to ready-for-review.
func MarkReviewClean(ctx context.Context, gh vcs.GitHub, owner, repo string, pr *vcs.PullRequest) error {
	if pr == nil || gh == nil {
		return nil
	}
	return gh.MarkReady(ctx, owner, repo, pr.Number)
}

// PlanCommentBody wraps planText in the literal markers the engine
// overwrites on each update (SPEC_FULL.md §6 Outputs).
func PlanCommentBody(planText string) string {
	return "<open-swe-plan-message>\n" + planText + "\n</open-swe-plan-message>"
}
