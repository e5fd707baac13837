package sandbox

import (
	"context"
	"fmt"
	"net/url"
)

// BranchChecker checks remote branch existence via the external GitHub
// collaborator (out of scope per SPEC_FULL.md §1; contracted by interface).
// A 404 is treated as "does not exist" with no log noise (SPEC_FULL.md §7).
type BranchChecker interface {
	BranchExists(ctx context.Context, owner, repo, branch string) (bool, error)
}

// Clone implements the C1 clone algorithm from SPEC_FULL.md §4.1:
//  1. if branch exists on the remote, shallow-clone it directly;
//  2. otherwise shallow-clone baseBranch, create the branch locally, push it upstream;
//  3. if commit is supplied, unshallow and checkout that commit;
//  4. always fetch a local reference to baseBranch so `git diff baseBranch` works later.
func Clone(ctx context.Context, sb Sandbox, checker BranchChecker, owner, repo string, p GitCloneParams) error {
	exists, err := checker.BranchExists(ctx, owner, repo, p.Branch)
	if err != nil {
		return fmt.Errorf("sandbox: checking branch existence: %w", err)
	}

	cloneParams := p
	if exists {
		cloneParams.Branch = p.Branch
	} else {
		cloneParams.Branch = p.BaseBranch
	}
	if err := sb.Git().Clone(ctx, cloneParams); err != nil {
		return fmt.Errorf("sandbox: clone: %w", err)
	}

	if !exists {
		if err := sb.Git().CreateBranch(ctx, p.TargetDir, p.Branch); err != nil {
			return fmt.Errorf("sandbox: create branch %q: %w", p.Branch, err)
		}
		if err := sb.Git().Push(ctx, p.TargetDir, p.Branch); err != nil {
			return fmt.Errorf("sandbox: push branch %q: %w", p.Branch, err)
		}
	}

	if p.Commit != "" {
		if err := unshallowAndCheckout(ctx, sb, p.TargetDir, p.Commit); err != nil {
			return fmt.Errorf("sandbox: checkout commit %q: %w", p.Commit, err)
		}
	}

	// Always fetch a local reference to baseBranch so later phases can diff
	// against it even when the working branch diverged from a fresh clone.
	if err := fetchRef(ctx, sb, p.TargetDir, p.BaseBranch); err != nil {
		return fmt.Errorf("sandbox: fetch baseBranch ref %q: %w", p.BaseBranch, err)
	}
	return nil
}

func unshallowAndCheckout(ctx context.Context, sb Sandbox, workdir, commit string) error {
	_, err := sb.ExecuteCommand(ctx, ExecuteParams{
		Command: fmt.Sprintf("git fetch --unshallow && git checkout %s", shellQuote(commit)),
		Workdir: workdir,
	})
	return err
}

func fetchRef(ctx context.Context, sb Sandbox, workdir, ref string) error {
	_, err := sb.ExecuteCommand(ctx, ExecuteParams{
		Command: fmt.Sprintf("git fetch origin %s:refs/remotes/origin/%s", shellQuote(ref), shellQuote(ref)),
		Workdir: workdir,
	})
	return err
}

func shellQuote(s string) string { return "'" + s + "'" }

// CredentialHelperURL builds a transient, in-memory credential helper URL
// with the token URL-encoded and never persisted to disk git config, for
// providers without a native git surface (SPEC_FULL.md §4.1).
func CredentialHelperURL(remoteURL, token string) (string, error) {
	u, err := url.Parse(remoteURL)
	if err != nil {
		return "", fmt.Errorf("sandbox: parsing remote url: %w", err)
	}
	u.User = url.UserPassword("x-access-token", token)
	return u.String(), nil
}
