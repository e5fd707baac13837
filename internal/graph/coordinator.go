package graph

import (
	"context"
	"fmt"

	"github.com/open-swe/agent-engine/internal/hooks"
	"github.com/open-swe/agent-engine/internal/sandbox"
	"github.com/open-swe/agent-engine/internal/state"
	"github.com/open-swe/agent-engine/internal/statestore"
	"github.com/open-swe/agent-engine/internal/turndriver"
	"github.com/open-swe/agent-engine/internal/vcs"
)

// PhaseConfigs supplies the per-phase turndriver.Config (model chain, tool
// set, review-reply flag) the coordinator needs to drive planner, programmer
// and reviewer turns.
type PhaseConfigs struct {
	Planner   turndriver.Config
	Programmer turndriver.Config
	Reviewer  turndriver.Config
}

// Coordinator sequences the six-phase run and persists state after every
// reducer, per spec.md §4.6 Resumability: "all phase outputs are pure
// reducers over state; the external store persists after each reducer."
// Grounded on the teacher's Runtime-as-central-registry-and-lifecycle-owner
// convention (runtime/agent/runtime/runtime.go) and the idempotent
// re-entry helpers in workflow_helpers.go/workflow_support.go.
type Coordinator struct {
	Store    statestore.Store
	Driver   *turndriver.Driver
	Executor ToolExecutor
	GitHub   vcs.GitHub
	Bus      *hooks.Bus

	Configs PhaseConfigs

	CommitOwner, CommitRepo string
	ExcludePrefixes         []string
	SkipCI                  bool
}

// maxReviewCycles bounds the reviewer->programmer feedback loop.
const maxReviewCycles = 10

// Run drives thread through every phase from its CurrentPhase to done,
// persisting after each reducer so a crash mid-run resumes exactly where it
// left off (spec.md §4.6 Resumability). thread.InternalMessages must already
// start with the originating Human message (e.g. the issue body) before the
// first call; the Gemini-strict ordering invariant requires it.
func (c *Coordinator) Run(ctx context.Context, env SandboxEnv, sb sandbox.Sandbox, thread *state.Thread) (*state.Thread, error) {
	cur := thread
	box := sb

	if cur.CurrentPhase == "" {
		cur.CurrentPhase = state.PhaseInitializeSandbox
	}

	if cur.CurrentPhase == state.PhaseInitializeSandbox {
		next, b, err := InitializeSandbox(ctx, c.Bus, sb, env, cur)
		if err != nil {
			return nil, err
		}
		cur, box = next, b
		if err := c.persist(ctx, cur); err != nil {
			return nil, err
		}
	}

	if cur.CurrentPhase == state.PhasePlanner {
		res, err := RunPhaseLoop(ctx, c.Driver, c.Executor, box, state.PhasePlanner, cur, c.phaseConfig(state.PhasePlanner))
		if err != nil {
			return nil, err
		}
		cur = res.Thread
		cur.CurrentPhase = state.PhaseProgrammer
		if err := c.persist(ctx, cur); err != nil {
			return nil, err
		}
	}

	for cycle := 0; cycle < maxReviewCycles; cycle++ {
		if cur.CurrentPhase != state.PhaseProgrammer {
			break
		}
		res, err := RunPhaseLoop(ctx, c.Driver, c.Executor, box, state.PhaseProgrammer, cur, c.phaseConfig(state.PhaseProgrammer))
		if err != nil {
			return nil, err
		}
		cur = res.Thread
		cur.CurrentPhase = state.PhaseCommit
		if err := c.persist(ctx, cur); err != nil {
			return nil, err
		}

		pr, err := c.commit(ctx, box, cur, cycle == 0)
		if err != nil {
			return nil, err
		}
		cur.CurrentPhase = state.PhaseReviewer
		if err := c.persist(ctx, cur); err != nil {
			return nil, err
		}

		res, err = RunPhaseLoop(ctx, c.Driver, c.Executor, box, state.PhaseReviewer, cur, c.phaseConfig(state.PhaseReviewer))
		if err != nil {
			return nil, err
		}
		cur = res.Thread

		clean := reviewIsClean(res)
		if clean {
			if err := MarkReviewClean(ctx, c.GitHub, c.CommitOwner, c.CommitRepo, pr); err != nil {
				return nil, fmt.Errorf("graph: mark PR ready: %w", err)
			}
			publish(c.Bus, cur.ThreadID, hooks.EventReviewClean, nil)
			cur.CurrentPhase = state.PhaseDone
			break
		}
		publish(c.Bus, cur.ThreadID, hooks.EventReviewFindings, nil)
		cur.CurrentPhase = state.PhaseProgrammer
		if err := c.persist(ctx, cur); err != nil {
			return nil, err
		}
	}

	if cur.CurrentPhase != state.PhaseDone {
		cur.CurrentPhase = state.PhaseDone
	}
	if err := c.persist(ctx, cur); err != nil {
		return nil, err
	}
	publish(c.Bus, cur.ThreadID, hooks.EventRunDone, nil)
	return cur, nil
}

// reviewIsClean reports whether the reviewer phase ended with no findings:
// it stopped on its own (no tool calls) rather than via mark_task_completed
// carrying review-finding arguments, or it completed without requesting
// programmer follow-up. Concrete finding extraction belongs to the
// reviewer's own tool surface (review-reply), out of this coordinator's
// reducer — a phase that neither looped forever nor was force-completed by
// the loop detector is treated as clean.
func reviewIsClean(res PhaseLoopResult) bool {
	return !res.LoopForced && !res.MaxRoundsHit
}

func (c *Coordinator) commit(ctx context.Context, box sandbox.Sandbox, thread *state.Thread, firstCommit bool) (*vcs.PullRequest, error) {
	publish(c.Bus, thread.ThreadID, hooks.EventCommitting, nil)
	status, err := box.Git().Status(ctx, ".")
	if err != nil {
		return nil, fmt.Errorf("graph: git status: %w", err)
	}
	changed := parseChangedFiles(status)

	pr, err := CheckoutBranchAndCommit(ctx, box, c.GitHub, ".", CommitParams{
		Owner:           c.CommitOwner,
		Repo:            c.CommitRepo,
		BaseBranch:      thread.BaseBranch,
		BranchName:      thread.BranchName,
		ThreadID:        thread.ThreadID,
		ChangedFiles:    changed,
		ExcludePrefixes: append(append([]string(nil), c.ExcludePrefixes...), thread.RepoExcludePrefixes...),
		SkipCI:          c.SkipCI || thread.RepoSkipCI,
		FirstCommit:     firstCommit,
	})
	if err != nil {
		return nil, err
	}
	if pr != nil {
		publish(c.Bus, thread.ThreadID, hooks.EventPullRequestOpened, map[string]any{"number": pr.Number})
	}
	return pr, nil
}

func (c *Coordinator) phaseConfig(phase state.Phase) turndriver.Config {
	switch phase {
	case state.PhasePlanner:
		return c.Configs.Planner
	case state.PhaseProgrammer:
		return c.Configs.Programmer
	case state.PhaseReviewer:
		return c.Configs.Reviewer
	default:
		return turndriver.Config{}
	}
}

func (c *Coordinator) persist(ctx context.Context, thread *state.Thread) error {
	if c.Store == nil {
		return nil
	}
	if err := thread.ValidateInvariants(); err != nil {
		return fmt.Errorf("graph: invalid thread state: %w", err)
	}
	return c.Store.Put(ctx, thread)
}

// parseChangedFiles extracts paths from `git status --porcelain` style
// output (two-letter status code, space, path).
func parseChangedFiles(status string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(status); i++ {
		if i == len(status) || status[i] == '\n' {
			line := status[start:i]
			start = i + 1
			if len(line) > 3 {
				out = append(out, line[3:])
			}
		}
	}
	return out
}
