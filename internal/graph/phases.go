package graph

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/open-swe/agent-engine/internal/hooks"
	"github.com/open-swe/agent-engine/internal/message"
	"github.com/open-swe/agent-engine/internal/sandbox"
	"github.com/open-swe/agent-engine/internal/state"
	"github.com/open-swe/agent-engine/internal/turndriver"
)

// skillsCloneRetryDelay is the fixed pause before the single retry of the
// skills-repo auxiliary clone, per spec.md §4.6 Open Questions: "current
// code retries once after 1s and otherwise proceeds without it".
const skillsCloneRetryDelay = time.Second

// SandboxEnv bundles the provider and clone parameters initializeSandbox
// needs; ThreadID/Owner/Repo/BaseBranch come from the thread itself.
type SandboxEnv struct {
	Provider      sandbox.Provider
	RepoURL       string
	SkillsRepoURL string // optional
	Token         string
	LocalMode     bool
}

// InitializeSandbox implements the initializeSandbox phase (spec.md §4.6):
// fast-path resume on a validated sandboxSessionId, skip cloning in local
// mode, else acquire + clone + (best-effort) skills clone + codebase tree +
// custom rules, then append a hidden (internal-only) AI progress message.
func InitializeSandbox(ctx context.Context, bus *hooks.Bus, sb sandbox.Sandbox, env SandboxEnv, thread *state.Thread) (*state.Thread, sandbox.Sandbox, error) {
	out := thread.Clone()
	publish(bus, out.ThreadID, hooks.EventInitializingSandbox, nil)

	var handle sandbox.Handle
	var box sandbox.Sandbox
	var err error

	switch {
	case out.SandboxSessionID != "":
		handle, box, err = sandbox.Resume(ctx, env.Provider, out.SandboxSessionID)
		if err != nil {
			return nil, nil, fmt.Errorf("graph: resume sandbox: %w", err)
		}
	case env.LocalMode:
		handle = sandbox.Handle{ID: out.ThreadID, State: sandbox.StateStarted, ProviderType: sandbox.ProviderLocal}
		box = sb
	default:
		handle, box, err = sandbox.Resume(ctx, env.Provider, "")
		if err != nil {
			return nil, nil, fmt.Errorf("graph: create sandbox: %w", err)
		}
		publish(bus, out.ThreadID, hooks.EventCloningRepo, map[string]any{"url": env.RepoURL})
		if err := box.Git().Clone(ctx, sandbox.GitCloneParams{
			URL:        env.RepoURL,
			TargetDir:  ".",
			Branch:     out.BranchName,
			BaseBranch: out.BaseBranch,
			Commit:     out.BaseCommit,
			Token:      env.Token,
		}); err != nil {
			return nil, nil, fmt.Errorf("graph: clone repo: %w", err)
		}
	}

	out.SandboxSessionID = handle.ID
	out.SandboxProviderType = state.SandboxProviderType(handle.ProviderType)

	// The skills clone and the main codebase listing touch disjoint parts
	// of the sandbox (.skills/ vs everything else), so they run
	// concurrently via errgroup (grounded on
	// hugo-lorenzo-mato-quorum-ai's internal/service/workflow.go) instead
	// of the sequential clone-then-list the teacher's own init path uses.
	var skillsOK bool
	var files []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		skillsOK = ensureSkillsRepo(gctx, box, env.SkillsRepoURL, env.Token)
		return nil
	})
	g.Go(func() error {
		var listErr error
		files, listErr = listCodebaseFiles(gctx, box, false)
		return listErr
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("graph: list codebase files: %w", err)
	}
	if skillsOK {
		skillsFiles, err := listSkillsFiles(ctx, box)
		if err == nil {
			files = append(files, skillsFiles...)
		}
	}
	out.CodebaseTree = EncodeFiles(files)

	rules, _ := box.ReadFile(ctx, ".openswe/rules.md")
	out.CustomRules = string(rules)

	repoCfg := loadRepoConfig(ctx, box)
	out.RepoExcludePrefixes = repoCfg.ExcludePrefixes
	out.RepoSkipCI = repoCfg.SkipCI

	hidden := message.AI(fmt.Sprintf("sandbox %s ready; %d files indexed", handle.ID, len(files)))
	out.InternalMessages = append(out.InternalMessages, hidden)

	out.CurrentPhase = state.PhasePlanner
	publish(bus, out.ThreadID, hooks.EventSandboxReady, map[string]any{"sandboxSessionId": handle.ID})
	return out, box, nil
}

// ensureSkillsRepo clones the auxiliary skills repository into .skills/,
// retrying once after skillsCloneRetryDelay and otherwise proceeding
// without it (spec.md §4.6 Open Questions). Returns whether it succeeded.
func ensureSkillsRepo(ctx context.Context, box sandbox.Sandbox, url, token string) bool {
	if url == "" {
		return false
	}
	clone := func() error {
		return box.Git().Clone(ctx, sandbox.GitCloneParams{URL: url, TargetDir: ".skills", Token: token})
	}
	if err := clone(); err == nil {
		return true
	}
	select {
	case <-time.After(skillsCloneRetryDelay):
	case <-ctx.Done():
		return false
	}
	return clone() == nil
}

// listCodebaseFiles assembles the tracked-file listing used by the tree
// encoder: git-tracked files, falling back to a non-git directory walk
// (spec.md §4.6 Codebase tree format). The .skills/ listing is a separate
// call (listSkillsFiles) so the two can run concurrently with the skills
// clone itself.
func listCodebaseFiles(ctx context.Context, box sandbox.Sandbox, includeSkills bool) ([]string, error) {
	res, err := box.ExecuteCommand(ctx, sandbox.ExecuteParams{Command: "git ls-files"})
	var files []string
	if err == nil && res.ExitCode == 0 {
		files = splitNonEmptyLines(res.Stdout)
	} else {
		res, err = box.ExecuteCommand(ctx, sandbox.ExecuteParams{Command: "find . -type f"})
		if err != nil {
			return nil, err
		}
		files = splitNonEmptyLines(res.Stdout)
	}
	if includeSkills {
		skillsFiles, err := listSkillsFiles(ctx, box)
		if err == nil {
			files = append(files, skillsFiles...)
		}
	}
	return files, nil
}

// listSkillsFiles lists .skills/ separately from listCodebaseFiles so it can
// run once the skills clone has actually landed, independent of the main
// listing's own timing.
func listSkillsFiles(ctx context.Context, box sandbox.Sandbox) ([]string, error) {
	res, err := box.ExecuteCommand(ctx, sandbox.ExecuteParams{Command: "find .skills -type f"})
	if err != nil || res.ExitCode != 0 {
		return nil, fmt.Errorf("graph: list skills files")
	}
	return splitNonEmptyLines(res.Stdout), nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			line := s[start:i]
			if line != "" && line != "\r" {
				if len(line) > 0 && line[len(line)-1] == '\r' {
					line = line[:len(line)-1]
				}
				out = append(out, line)
			}
			start = i + 1
		}
	}
	return out
}

// PhaseLoopResult is what a planner/programmer/reviewer loop returns.
type PhaseLoopResult struct {
	Thread         *state.Thread
	Completed      bool // mark_task_completed was issued
	LoopForced     bool // loop detector forced completion or escalated
	MaxRoundsHit   bool
}

// ToolExecutor executes every tool call of one AI round and returns the
// matching ToolResult messages, one per call, in call order.
type ToolExecutor interface {
	ExecuteRound(ctx context.Context, box sandbox.Sandbox, calls []message.ToolCall) []message.Message
}

// maxPhaseRounds bounds a phase loop even when neither mark_task_completed
// nor the loop detector intervenes, as a last-resort backstop.
const maxPhaseRounds = 200

// RunPhaseLoop drives one of planner/programmer/reviewer: repeated C5 turns
// with a tool-execution node in between, until the AI message has no tool
// calls, mark_task_completed is called, or loop-detection forces completion
// (spec.md §4.6 Phases and transitions).
func RunPhaseLoop(ctx context.Context, driver *turndriver.Driver, exec ToolExecutor, box sandbox.Sandbox, phase state.Phase, thread *state.Thread, cfg turndriver.Config) (PhaseLoopResult, error) {
	publish(driver.Bus, thread.ThreadID, hooks.EventPhaseStart, map[string]any{"phase": string(phase)})
	cur := thread
	for round := 0; round < maxPhaseRounds; round++ {
		next, err := driver.Run(ctx, cur, cfg)
		if err != nil {
			return PhaseLoopResult{Thread: cur}, fmt.Errorf("graph: phase %s turn: %w", phase, err)
		}
		cur = next

		last := cur.InternalMessages[len(cur.InternalMessages)-1]
		if !last.HasToolCalls() {
			publish(driver.Bus, cur.ThreadID, hooks.EventPhaseEnd, map[string]any{"phase": string(phase)})
			return PhaseLoopResult{Thread: cur}, nil
		}

		if isEscalationRound(last) {
			publish(driver.Bus, cur.ThreadID, hooks.EventPhaseEnd, map[string]any{"phase": string(phase)})
			return PhaseLoopResult{Thread: cur, LoopForced: true}, nil
		}
		if calledMarkTaskCompleted(last) {
			publish(driver.Bus, cur.ThreadID, hooks.EventPhaseEnd, map[string]any{"phase": string(phase)})
			return PhaseLoopResult{Thread: cur, Completed: true}, nil
		}

		results := exec.ExecuteRound(ctx, box, last.ToolCalls)
		cur = cur.Clone()
		cur.InternalMessages = append(cur.InternalMessages, results...)
		cur.Messages = append(cur.Messages, results...)
	}
	return PhaseLoopResult{Thread: cur, MaxRoundsHit: true}, nil
}

func calledMarkTaskCompleted(m message.Message) bool {
	for _, tc := range m.ToolCalls {
		if tc.Name == "mark_task_completed" {
			return true
		}
	}
	return false
}

func isEscalationRound(m message.Message) bool {
	for _, tc := range m.ToolCalls {
		if tc.ID == "loop-escalation" {
			return true
		}
	}
	return false
}

func publish(bus *hooks.Bus, threadID string, t hooks.EventType, fields map[string]any) {
	if bus == nil {
		return
	}
	bus.Publish(hooks.Event{Type: t, Timestamp: time.Now().UnixMilli(), ThreadID: threadID, Fields: fields})
}
