package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/open-swe/agent-engine/internal/config"
	"github.com/open-swe/agent-engine/internal/fallback"
	"github.com/open-swe/agent-engine/internal/graph"
	"github.com/open-swe/agent-engine/internal/hooks"
	"github.com/open-swe/agent-engine/internal/llmgateway"
	"github.com/open-swe/agent-engine/internal/message"
	"github.com/open-swe/agent-engine/internal/sandbox"
	"github.com/open-swe/agent-engine/internal/state"
	"github.com/open-swe/agent-engine/internal/statestore/inmem"
	"github.com/open-swe/agent-engine/internal/telemetry"
	"github.com/open-swe/agent-engine/internal/turndriver"
)

// envKeySource resolves API keys from the process environment, ignoring
// the per-principal decrypted-key path (out of scope per spec.md's
// Out-of-scope list; see DESIGN.md).
type envKeySource struct{}

func (envKeySource) ResolveKey(_ context.Context, provider llmgateway.Provider, _ string) (string, error) {
	var key string
	switch provider {
	case llmgateway.ProviderAnthropic:
		key = os.Getenv("ANTHROPIC_API_KEY")
	case llmgateway.ProviderOpenAI:
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return "", llmgateway.ErrNoAPIKey
	}
	return key, nil
}

func runCmd() *cobra.Command {
	var owner, repo, baseBranch, issueBody string
	var issueNumber int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new run against an issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := telemetry.NewZap()
			if err != nil {
				return fmt.Errorf("agent-engine: logger: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("agent-engine: config: %w", err)
			}

			threadID := uuid.NewString()
			thread := &state.Thread{
				ThreadID:         threadID,
				RunID:            uuid.NewString(),
				Owner:            owner,
				Repo:             repo,
				BaseBranch:       baseBranch,
				BranchName:       graph.BranchName(threadID),
				CurrentPhase:     state.PhaseInitializeSandbox,
				InternalMessages: []message.Message{message.Human(issueBody)},
				Messages:         []message.Message{message.Human(issueBody)},
			}

			coord, env, sb, err := buildCoordinator(cfg, owner, repo)
			if err != nil {
				return err
			}

			log.Info("starting run", "thread", threadID, "owner", owner, "repo", repo)
			out, err := coord.Run(cmd.Context(), env, sb, thread)
			if err != nil {
				return fmt.Errorf("agent-engine: run: %w", err)
			}
			fmt.Printf("thread %s finished phase %s\n", out.ThreadID, out.CurrentPhase)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "repository owner")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name")
	cmd.Flags().StringVar(&baseBranch, "base", "main", "base branch")
	cmd.Flags().StringVar(&issueBody, "issue", "", "originating issue body")
	cmd.Flags().IntVar(&issueNumber, "issue-number", 0, "originating issue number")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("issue")

	return cmd
}

func resumeCmd() *cobra.Command {
	var threadID, owner, repo string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a previously persisted thread by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("agent-engine: config: %w", err)
			}
			coord, env, sb, err := buildCoordinator(cfg, owner, repo)
			if err != nil {
				return err
			}
			thread, err := coord.Store.Get(cmd.Context(), threadID)
			if err != nil {
				return fmt.Errorf("agent-engine: load thread %s: %w", threadID, err)
			}
			out, err := coord.Run(cmd.Context(), env, sb, thread)
			if err != nil {
				return fmt.Errorf("agent-engine: resume: %w", err)
			}
			fmt.Printf("thread %s finished phase %s\n", out.ThreadID, out.CurrentPhase)
			return nil
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "thread id to resume")
	cmd.Flags().StringVar(&owner, "owner", "", "repository owner")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name")
	_ = cmd.MarkFlagRequired("thread")

	return cmd
}

// buildCoordinator wires C1-C6 together for a single local-mode run. A
// production deployment swaps inmem.Store for the Mongo-backed store and
// the local sandbox registry for a remote/multi one (SPEC_FULL.md §3, §4.1).
func buildCoordinator(cfg *config.Config, owner, repo string) (*graph.Coordinator, graph.SandboxEnv, sandbox.Sandbox, error) {
	registry, err := sandbox.NewRegistry(cfg, sandbox.ProviderEndpoints{}, "./.agent-engine-sandboxes")
	if err != nil {
		return nil, graph.SandboxEnv{}, nil, fmt.Errorf("agent-engine: sandbox registry: %w", err)
	}

	var sb sandbox.Sandbox
	if cfg.SandboxProvider == config.SandboxProviderLocal {
		h, err := registry.Provider.Create(context.Background())
		if err != nil {
			return nil, graph.SandboxEnv{}, nil, fmt.Errorf("agent-engine: create local sandbox: %w", err)
		}
		sb, err = registry.Provider.Open(context.Background(), h.ID)
		if err != nil {
			return nil, graph.SandboxEnv{}, nil, fmt.Errorf("agent-engine: open local sandbox: %w", err)
		}
	}

	gw := llmgateway.NewGateway(envKeySource{}, nil, llmgateway.RunConfig{ModelOverrides: taskOverrides(cfg)}, 8192)
	bus := hooks.New()
	driver := turndriver.NewDriver(gw, fallback.NewRuntime(), bus)

	env := graph.SandboxEnv{Provider: registry.Provider, LocalMode: cfg.SandboxProvider == config.SandboxProviderLocal}

	chain := []turndriver.ModelSpec{{Provider: llmgateway.ProviderAnthropic, Family: turndriver.FamilyAnthropic, PrincipalID: "operator"}}
	configs := graph.PhaseConfigs{
		Planner:    turndriver.Config{Task: llmgateway.TaskPlanner, Chain: chain, Sections: turndriver.SystemSections{Static: plannerPrompt}, MaxTokens: 8192},
		Programmer: turndriver.Config{Task: llmgateway.TaskProgrammer, Chain: chain, Sections: turndriver.SystemSections{Static: programmerPrompt}, MaxTokens: 8192},
		Reviewer:   turndriver.Config{Task: llmgateway.TaskReviewer, Chain: chain, Sections: turndriver.SystemSections{Static: reviewerPrompt}, ReviewReply: true, MaxTokens: 8192},
	}

	coord := &graph.Coordinator{
		Store:           inmem.New(),
		Driver:          driver,
		Executor:        noopExecutor{},
		GitHub:          nil,
		Bus:             bus,
		Configs:         configs,
		CommitOwner:     owner,
		CommitRepo:      repo,
		ExcludePrefixes: []string{".skills/"},
	}

	return coord, env, sb, nil
}

func taskOverrides(cfg *config.Config) map[llmgateway.LLMTask]string {
	out := map[llmgateway.LLMTask]string{}
	for k, v := range cfg.ModelOverrides {
		out[llmgateway.LLMTask(k)] = v
	}
	return out
}

// noopExecutor is a placeholder ToolExecutor: a production build wires the
// actual tool implementations (shell, file edit, grep, ...) behind this
// interface. Out of scope for this CLI skeleton (see DESIGN.md).
type noopExecutor struct{}

func (noopExecutor) ExecuteRound(_ context.Context, _ sandbox.Sandbox, calls []message.ToolCall) []message.Message {
	out := make([]message.Message, 0, len(calls))
	for _, c := range calls {
		out = append(out, message.ToolResult(c.ID, "not implemented", true))
	}
	return out
}

const plannerPrompt = "You are the planning phase of an autonomous software engineering agent. Produce or revise a TaskPlan."
const programmerPrompt = "You are the programming phase of an autonomous software engineering agent. Implement the active plan item using the available tools."
const reviewerPrompt = "You are the review phase of an autonomous software engineering agent. Review the diff against the plan and report findings."
