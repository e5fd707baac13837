// Package durable is the optional Temporal adapter for C6: a thin workflow
// wrapping Coordinator.Run, for deployments that want Temporal's worker
// fleet and event history instead of running cmd/agent-engine's in-process
// loop directly. Grounded on runtime/agent/engine/temporal/engine.go's
// activity-registration convention; that file's interceptor wiring and
// worker-lifecycle management (OTEL auto-instrumentation, lazy client
// construction, multi-queue worker pooling) are not reproduced here since
// nothing in this engine starts a Temporal worker by default (see
// DESIGN.md's Durable execution section) — this package exists so the
// extension point is a real, compilable workflow definition rather than a
// bare go.mod entry.
package durable

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/open-swe/agent-engine/internal/graph"
	"github.com/open-swe/agent-engine/internal/sandbox"
	"github.com/open-swe/agent-engine/internal/state"
)

// TaskQueue is the default queue a worker registered via Register should
// listen on.
const TaskQueue = "agent-engine"

// Activities bundles the dependencies RunThread needs to resume a
// Coordinator run from a persisted thread ID.
type Activities struct {
	Coordinator *graph.Coordinator
	Env         graph.SandboxEnv
	Provider    sandbox.Provider
}

// RunThread is the Temporal activity boundary: only the thread ID crosses
// it, since a sandbox.Sandbox session holds a live connection and is not
// serializable. It reloads the thread and sandbox session from threadID and
// resumes Coordinator.Run exactly where persistence last left off.
func (a *Activities) RunThread(ctx context.Context, threadID string) (*state.Thread, error) {
	thread, err := a.Coordinator.Store.Get(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("durable: load thread %s: %w", threadID, err)
	}
	_, box, err := sandbox.Resume(ctx, a.Provider, thread.SandboxSessionID)
	if err != nil {
		return nil, fmt.Errorf("durable: resume sandbox: %w", err)
	}
	return a.Coordinator.Run(ctx, a.Env, box, thread)
}

// activityRef is a zero-value Activities used only so workflow code has a
// concrete method value to pass to ExecuteActivity for type and name
// resolution; the body never runs in workflow context, only in a worker
// process that registered a real *Activities via Register.
var activityRef Activities

// RunThreadWorkflow is the workflow entrypoint: one activity call per run.
// Mid-run resumability comes from Coordinator.Run's own per-reducer
// persistence (SPEC_FULL.md §4.6), not from Temporal's activity retry or
// event history, so this workflow does not itself need heartbeats or a
// multi-activity decomposition of the phase sequence.
func RunThreadWorkflow(ctx workflow.Context, threadID string) (*state.Thread, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 24 * time.Hour,
	})
	var result *state.Thread
	err := workflow.ExecuteActivity(ctx, activityRef.RunThread, threadID).Get(ctx, &result)
	return result, err
}

// Register wires RunThreadWorkflow and acts.RunThread onto w.
func Register(w worker.Worker, acts *Activities) {
	w.RegisterWorkflow(RunThreadWorkflow)
	w.RegisterActivity(acts.RunThread)
}
