package durable

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/open-swe/agent-engine/internal/state"
)

// TestRunThreadWorkflow_DelegatesToActivity verifies RunThreadWorkflow
// executes exactly one RunThread activity call and returns its result,
// using go.temporal.io/sdk/testsuite's in-memory workflow environment so no
// Temporal server is required.
func TestRunThreadWorkflow_DelegatesToActivity(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	want := &state.Thread{ThreadID: "thread-1", CurrentPhase: state.PhaseDone}
	env.OnActivity(activityRef.RunThread, mock.Anything, "thread-1").Return(want, nil)

	env.ExecuteWorkflow(RunThreadWorkflow, "thread-1")

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var got *state.Thread
	require.NoError(t, env.GetWorkflowResult(&got))
	require.Equal(t, want.ThreadID, got.ThreadID)
	require.Equal(t, want.CurrentPhase, got.CurrentPhase)
}
