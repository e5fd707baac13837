package loopdetect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-swe/agent-engine/internal/message"
)

func grepRound(n int) []message.Message {
	return []message.Message{
		message.Human("go"),
		message.AI("", message.ToolCall{ID: "c", Name: "grep", Args: map[string]any{"path": "a.go", "query": "foo"}}),
		message.ToolResult("c", "no matches", false),
	}
}

// shellRound is a round that is neither read-only nor a write and names no
// target file, so only the generic repeated-round rule can classify it.
func shellRound() []message.Message {
	return []message.Message{
		message.Human("go"),
		message.AI("", message.ToolCall{ID: "c", Name: "shell", Args: map[string]any{"command": "make"}}),
		message.ToolResult("c", "ok", false),
	}
}

func repeat(msgs []message.Message, n int) []message.Message {
	var out []message.Message
	out = append(out, message.Human("go"))
	for i := 0; i < n; i++ {
		out = append(out, msgs[1], msgs[2])
	}
	return out
}

func TestDetect_NoLoopOnShortHistory(t *testing.T) {
	res := Detect(grepRound(1), DefaultThresholds())
	require.Equal(t, None, res.Type)
	require.Equal(t, Continue, res.Recommendation)
}

func TestDetect_GenericLoopAtThresholdMinusOneIsNone(t *testing.T) {
	th := DefaultThresholds()
	msgs := repeat(shellRound(), th.GenericLoopRounds-1)
	res := Detect(msgs, th)
	require.NotEqual(t, Verification, res.Type)
}

func TestDetect_GenericLoopAtThresholdWarns(t *testing.T) {
	th := DefaultThresholds()
	msgs := repeat(shellRound(), th.GenericLoopRounds)
	res := Detect(msgs, th)
	require.Equal(t, Verification, res.Type)
	require.Equal(t, Warn, res.Recommendation)
}

func TestDetect_GenericLoopForceCompleteAtForceMargin(t *testing.T) {
	th := DefaultThresholds()
	msgs := repeat(shellRound(), th.GenericLoopRounds+th.ForceMargin)
	res := Detect(msgs, th)
	require.Equal(t, Verification, res.Type)
	require.Equal(t, ForceComplete, res.Recommendation)
}

func TestDetect_Deterministic(t *testing.T) {
	th := DefaultThresholds()
	msgs := repeat(grepRound(1), th.GenericLoopRounds)
	a := Detect(msgs, th)
	b := Detect(msgs, th)
	require.Equal(t, a, b)
}

func TestDetect_ReadOnlyLoop(t *testing.T) {
	th := DefaultThresholds()
	var msgs []message.Message
	msgs = append(msgs, message.Human("go"))
	for i := 0; i < th.ReadOnlyWindowRounds; i++ {
		msgs = append(msgs,
			message.AI("", message.ToolCall{ID: "c", Name: "file-view", Args: map[string]any{"path": "a.go"}}),
			message.ToolResult("c", "contents", false),
		)
	}
	res := Detect(msgs, th)
	require.Equal(t, ReadOnly, res.Type)
}

func TestDetect_ReadOnlyLoopWarnsAtWindowThreshold(t *testing.T) {
	th := DefaultThresholds()
	var msgs []message.Message
	msgs = append(msgs, message.Human("go"))
	for i := 0; i < th.ReadOnlyWindowRounds; i++ {
		msgs = append(msgs,
			message.AI("", message.ToolCall{ID: "c", Name: "file-view", Args: map[string]any{"path": "a.go"}}),
			message.ToolResult("c", "contents", false),
		)
	}
	res := Detect(msgs, th)
	require.Equal(t, ReadOnly, res.Type)
	require.Equal(t, Warn, res.Recommendation)
}

func TestDetect_ReadOnlyLoopForceCompletesAtMargin(t *testing.T) {
	th := DefaultThresholds()
	var msgs []message.Message
	msgs = append(msgs, message.Human("go"))
	for i := 0; i < th.ReadOnlyWindowRounds+th.ReadOnlyForceMargin; i++ {
		msgs = append(msgs,
			message.AI("", message.ToolCall{ID: "c", Name: "file-view", Args: map[string]any{"path": "a.go"}}),
			message.ToolResult("c", "contents", false),
		)
	}
	res := Detect(msgs, th)
	require.Equal(t, ReadOnly, res.Type)
	require.Equal(t, ForceComplete, res.Recommendation, "a read-only loop that persists past window+margin must escalate, not stay capped at Warn forever")
}

func TestDetect_ErrorRetryLoop(t *testing.T) {
	th := DefaultThresholds()
	var msgs []message.Message
	msgs = append(msgs, message.Human("go"))
	for i := 0; i < th.ErrorRetryWindow; i++ {
		msgs = append(msgs,
			message.AI("", message.ToolCall{ID: "c", Name: "shell", Args: map[string]any{"command": "npm test"}}),
			message.ToolResult("c", "Error: failed", true),
		)
	}
	res := Detect(msgs, th)
	require.Equal(t, ErrorRetry, res.Type)
	require.Equal(t, RequestHelp, res.Recommendation)
}

func TestDetect_ChantingForcesComplete(t *testing.T) {
	th := DefaultThresholds()
	var msgs []message.Message
	msgs = append(msgs, message.Human("go"))
	for i := 0; i < th.ChantingRounds+1; i++ {
		msgs = append(msgs, message.AI("I am thinking about the same plan repeatedly and carefully"))
	}
	res := Detect(msgs, th)
	require.Equal(t, Chanting, res.Type)
	require.Equal(t, ForceComplete, res.Recommendation)
}

func TestDetect_ExplorationSuppressesLoop(t *testing.T) {
	th := DefaultThresholds()
	var msgs []message.Message
	msgs = append(msgs, message.Human("go"))
	files := []string{"a.go", "b.go", "c.go", "d.go", "e.go"}
	for _, f := range files {
		msgs = append(msgs,
			message.AI("", message.ToolCall{ID: "c", Name: "file-view", Args: map[string]any{"path": f}}),
			message.ToolResult("c", "contents", false),
		)
	}
	res := Detect(msgs, th)
	require.Equal(t, None, res.Type)
	require.Equal(t, Continue, res.Recommendation)
}

func TestCanonicalArgs_OrderIndependent(t *testing.T) {
	a := CanonicalArgs(map[string]any{"b": 1, "a": 2})
	b := CanonicalArgs(map[string]any{"a": 2, "b": 1})
	require.Equal(t, a, b)
}

func TestOutputHash_SameContentSameHash(t *testing.T) {
	require.Equal(t, OutputHash("foo"), OutputHash("foo"))
	require.NotEqual(t, OutputHash("foo"), OutputHash("bar"))
}
