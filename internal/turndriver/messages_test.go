package turndriver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-swe/agent-engine/internal/llmgateway"
	"github.com/open-swe/agent-engine/internal/message"
	"github.com/open-swe/agent-engine/internal/plan"
)

func TestBuildMessages_TrailingHumanEmbedsPlanAndWarning(t *testing.T) {
	p := plan.Default("demo")
	history := []message.Message{message.Human("start")}
	out := BuildMessages(FamilyOpenAI, SystemSections{Static: "be helpful"}, history, p, "slow down")
	last := out[len(out)-1]
	require.Equal(t, message.KindHuman, last.Kind)
	require.Contains(t, last.Content, "Task: demo")
	require.Contains(t, last.Content, "slow down")
}

func TestBuildMessages_AnthropicAppliesStrictOrdering(t *testing.T) {
	history := []message.Message{
		message.Human("go"),
		message.AI("", message.ToolCall{ID: "c1", Name: "grep"}),
	}
	out := BuildMessages(FamilyAnthropic, SystemSections{Static: "sys"}, history, nil, "")
	last := out[len(out)-1]
	require.False(t, last.HasToolCalls(), "trailing AI-with-tool-calls message must be stripped")
}

func TestBuildMessages_NonAnthropicKeepsOrderingAsIs(t *testing.T) {
	history := []message.Message{
		message.Human("go"),
		message.AI("", message.ToolCall{ID: "c1", Name: "grep"}),
	}
	out := BuildMessages(FamilyOpenAI, SystemSections{Static: "sys"}, history, nil, "")
	last := out[len(out)-1]
	require.True(t, last.HasToolCalls())
}

func TestBuildTools_IncludesEditToolPerFamily(t *testing.T) {
	tools := BuildTools(nil, false)
	anthropicNames := namesOf(tools[FamilyAnthropic])
	require.Contains(t, anthropicNames, "str_replace_based_edit_tool")
	openaiNames := namesOf(tools[FamilyOpenAI])
	require.Contains(t, openaiNames, "apply_patch")
}

func namesOf(specs []llmgateway.ToolSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}
