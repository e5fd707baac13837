package llmgateway

import (
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/require"
)

func TestTranslateAnthropicResponse_ExtractsThinkingSignature(t *testing.T) {
	msg := &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "thinking", Thinking: "reasoning about the fix", Signature: "sig-abc"},
			{Type: "text", Text: "here is the answer"},
		},
		StopReason: sdk.StopReasonEndTurn,
	}
	resp := translateAnthropicResponse(msg)
	require.Equal(t, "here is the answer", resp.Content)
	require.Equal(t, "sig-abc", resp.ThoughtSignature)
}

func TestTranslateAnthropicResponse_ExtractsRedactedThinkingAsPrefixedSignature(t *testing.T) {
	msg := &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "redacted_thinking", Data: "opaque-payload"},
			{Type: "text", Text: "answer"},
		},
	}
	resp := translateAnthropicResponse(msg)
	require.Equal(t, redactedThinkingPrefix+"opaque-payload", resp.ThoughtSignature)
}

func TestTranslateAnthropicResponse_NoThinkingBlockLeavesSignatureEmpty(t *testing.T) {
	msg := &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: "answer"}},
	}
	resp := translateAnthropicResponse(msg)
	require.Empty(t, resp.ThoughtSignature)
}

func TestEncodeAnthropicMessages_ReinjectsThoughtSignature(t *testing.T) {
	msgs := []Msg{
		{Role: RoleUser, Content: "fix the bug"},
		{Role: RoleAssistant, Content: "I'll look into it", ThoughtSignature: "sig-xyz"},
	}
	conversation, _ := encodeAnthropicMessages(msgs)
	require.Len(t, conversation, 2)

	raw, err := json.Marshal(conversation[1])
	require.NoError(t, err)
	require.Contains(t, string(raw), `"type":"thinking"`)
	require.Contains(t, string(raw), "sig-xyz")
}

func TestEncodeAnthropicMessages_RedactedSignatureReinjectsAsRedactedBlock(t *testing.T) {
	msgs := []Msg{
		{Role: RoleUser, Content: "fix the bug"},
		{Role: RoleAssistant, Content: "done", ThoughtSignature: redactedThinkingPrefix + "opaque-payload"},
	}
	conversation, _ := encodeAnthropicMessages(msgs)
	require.Len(t, conversation, 2)

	raw, err := json.Marshal(conversation[1])
	require.NoError(t, err)
	require.Contains(t, string(raw), `"type":"redacted_thinking"`)
	require.Contains(t, string(raw), "opaque-payload")
}

func TestEncodeAnthropicMessages_NoSignatureOmitsThinkingBlock(t *testing.T) {
	msgs := []Msg{
		{Role: RoleUser, Content: "fix the bug"},
		{Role: RoleAssistant, Content: "done"},
	}
	conversation, _ := encodeAnthropicMessages(msgs)
	require.Len(t, conversation, 2)

	raw, err := json.Marshal(conversation[1])
	require.NoError(t, err)
	require.NotContains(t, string(raw), "thinking")
}

func TestEncodeAnthropicMessages_ConcatenatedSignatureTakesLastBeforeReinjection(t *testing.T) {
	msgs := []Msg{
		{Role: RoleUser, Content: "fix the bug"},
		{Role: RoleAssistant, Content: "done", ThoughtSignature: "c2lnQQ==c2lnQg=="},
	}
	conversation, _ := encodeAnthropicMessages(msgs)
	raw, err := json.Marshal(conversation[1])
	require.NoError(t, err)
	require.Contains(t, string(raw), "c2lnQg==")
	require.NotContains(t, string(raw), "c2lnQQ")
}
