package llmgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// MessagesClient captures the subset of the Anthropic SDK used by
// AnthropicClient, satisfied by *sdk.MessageService in production and a
// stub in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicClient implements llmgateway.Client on top of Anthropic Messages.
type AnthropicClient struct {
	msg MessagesClient
	cfg ModelLoadConfig
}

// NewAnthropicClient builds a Client from an API key and resolved load
// config.
func NewAnthropicClient(apiKey string, cfg ModelLoadConfig) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{msg: &ac.Messages, cfg: cfg}, nil
}

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return Response{}, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return Response{}, &ProviderError{Provider: ProviderAnthropic, Model: req.Model, Err: err}
	}
	return translateAnthropicResponse(msg), nil
}

func (c *AnthropicClient) prepareRequest(req Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.cfg.ModelName
	}
	if modelID == "" {
		return nil, ErrEmptyModelName
	}
	msgs, system := encodeAnthropicMessages(req.Messages)
	if len(msgs) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	if maxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if len(system) > 0 {
		params.System = system
	}
	if tools := encodeAnthropicTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.Thinking != nil && req.Thinking.Enable {
		budget := req.Thinking.BudgetTokens
		if budget <= 0 {
			budget = defaultThinkingBudget
		}
		if int64(budget) >= int64(maxTokens) {
			return nil, fmt.Errorf("anthropic: thinking budget %d must be less than max_tokens %d", budget, maxTokens)
		}
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(budget))
	}
	if req.ToolChoice != nil {
		params.ToolChoice = encodeAnthropicToolChoice(*req.ToolChoice)
	}
	return &params, nil
}

// redactedThinkingPrefix tags a Msg.ThoughtSignature value that was
// extracted from a "redacted_thinking" response block rather than a
// "thinking" one, so encodeAnthropicMessages can reinject it as the right
// block type. Thought signatures are carried as opaque metadata
// (SPEC_FULL.md §9 Design Notes), so this is the one place their provenance
// needs to survive the round trip.
const redactedThinkingPrefix = "redacted:"

func encodeAnthropicMessages(msgs []Msg) ([]sdk.MessageParam, []sdk.TextBlockParam) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0)
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
			continue
		}
		var blocks []sdk.ContentBlockParamUnion
		if m.Role == RoleAssistant && m.ThoughtSignature != "" {
			// A prior turn's thought signature must be reinjected as the
			// first content block so the provider can verify continuity
			// (spec.md:67).
			sig, _ := ValidateThoughtSignature(m.ThoughtSignature)
			if data, ok := strings.CutPrefix(sig, redactedThinkingPrefix); ok {
				blocks = append(blocks, sdk.NewRedactedThinkingBlock(data))
			} else if sig != "" {
				blocks = append(blocks, sdk.NewThinkingBlock(sig, ""))
			}
		}
		if m.Content != "" {
			blocks = append(blocks, sdk.NewTextBlock(m.Content))
		}
		for _, tc := range m.ToolCalls {
			blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Args, sanitizeToolName(tc.Name)))
		}
		if m.Role == RoleTool {
			content, _ := json.Marshal(m.Content)
			blocks = append(blocks, sdk.NewToolResultBlock(m.ToolCallID, string(content), false))
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case RoleUser, RoleTool:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		}
	}
	return conversation, system
}

func encodeAnthropicTools(specs []ToolSpec) []sdk.ToolUnionParam {
	if len(specs) == 0 {
		return nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: s.Schema}, sanitizeToolName(s.Name))
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(s.Description)
		}
		out = append(out, u)
	}
	return out
}

func encodeAnthropicToolChoice(choice ToolChoice) sdk.ToolChoiceUnionParam {
	switch choice.Mode {
	case "none":
		none := sdk.NewToolChoiceNoneParam()
		return sdk.ToolChoiceUnionParam{OfNone: &none}
	case "required":
		return sdk.ToolChoiceUnionParam{OfAny: &sdk.ToolChoiceAnyParam{}}
	case "tool":
		tool := sdk.NewToolChoiceToolParam(sanitizeToolName(choice.Tool))
		return sdk.ToolChoiceUnionParam{OfTool: &tool}
	default:
		return sdk.ToolChoiceUnionParam{}
	}
}

// sanitizeToolName maps a tool identifier to the character set Anthropic's
// API accepts, replacing any disallowed rune with '_'.
func sanitizeToolName(in string) string {
	if in == "" {
		return in
	}
	safe := true
	for _, r := range in {
		if !isToolNameRune(r) {
			safe = false
			break
		}
	}
	if safe && len(in) <= 64 {
		return in
	}
	out := make([]rune, 0, len(in))
	for _, r := range in {
		if isToolNameRune(r) {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func isToolNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

func translateAnthropicResponse(msg *sdk.Message) Response {
	resp := Response{}
	var textParts []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				textParts = append(textParts, block.Text)
			}
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: toolArgsFromInput(block.Input),
			})
		case "thinking":
			if block.Signature != "" {
				resp.ThoughtSignature = block.Signature
			}
		case "redacted_thinking":
			if block.Data != "" {
				resp.ThoughtSignature = redactedThinkingPrefix + block.Data
			}
		}
	}
	resp.Content = strings.Join(textParts, "")
	resp.StopReason = string(msg.StopReason)
	resp.Usage = Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return resp
}

func toolArgsFromInput(input json.RawMessage) map[string]any {
	if len(input) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(input, &m); err != nil {
		return nil
	}
	return m
}
