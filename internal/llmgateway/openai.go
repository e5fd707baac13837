package llmgateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// ChatClient captures the subset of the OpenAI SDK used by OpenAIClient.
// No example in the corpus pins an exact go.mod/import pairing for
// github.com/openai/openai-go (the only in-pack reference file names it in
// go.mod but imports the unrelated sashabaranov/go-openai in source); this
// adapter follows go.mod and is written directly against the published
// openai-go client shape.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIClient implements llmgateway.Client on top of the Chat Completions
// API.
type OpenAIClient struct {
	chat ChatClient
	cfg  ModelLoadConfig
}

// NewOpenAIClient builds a Client from an API key and resolved load config.
func NewOpenAIClient(apiKey string, cfg ModelLoadConfig) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	cl := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{chat: &cl.Chat.Completions, cfg: cfg}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return Response{}, err
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return Response{}, &ProviderError{Provider: ProviderOpenAI, Model: req.Model, Err: err}
	}
	return translateOpenAIResponse(resp), nil
}

func (c *OpenAIClient) prepareRequest(req Request) (openai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.cfg.ModelName
	}
	if modelID == "" {
		return openai.ChatCompletionNewParams{}, ErrEmptyModelName
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: encodeOpenAIMessages(req.Messages),
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if tools := encodeOpenAITools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	if req.ToolChoice != nil {
		params.ToolChoice = encodeOpenAIToolChoice(*req.ToolChoice)
	}
	if req.ParallelToolCalls != nil {
		params.ParallelToolCalls = openai.Bool(*req.ParallelToolCalls)
	}
	return params, nil
}

func encodeOpenAIMessages(msgs []Msg) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Args)
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		}
	}
	return out
}

func encodeOpenAITools(specs []ToolSpec) []openai.ChatCompletionToolParam {
	if len(specs) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        s.Name,
				Description: openai.String(s.Description),
				Parameters:  shared.FunctionParameters(s.Schema),
			},
		})
	}
	return out
}

func encodeOpenAIToolChoice(choice ToolChoice) openai.ChatCompletionToolChoiceOptionUnionParam {
	switch choice.Mode {
	case "none":
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("none")}
	case "required":
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}
	case "tool":
		named := openai.ChatCompletionNamedToolChoiceParam{
			Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Tool},
		}
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfChatCompletionNamedToolChoice: &named}
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
	}
}

func translateOpenAIResponse(resp *openai.ChatCompletion) Response {
	out := Response{}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.Content = choice.Message.Content
	out.StopReason = string(choice.FinishReason)
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	out.Usage = Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	return out
}
