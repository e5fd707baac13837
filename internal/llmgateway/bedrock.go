package llmgateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
)

// isThrottled classifies a Bedrock Converse error as a throttling response,
// grounded on features/model/bedrock/client.go's isRateLimited: Bedrock
// reports throttling as a smithy.APIError with one of these codes rather
// than a distinct Go error type.
func isThrottled(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException":
		return true
	}
	return false
}

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client used by
// BedrockClient, satisfied by *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient implements llmgateway.Client on top of the Bedrock Converse
// API.
type BedrockClient struct {
	runtime RuntimeClient
	cfg     ModelLoadConfig
}

// NewBedrockClient builds a Client from a Bedrock runtime client and
// resolved load config.
func NewBedrockClient(runtime RuntimeClient, cfg ModelLoadConfig) (*BedrockClient, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	return &BedrockClient{runtime: runtime, cfg: cfg}, nil
}

func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	input, err := c.prepareRequest(req)
	if err != nil {
		return Response{}, err
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return Response{}, &ProviderError{Provider: ProviderBedrock, Model: req.Model, Err: err, Throttled: isThrottled(err)}
	}
	return translateBedrockResponse(out), nil
}

func (c *BedrockClient) prepareRequest(req Request) (*bedrockruntime.ConverseInput, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.cfg.ModelName
	}
	if modelID == "" {
		return nil, ErrEmptyModelName
	}
	messages, system := encodeBedrockMessages(req.Messages)
	if len(messages) == 0 {
		return nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
		System:   system,
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	inf := &brtypes.InferenceConfiguration{}
	if maxTokens > 0 {
		mt := int32(maxTokens)
		inf.MaxTokens = &mt
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		inf.Temperature = &t
	}
	input.InferenceConfig = inf
	if toolCfg := encodeBedrockTools(req.Tools, req.ToolChoice); toolCfg != nil {
		input.ToolConfig = toolCfg
	}
	return input, nil
}

func encodeBedrockMessages(msgs []Msg) ([]brtypes.Message, []brtypes.SystemContentBlock) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	system := make([]brtypes.SystemContentBlock, 0)
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if m.Content != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
			}
			continue
		}
		var blocks []brtypes.ContentBlock
		if m.Content != "" {
			blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
		}
		for _, tc := range m.ToolCalls {
			blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
				ToolUseId: aws.String(tc.ID),
				Name:      aws.String(tc.Name),
				Input:     lazyBedrockDocument(tc.Args),
			}})
		}
		var role brtypes.ConversationRole
		switch m.Role {
		case RoleUser:
			role = brtypes.ConversationRoleUser
		case RoleAssistant:
			role = brtypes.ConversationRoleAssistant
		case RoleTool:
			role = brtypes.ConversationRoleUser
			blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
				ToolUseId: aws.String(m.ToolCallID),
				Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: m.Content}},
			}})
		}
		if len(blocks) == 0 {
			continue
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	return conversation, system
}

func encodeBedrockTools(specs []ToolSpec, choice *ToolChoice) *brtypes.ToolConfiguration {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]brtypes.Tool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(s.Name),
			Description: aws.String(s.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: lazyBedrockDocument(s.Schema)},
		}})
	}
	cfg := &brtypes.ToolConfiguration{Tools: tools}
	if choice != nil {
		switch choice.Mode {
		case "required":
			cfg.ToolChoice = &brtypes.ToolChoiceMemberAny{Value: brtypes.AnyToolChoice{}}
		case "tool":
			cfg.ToolChoice = &brtypes.ToolChoiceMemberTool{Value: brtypes.SpecificToolChoice{Name: aws.String(choice.Tool)}}
		}
	}
	return cfg
}

func lazyBedrockDocument(v any) document.Interface {
	return document.NewLazyDocument(&v)
}

func translateBedrockResponse(out *bedrockruntime.ConverseOutput) Response {
	resp := Response{}
	if out == nil {
		return resp
	}
	if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		var textParts []string
		for _, block := range msg.Value.Content {
			switch b := block.(type) {
			case *brtypes.ContentBlockMemberText:
				textParts = append(textParts, b.Value)
			case *brtypes.ContentBlockMemberToolUse:
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					ID:   aws.ToString(b.Value.ToolUseId),
					Name: aws.ToString(b.Value.Name),
					Args: decodeBedrockDocument(b.Value.Input),
				})
			}
		}
		for _, s := range textParts {
			resp.Content += s
		}
	}
	resp.StopReason = string(out.StopReason)
	if out.Usage != nil {
		resp.Usage = Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}
	return resp
}

func decodeBedrockDocument(doc document.Interface) map[string]any {
	if doc == nil {
		return nil
	}
	var m map[string]any
	raw, err := doc.MarshalSmithyDocument()
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
