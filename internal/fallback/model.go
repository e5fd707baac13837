package fallback

import (
	"github.com/open-swe/agent-engine/internal/llmgateway"
)

// BoundModel carries a resolved (model, tools, options) triple as an
// explicit value, replacing the property-chasing needed to recover bound
// tools from a dynamically wrapped client. Every composition — binding
// tools, attaching a tool choice, raising max tokens — returns a new
// BoundModel rather than mutating or wrapping the previous one.
type BoundModel struct {
	Client      llmgateway.Client
	ModelName   string
	Tools       []llmgateway.ToolSpec
	ToolChoice  *llmgateway.ToolChoice
	MaxTokens   int
	Temperature *float64
	Thinking    *llmgateway.Thinking
}

// NewBoundModel wraps a freshly resolved client with no tools bound.
func NewBoundModel(client llmgateway.Client, modelName string, maxTokens int) BoundModel {
	return BoundModel{Client: client, ModelName: modelName, MaxTokens: maxTokens}
}

// WithTools returns a new BoundModel with the given tool specs bound.
func (b BoundModel) WithTools(tools []llmgateway.ToolSpec) BoundModel {
	b.Tools = tools
	return b
}

// WithToolChoice returns a new BoundModel constrained to choice.
func (b BoundModel) WithToolChoice(choice llmgateway.ToolChoice) BoundModel {
	b.ToolChoice = &choice
	return b
}

// WithThinking returns a new BoundModel with reasoning enabled.
func (b BoundModel) WithThinking(thinking llmgateway.Thinking) BoundModel {
	b.Thinking = &thinking
	return b
}

// buildRequest materializes the bound options onto a base request.
func (b BoundModel) buildRequest(base llmgateway.Request) llmgateway.Request {
	req := base
	req.Model = b.ModelName
	req.Tools = b.Tools
	req.ToolChoice = b.ToolChoice
	req.Thinking = b.Thinking
	if req.MaxTokens <= 0 {
		req.MaxTokens = b.MaxTokens
	}
	if req.Temperature == nil {
		req.Temperature = b.Temperature
	}
	return req
}
