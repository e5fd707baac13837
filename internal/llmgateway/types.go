// Package llmgateway implements the LLM Provider Gateway (C2): mapping a
// logical task and run config to a concrete model configuration and a
// provider-bound chat-model client, per SPEC_FULL.md §4.2. Grounded on
// runtime/agent/model/model.go's Request/Response shape and the teacher's
// per-provider adapters in features/model/{anthropic,openai,bedrock}.
package llmgateway

import "context"

// LLMTask is a logical task slot the gateway resolves a model for.
type LLMTask string

const (
	TaskPlanner    LLMTask = "planner"
	TaskProgrammer LLMTask = "programmer"
	TaskReviewer   LLMTask = "reviewer"
	TaskRouter     LLMTask = "router"
	TaskSummarizer LLMTask = "summarizer"
)

// Provider names a concrete LLM backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderBedrock   Provider = "bedrock"
)

// Role is a conversation participant role in the provider-neutral request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall mirrors message.ToolCall in the provider-neutral request/response
// shape so this package does not import the turn driver's message package.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Msg is one entry of a provider-neutral chat request.
type Msg struct {
	Role             Role
	Content          string
	ToolCalls        []ToolCall
	ToolCallID       string // set on Role==RoleTool
	ThoughtSignature string // Anthropic adapter normalises it and reinjects it as a leading thinking block
}

// ToolSpec describes one callable tool's schema, independent of provider
// wire format.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any // JSON Schema
}

// ToolChoice constrains which tool(s), if any, the model may call.
type ToolChoice struct {
	Mode string // "auto", "none", "required", or "tool"
	Tool string // set when Mode == "tool"
}

// Thinking configures extended-reasoning behavior, per SPEC_FULL.md §4.2
// Thinking models.
type Thinking struct {
	Enable       bool
	BudgetTokens int
}

// Request is the provider-neutral chat request built by the turn driver and
// consumed by a Client.
type Request struct {
	Model              string
	Messages           []Msg
	Tools              []ToolSpec
	ToolChoice         *ToolChoice
	MaxTokens          int
	Temperature        *float64 // nil means "unset" (e.g. omitted for thinking models)
	Thinking           *Thinking
	ParallelToolCalls  *bool
}

// Response is the provider-neutral result of a Complete call.
type Response struct {
	Content          string
	ToolCalls        []ToolCall
	ThoughtSignature string
	StopReason       string
	Usage            Usage
}

// Usage reports token accounting for a single completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Client is the minimal interface every provider adapter implements; C3
// invokes it directly.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
