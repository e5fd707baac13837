package turndriver

import (
	"context"
	"fmt"
	"time"

	"github.com/open-swe/agent-engine/internal/fallback"
	"github.com/open-swe/agent-engine/internal/hooks"
	"github.com/open-swe/agent-engine/internal/llmgateway"
	"github.com/open-swe/agent-engine/internal/loopdetect"
	"github.com/open-swe/agent-engine/internal/message"
	"github.com/open-swe/agent-engine/internal/plan"
	"github.com/open-swe/agent-engine/internal/state"
)

// ModelSpec names one entry of the fallback chain: a provider family plus
// the principal whose credentials resolve it.
type ModelSpec struct {
	Provider    llmgateway.Provider
	Family      ProviderFamily
	PrincipalID string
}

// Gateway is the subset of llmgateway.Gateway the driver depends on.
type Gateway interface {
	Resolve(ctx context.Context, provider llmgateway.Provider, task llmgateway.LLMTask, principalID string) (llmgateway.Client, llmgateway.ModelLoadConfig, error)
}

// Config configures one Driver.Run invocation.
type Config struct {
	Task          llmgateway.LLMTask
	Chain         []ModelSpec
	Sections      SystemSections
	MCPTools      []llmgateway.ToolSpec
	ReviewReply   bool
	MaxTokens     int
	LoopThresholds loopdetect.Thresholds
}

// Driver implements the C5 pipeline.
type Driver struct {
	Gateway  Gateway
	Fallback *fallback.Runtime
	Bus      *hooks.Bus
	Now      func() time.Time
}

// NewDriver constructs a Driver with real time.
func NewDriver(gw Gateway, fb *fallback.Runtime, bus *hooks.Bus) *Driver {
	return &Driver{Gateway: gw, Fallback: fb, Bus: bus, Now: time.Now}
}

// Run executes the 11-step pipeline and returns the updated Thread.
func (d *Driver) Run(ctx context.Context, thread *state.Thread, cfg Config) (*state.Thread, error) {
	out := thread.Clone()
	d.publish(out.ThreadID, hooks.EventProgrammerStart, nil)

	d.publish(out.ThreadID, hooks.EventLoadingModel, map[string]any{"task": string(cfg.Task)})

	th := cfg.LoopThresholds
	if th == (loopdetect.Thresholds{}) {
		th = loopdetect.DefaultThresholds()
	}
	loopResult := loopdetect.Detect(out.InternalMessages, th)
	if loopResult.Recommendation == loopdetect.ForceComplete || loopResult.Recommendation == loopdetect.RequestHelp {
		d.publish(out.ThreadID, hooks.EventLoopDetected, map[string]any{"type": string(loopResult.Type)})
		ai := syntheticEscalationMessage(loopResult)
		out.InternalMessages = append(out.InternalMessages, ai)
		out.Messages = append(out.Messages, ai)
		eventType := hooks.EventForceComplete
		if loopResult.Recommendation == loopdetect.RequestHelp {
			eventType = hooks.EventRequestHelp
		}
		d.publish(out.ThreadID, eventType, nil)
		return out, nil
	}
	var loopWarning string
	if loopResult.Recommendation == loopdetect.Warn {
		loopWarning = loopdetect.WarningPrompt(loopResult)
	}

	if out.TaskPlan == nil {
		out.TaskPlan = plan.Default("Untitled task")
	}

	d.publish(out.ThreadID, hooks.EventPreparingTools, nil)
	toolsByFamily := BuildTools(cfg.MCPTools, cfg.ReviewReply)

	chain, err := d.buildChain(ctx, cfg, toolsByFamily)
	if err != nil {
		d.publish(out.ThreadID, hooks.EventModelError, map[string]any{"error": err.Error()})
		return out, err
	}

	d.publish(out.ThreadID, hooks.EventInvokingModel, nil)
	req := llmgateway.Request{Messages: nil, MaxTokens: cfg.MaxTokens}

	var resp llmgateway.Response
	var invokeErr error
	for _, entry := range chain {
		msgs := BuildMessages(entry.family, cfg.Sections, out.InternalMessages, out.TaskPlan, loopWarning)
		req.Messages = toGatewayMessages(msgs)
		resp, invokeErr = d.Fallback.Invoke(ctx, []fallback.BoundModel{entry.bound}, req)
		if invokeErr == nil {
			break
		}
	}
	if invokeErr != nil {
		d.publish(out.ThreadID, hooks.EventModelError, map[string]any{"error": invokeErr.Error()})
		return out, invokeErr
	}
	d.publish(out.ThreadID, hooks.EventModelResponse, nil)

	ai := responseToMessage(resp)
	ai = postProcess(ai)

	if !ai.HasToolCalls() {
		d.publish(out.ThreadID, hooks.EventStoppingSandbox, nil)
		out.SandboxSessionID = ""
	}

	out.InternalMessages = append(out.InternalMessages, ai)
	out.Messages = append(out.Messages, ai)

	d.publish(out.ThreadID, hooks.EventActionGenerated, nil)
	return out, nil
}

type chainEntry struct {
	family ProviderFamily
	bound  fallback.BoundModel
}

func (d *Driver) buildChain(ctx context.Context, cfg Config, toolsByFamily map[ProviderFamily][]llmgateway.ToolSpec) ([]chainEntry, error) {
	if len(cfg.Chain) == 0 {
		return nil, fmt.Errorf("turndriver: empty model chain")
	}
	out := make([]chainEntry, 0, len(cfg.Chain))
	var lastErr error
	for _, spec := range cfg.Chain {
		client, loadCfg, err := d.Gateway.Resolve(ctx, spec.Provider, cfg.Task, spec.PrincipalID)
		if err != nil {
			lastErr = err
			continue
		}
		bound := fallback.NewBoundModel(client, loadCfg.ModelName, loadCfg.MaxTokens).
			WithTools(toolsByFamily[spec.Family])
		if loadCfg.Temperature != nil {
			bound.Temperature = loadCfg.Temperature
		}
		if loadCfg.ThinkingModel {
			bound = bound.WithThinking(llmgateway.Thinking{Enable: true, BudgetTokens: loadCfg.ThinkingBudgetTokens})
		}
		out = append(out, chainEntry{family: spec.Family, bound: bound})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("turndriver: could not resolve any model in chain: %w", lastErr)
	}
	return out, nil
}

func toGatewayMessages(msgs []message.Message) []llmgateway.Msg {
	out := make([]llmgateway.Msg, 0, len(msgs))
	for _, m := range msgs {
		gm := llmgateway.Msg{Content: m.Content, ThoughtSignature: m.ThoughtSignature}
		switch m.Kind {
		case message.KindSystem:
			gm.Role = llmgateway.RoleSystem
		case message.KindHuman:
			gm.Role = llmgateway.RoleUser
		case message.KindAI:
			gm.Role = llmgateway.RoleAssistant
			for _, tc := range m.ToolCalls {
				gm.ToolCalls = append(gm.ToolCalls, llmgateway.ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args})
			}
		case message.KindToolResult:
			gm.Role = llmgateway.RoleTool
			gm.ToolCallID = m.ToolCallID
		}
		out = append(out, gm)
	}
	return out
}

func responseToMessage(resp llmgateway.Response) message.Message {
	calls := make([]message.ToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		calls = append(calls, message.ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args})
	}
	ai := message.AI(resp.Content, calls...)
	ai.ThoughtSignature = resp.ThoughtSignature
	return ai
}

// postProcess strips a co-occurring mark_task_completed tool call when the
// response has more than one tool call (SPEC_FULL.md §4.5 step 10): it
// must not race with other actions in the same turn.
func postProcess(ai message.Message) message.Message {
	if len(ai.ToolCalls) <= 1 {
		return ai
	}
	filtered := make([]message.ToolCall, 0, len(ai.ToolCalls))
	for _, tc := range ai.ToolCalls {
		if tc.Name == "mark_task_completed" {
			continue
		}
		filtered = append(filtered, tc)
	}
	ai.ToolCalls = filtered
	return ai
}

func syntheticEscalationMessage(res loopdetect.Result) message.Message {
	toolName := "request_human_help"
	reason := fmt.Sprintf("Loop detected (%s, count=%d); requesting human assistance.", res.Type, res.Count)
	if res.Recommendation == loopdetect.ForceComplete {
		toolName = "mark_task_completed"
		reason = fmt.Sprintf("Loop detected (%s, count=%d); stopping to avoid further repetition.", res.Type, res.Count)
	}
	return message.AI("", message.ToolCall{
		ID:   "loop-escalation",
		Name: toolName,
		Args: map[string]any{"reason": reason},
	})
}

func (d *Driver) publish(threadID string, t hooks.EventType, fields map[string]any) {
	if d.Bus == nil {
		return
	}
	d.Bus.Publish(hooks.Event{Type: t, Timestamp: d.Now().UnixMilli(), ThreadID: threadID, Fields: fields})
}
