package turndriver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-swe/agent-engine/internal/fallback"
	"github.com/open-swe/agent-engine/internal/hooks"
	"github.com/open-swe/agent-engine/internal/llmgateway"
	"github.com/open-swe/agent-engine/internal/message"
	"github.com/open-swe/agent-engine/internal/state"
)

type fakeGateway struct {
	client llmgateway.Client
	cfg    llmgateway.ModelLoadConfig
	err    error
}

func (f *fakeGateway) Resolve(context.Context, llmgateway.Provider, llmgateway.LLMTask, string) (llmgateway.Client, llmgateway.ModelLoadConfig, error) {
	return f.client, f.cfg, f.err
}

type fakeClient struct {
	resp llmgateway.Response
	err  error
}

func (f *fakeClient) Complete(context.Context, llmgateway.Request) (llmgateway.Response, error) {
	return f.resp, f.err
}

func newThread() *state.Thread {
	return &state.Thread{
		ThreadID:         "t1",
		InternalMessages: []message.Message{message.Human("do the thing")},
	}
}

func TestDriver_Run_NoToolCallsStopsSandbox(t *testing.T) {
	fc := &fakeClient{resp: llmgateway.Response{Content: "done talking"}}
	gw := &fakeGateway{client: fc, cfg: llmgateway.ModelLoadConfig{ModelName: "m1", MaxTokens: 1000}}
	bus := hooks.New()
	var events []hooks.EventType
	bus.Subscribe(func(ev hooks.Event) { events = append(events, ev.Type) })

	d := NewDriver(gw, fallback.NewRuntime(), bus)
	thread := newThread()
	thread.SandboxSessionID = "sess-1"
	cfg := Config{
		Task:      llmgateway.TaskProgrammer,
		Chain:     []ModelSpec{{Provider: llmgateway.ProviderAnthropic, Family: FamilyAnthropic, PrincipalID: "p1"}},
		Sections:  SystemSections{Static: "be helpful"},
		MaxTokens: 1000,
	}
	out, err := d.Run(context.Background(), thread, cfg)
	require.NoError(t, err)
	require.Empty(t, out.SandboxSessionID)
	require.Contains(t, events, hooks.EventStoppingSandbox)
	require.Contains(t, events, hooks.EventActionGenerated)
}

func TestDriver_Run_StripsMarkTaskCompletedWhenMultipleToolCalls(t *testing.T) {
	fc := &fakeClient{resp: llmgateway.Response{ToolCalls: []llmgateway.ToolCall{
		{ID: "1", Name: "grep"},
		{ID: "2", Name: "mark_task_completed"},
	}}}
	gw := &fakeGateway{client: fc, cfg: llmgateway.ModelLoadConfig{ModelName: "m1", MaxTokens: 1000}}
	d := NewDriver(gw, fallback.NewRuntime(), hooks.New())
	cfg := Config{
		Task:      llmgateway.TaskProgrammer,
		Chain:     []ModelSpec{{Provider: llmgateway.ProviderAnthropic, Family: FamilyAnthropic, PrincipalID: "p1"}},
		Sections:  SystemSections{Static: "be helpful"},
		MaxTokens: 1000,
	}
	out, err := d.Run(context.Background(), newThread(), cfg)
	require.NoError(t, err)
	last := out.InternalMessages[len(out.InternalMessages)-1]
	require.Len(t, last.ToolCalls, 1)
	require.Equal(t, "grep", last.ToolCalls[0].Name)
}

func TestDriver_Run_EmptyChainErrors(t *testing.T) {
	d := NewDriver(&fakeGateway{}, fallback.NewRuntime(), hooks.New())
	_, err := d.Run(context.Background(), newThread(), Config{Task: llmgateway.TaskProgrammer})
	require.Error(t, err)
}
