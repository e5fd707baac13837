// Package hooks implements the in-process progress-event bus C5 and C6
// publish to, grounded on runtime/agent/hooks/bus.go's subscribe/publish
// shape. External collaborators subscribe for UI streaming (SPEC_FULL.md
// §6); the graph coordinator persists state through statestore.Store
// directly and does not subscribe.
package hooks

import "sync"

// EventType names a structured progress event, per SPEC_FULL.md §4.5
// Observability and §6 Outputs.
type EventType string

const (
	EventProgrammerStart EventType = "programmer_start"
	EventPreparingTools  EventType = "preparing_tools"
	EventLoadingModel    EventType = "loading_model"
	EventInvokingModel   EventType = "invoking_model"
	EventModelResponse   EventType = "model_response"
	EventStoppingSandbox EventType = "stopping_sandbox"
	EventActionGenerated EventType = "action_generated"
	EventModelError      EventType = "model_error"
	EventForceComplete   EventType = "force_complete"
	EventRequestHelp     EventType = "request_help"
	EventLoopDetected    EventType = "loop_detected"

	EventInitializingSandbox EventType = "initializing_sandbox"
	EventCloningRepo         EventType = "cloning_repo"
	EventSandboxReady        EventType = "sandbox_ready"
	EventPhaseStart          EventType = "phase_start"
	EventPhaseEnd            EventType = "phase_end"
	EventCommitting          EventType = "committing"
	EventPullRequestOpened   EventType = "pull_request_opened"
	EventReviewClean         EventType = "review_clean"
	EventReviewFindings      EventType = "review_findings"
	EventRunDone             EventType = "run_done"
)

// Event is a single structured progress event.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp int64          `json:"timestamp"`
	ThreadID  string         `json:"threadId"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Subscriber receives published events. Implementations must not block.
type Subscriber func(Event)

// Bus is a simple in-process fan-out publisher.
type Bus struct {
	mu   sync.RWMutex
	subs []Subscriber
}

// New builds an empty Bus.
func New() *Bus { return &Bus{} }

// Subscribe registers fn to receive every future Publish call. Returns an
// unsubscribe function.
func (b *Bus) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := len(b.subs)
	b.subs = append(b.subs, fn)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.subs) {
			b.subs[idx] = nil
		}
	}
}

// Publish fans ev out to all live subscribers synchronously.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s != nil {
			s(ev)
		}
	}
}
