package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/agentrun/logging"
)

// DefaultEventBufferSize is the capacity of agent event channels.
const DefaultEventBufferSize = 16

// InvocationContext is the per-run handle passed to Agent.Run. It aggregates:
//   - The ambient Go context used for external calls and channel sends
//   - Identifiers (InvocationID, session key via Session, current AgentName)
//   - The session snapshot loaded at run start (read-only history)
//   - The active Branch path
//   - The cooperative cancellation Token and the shared ToolCallBudget
//   - Optional artifact and memory services
//
// Derivation (ForAgent, WithBranch, WithToken) returns a new value and never
// mutates the receiver. All contexts derived from one root share the
// invocation's event log, state overlay and end_invocation flag.
type InvocationContext struct {
	Context         context.Context
	InvocationID    string
	Session         *Session
	Branch          Branch
	AgentName       string
	UserMessage     string
	Token           *CancellationToken
	Budget          *ToolCallBudget
	EventBufferSize int
	Artifacts       ArtifactService
	Memory          MemoryService

	shared *invocationShared

	// set below a LoopAgent: an escalation ends every enclosing pass
	escalationScope bool

	*runLogger
}

type invocationShared struct {
	mu         sync.RWMutex
	events     []Event
	stateDelta map[string]any
	ended      atomic.Bool
}

// InvocationOptions configures NewInvocationContext.
type InvocationOptions struct {
	UserMessage     string
	Token           *CancellationToken
	Budget          *ToolCallBudget
	EventBufferSize int
	Artifacts       ArtifactService
	Memory          MemoryService
	Logger          logging.Logger
}

// NewInvocationContext constructs the root context of an invocation. A nil
// session is replaced by an empty one.
func NewInvocationContext(
	ctx context.Context,
	invocationID string,
	session *Session,
	optFns ...func(o *InvocationOptions),
) *InvocationContext {
	opts := InvocationOptions{
		EventBufferSize: DefaultEventBufferSize,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Token == nil {
		opts.Token = NewCancellationToken()
	}

	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = DefaultEventBufferSize
	}

	if session == nil {
		session = NewSession(SessionKey{})
	}

	return &InvocationContext{
		Context:         ctx,
		InvocationID:    invocationID,
		Session:         session,
		UserMessage:     opts.UserMessage,
		Token:           opts.Token,
		Budget:          opts.Budget,
		EventBufferSize: opts.EventBufferSize,
		Artifacts:       opts.Artifacts,
		Memory:          opts.Memory,
		shared:          &invocationShared{stateDelta: map[string]any{}},
		runLogger:       newRunLogger(opts.Logger, "invocation_id", invocationID),
	}
}

// SessionKey returns the key of the session bound to the invocation.
func (ic *InvocationContext) SessionKey() SessionKey { return ic.Session.Key }

// ForAgent derives a context for running the named agent on the same branch.
func (ic *InvocationContext) ForAgent(name string) *InvocationContext {
	derived := *ic
	derived.AgentName = name

	return &derived
}

// WithBranch derives a context whose branch is extended by names.
func (ic *InvocationContext) WithBranch(names ...string) *InvocationContext {
	derived := *ic
	derived.Branch = ic.Branch.Extend(names...)

	return &derived
}

// WithToken derives a context observing tok instead of the current token.
func (ic *InvocationContext) WithToken(tok *CancellationToken) *InvocationContext {
	derived := *ic
	derived.Token = tok

	return &derived
}

// WithEscalationScope derives a context in which a forwarded
// Control(Escalate) stops the enclosing sequential passes and parallel
// siblings, up to the loop that opened the scope.
func (ic *InvocationContext) WithEscalationScope() *InvocationContext {
	derived := *ic
	derived.escalationScope = true

	return &derived
}

// EscalationStops reports whether an escalation observed in this context
// ends the current pass.
func (ic *InvocationContext) EscalationStops() bool { return ic.escalationScope }

// IsCancelled samples the cancellation token.
func (ic *InvocationContext) IsCancelled() bool { return ic.Token.IsCancelled() }

// EndInvocation asks every agent of the invocation to stop after its current
// step. It is not a cancellation.
func (ic *InvocationContext) EndInvocation() { ic.shared.ended.Store(true) }

// Ended reports whether EndInvocation was called.
func (ic *InvocationContext) Ended() bool { return ic.shared.ended.Load() }

// NewEventChannel returns a channel sized for agent event production.
func (ic *InvocationContext) NewEventChannel() chan Event {
	return make(chan Event, ic.EventBufferSize)
}

// NewEvent creates an event bound to this invocation and branch.
func (ic *InvocationContext) NewEvent(author string, payload Payload) Event {
	ev := NewEvent(ic.InvocationID, author, payload)
	ev.Branch = ic.Branch.String()

	return ev
}

// Emit records ev in the invocation log and sends it on out. It blocks until
// the consumer accepts the event and returns false only when the ambient
// context is done, in which case the producer should stop.
func (ic *InvocationContext) Emit(out chan<- Event, ev Event) bool {
	ic.record(ev)

	return ic.Forward(out, ev)
}

// Forward sends an already recorded event on out. Composites forward their
// children's events; an event they decide not to forward must be handed to
// Discard.
func (ic *InvocationContext) Forward(out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ic.Context.Done():
		return false
	}
}

func (ic *InvocationContext) record(ev Event) {
	if ev.Partial {
		return
	}

	ic.shared.mu.Lock()
	defer ic.shared.mu.Unlock()

	ic.shared.events = append(ic.shared.events, ev)
	for k, v := range ev.Actions.StateDelta {
		ic.shared.stateDelta[k] = v
	}
}

// Discard removes ev from the invocation log. Composites call it for child
// events they drop (drained after escalation, absorbed terminals, events
// produced after the consumer left) so history never shows what the session
// will not contain. State staged by the event is withdrawn as well.
func (ic *InvocationContext) Discard(ev Event) {
	ic.shared.mu.Lock()
	defer ic.shared.mu.Unlock()

	idx := -1
	for i := range ic.shared.events {
		if ic.shared.events[i].ID == ev.ID {
			idx = i
			break
		}
	}

	if idx < 0 {
		return
	}

	ic.shared.events = append(ic.shared.events[:idx], ic.shared.events[idx+1:]...)

	if len(ev.Actions.StateDelta) == 0 {
		return
	}

	ic.shared.stateDelta = map[string]any{}
	for _, kept := range ic.shared.events {
		for k, v := range kept.Actions.StateDelta {
			ic.shared.stateDelta[k] = v
		}
	}
}

// InvocationEvents returns the non-partial events produced so far in this
// invocation, in emission order.
func (ic *InvocationContext) InvocationEvents() []Event {
	ic.shared.mu.RLock()
	defer ic.shared.mu.RUnlock()

	out := make([]Event, len(ic.shared.events))
	copy(out, ic.shared.events)

	return out
}

// History returns the conversation visible from this context's branch: the
// persisted session events followed by the events produced in this
// invocation, keeping only events whose branch contains the current branch.
func (ic *InvocationContext) History() []Event {
	seen := map[string]bool{}
	all := ic.Session.GetEvents()
	for _, ev := range all {
		seen[ev.ID] = true
	}
	for _, ev := range ic.InvocationEvents() {
		if !seen[ev.ID] {
			all = append(all, ev)
		}
	}

	visible := make([]Event, 0, len(all))
	for _, ev := range all {
		if ParseBranch(ev.Branch).Contains(ic.Branch) {
			visible = append(visible, ev)
		}
	}

	return ConversationHistory(visible)
}

// GetState returns a value staged in this invocation, else the session value.
func (ic *InvocationContext) GetState(key string) (any, bool) {
	ic.shared.mu.RLock()
	v, ok := ic.shared.stateDelta[key]
	ic.shared.mu.RUnlock()

	if ok {
		return v, true
	}

	return ic.Session.GetState(key)
}

// State returns the session state overlaid with this invocation's deltas.
func (ic *InvocationContext) State() map[string]any {
	state := ic.Session.StateSnapshot()

	ic.shared.mu.RLock()
	defer ic.shared.mu.RUnlock()

	for k, v := range ic.shared.stateDelta {
		state[k] = v
	}

	return state
}
