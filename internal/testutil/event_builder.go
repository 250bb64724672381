package testutil

import (
	"github.com/hupe1980/agentrun/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder().Author("agent").Invocation("inv-1").Text("hello").Seq(3).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	author       string
	invocationID string
	id           string
	branch       string
	seq          int64
	payload      core.Payload
	partial      bool
	turnComplete bool
	actions      core.EventActions
}

// NewEventBuilder creates a builder with default author "agent" and an empty text payload.
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{author: "agent", payload: core.TextPayload("")}
}

// Author sets the author name for the event (chainable).
func (b *EventBuilder) Author(a string) *EventBuilder {
	b.author = a
	return b
}

// Invocation sets the invocation ID associated with the event (chainable).
func (b *EventBuilder) Invocation(id string) *EventBuilder {
	b.invocationID = id
	return b
}

// ID overrides the auto-generated event ID (chainable).
func (b *EventBuilder) ID(id string) *EventBuilder {
	b.id = id
	return b
}

// Branch sets the dotted branch path (chainable).
func (b *EventBuilder) Branch(br string) *EventBuilder {
	b.branch = br
	return b
}

// Seq sets the sequence number (chainable).
func (b *EventBuilder) Seq(n int64) *EventBuilder {
	b.seq = n
	return b
}

// Partial marks the event as a streaming chunk (chainable).
func (b *EventBuilder) Partial(p bool) *EventBuilder {
	b.partial = p
	return b
}

// TurnComplete sets the TurnComplete flag (chainable).
func (b *EventBuilder) TurnComplete(c bool) *EventBuilder {
	b.turnComplete = c
	return b
}

// Text sets a text payload (chainable).
func (b *EventBuilder) Text(t string) *EventBuilder {
	b.payload = core.TextPayload(t)
	return b
}

// UserText sets a text payload authored by the user (chainable).
func (b *EventBuilder) UserText(t string) *EventBuilder {
	b.author = core.UserAuthor
	b.turnComplete = true
	return b.Text(t)
}

// ToolCall sets a tool call payload (chainable).
func (b *EventBuilder) ToolCall(id, name string, args map[string]any) *EventBuilder {
	b.payload = core.ToolCallPayload(core.ToolCall{CallID: id, Name: name, Args: args})
	return b
}

// ToolResult sets a tool result payload; a non-nil err fills the error field (chainable).
func (b *EventBuilder) ToolResult(id, name string, result any, err error) *EventBuilder {
	res := core.ToolResult{CallID: id, Name: name, Result: result}
	if err != nil {
		res.Result = nil
		res.Error = err.Error()
	}
	b.payload = core.ToolResultPayload(res)
	return b
}

// Control sets a control payload (chainable).
func (b *EventBuilder) Control(c core.Control) *EventBuilder {
	b.payload = core.ControlPayload(c)
	return b
}

// State adds a state delta entry (chainable).
func (b *EventBuilder) State(k string, v any) *EventBuilder {
	if b.actions.StateDelta == nil {
		b.actions.StateDelta = map[string]any{}
	}
	b.actions.StateDelta[k] = v
	return b
}

// Build constructs the core.Event value.
func (b *EventBuilder) Build() core.Event {
	ev := core.NewEvent(b.invocationID, b.author, b.payload)
	if b.id != "" {
		ev.ID = b.id
	}
	ev.Branch = b.branch
	ev.SequenceNo = b.seq
	ev.Partial = b.partial
	ev.TurnComplete = b.turnComplete
	ev.Actions = b.actions

	return ev
}
