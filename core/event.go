package core

import (
	"time"

	"github.com/google/uuid"
)

// PayloadKind discriminates the variant carried by a Payload.
type PayloadKind string

const (
	// PayloadText carries assistant or user text.
	PayloadText PayloadKind = "text"
	// PayloadToolCall carries a model request to execute a tool.
	PayloadToolCall PayloadKind = "tool_call"
	// PayloadToolResult carries the outcome of a tool execution.
	PayloadToolResult PayloadKind = "tool_result"
	// PayloadControl carries an orchestration signal.
	PayloadControl PayloadKind = "control"
)

// ControlKind enumerates orchestration signals.
type ControlKind string

const (
	// ControlEscalate asks the enclosing loop to terminate.
	ControlEscalate ControlKind = "escalate"
	// ControlCancelled marks the cooperative end of a cancelled run. It is a
	// terminal status, never an error.
	ControlCancelled ControlKind = "cancelled"
	// ControlError marks a fatal failure of the emitting agent.
	ControlError ControlKind = "error"
	// ControlMaxIterationsReached marks a loop that ran out of iterations.
	ControlMaxIterationsReached ControlKind = "max_iterations_reached"
)

// ToolCall is a model request to run a named tool.
type ToolCall struct {
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
}

// ToolResult is the outcome of one ToolCall. Exactly one of Result or Error
// is meaningful; a non-empty Error marks a recoverable tool failure.
type ToolResult struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Control is an orchestration signal. ErrorKind and Message are set for
// ControlError; Message is informational for the other kinds.
type Control struct {
	Kind      ControlKind `json:"kind"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// Payload is the tagged variant carried by every Event. Kind selects which of
// the remaining fields is populated.
type Payload struct {
	Kind       PayloadKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	Control    *Control    `json:"control,omitempty"`
}

// TextPayload builds a Text payload.
func TextPayload(text string) Payload { return Payload{Kind: PayloadText, Text: text} }

// ToolCallPayload builds a ToolCall payload.
func ToolCallPayload(call ToolCall) Payload { return Payload{Kind: PayloadToolCall, ToolCall: &call} }

// ToolResultPayload builds a ToolResult payload.
func ToolResultPayload(res ToolResult) Payload {
	return Payload{Kind: PayloadToolResult, ToolResult: &res}
}

// ControlPayload builds a Control payload.
func ControlPayload(c Control) Payload { return Payload{Kind: PayloadControl, Control: &c} }

// EscalatePayload builds a Control(Escalate) payload.
func EscalatePayload() Payload { return ControlPayload(Control{Kind: ControlEscalate}) }

// CancelledPayload builds a Control(Cancelled) payload.
func CancelledPayload(msg string) Payload {
	return ControlPayload(Control{Kind: ControlCancelled, Message: msg})
}

// ErrorPayload builds a Control(Error(kind, message)) payload.
func ErrorPayload(kind, msg string) Payload {
	return ControlPayload(Control{Kind: ControlError, ErrorKind: kind, Message: msg})
}

// MaxIterationsReachedPayload builds a Control(MaxIterationsReached) payload.
func MaxIterationsReachedPayload(msg string) Payload {
	return ControlPayload(Control{Kind: ControlMaxIterationsReached, Message: msg})
}

// EventActions encodes side effects attached to an Event. The session service
// applies StateDelta atomically with the append of the carrying event.
type EventActions struct {
	StateDelta    map[string]any `json:"state_delta,omitempty"`
	ArtifactDelta map[string]int `json:"artifact_delta,omitempty"`
}

// IsZero reports whether no action is set.
func (a EventActions) IsZero() bool { return len(a.StateDelta) == 0 && len(a.ArtifactDelta) == 0 }

// Event is one observable step of a run. After append it is never mutated.
// SequenceNo is assigned by the runner's session writer; partial events are
// forwarded but never persisted and keep SequenceNo zero.
type Event struct {
	ID           string       `json:"id"`
	InvocationID string       `json:"invocation_id"`
	Branch       string       `json:"branch,omitempty"`
	Author       string       `json:"author"`
	Timestamp    time.Time    `json:"timestamp"`
	SequenceNo   int64        `json:"sequence_no"`
	Payload      Payload      `json:"payload"`
	Partial      bool         `json:"partial,omitempty"`
	TurnComplete bool         `json:"turn_complete,omitempty"`
	Actions      EventActions `json:"actions,omitempty"`
}

// NewEvent creates an event authored by author bound to an invocation.
func NewEvent(invocationID, author string, payload Payload) Event {
	return Event{
		ID:           NewID(),
		InvocationID: invocationID,
		Author:       author,
		Timestamp:    time.Now().UTC(),
		Payload:      payload,
	}
}

// NewUserMessageEvent creates the user turn that opens an invocation.
func NewUserMessageEvent(invocationID, message string) Event {
	ev := NewEvent(invocationID, UserAuthor, TextPayload(message))
	ev.TurnComplete = true

	return ev
}

// UserAuthor is the author recorded on caller supplied messages.
const UserAuthor = "user"

// RunnerAuthor is the author of events the runner adds on its own, such as
// the closing Cancelled of an interrupted invocation.
const RunnerAuthor = "runner"

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }

// control returns the control payload if the event carries the given kind.
func (e Event) control(kind ControlKind) (*Control, bool) {
	if e.Payload.Kind != PayloadControl || e.Payload.Control == nil {
		return nil, false
	}

	return e.Payload.Control, e.Payload.Control.Kind == kind
}

// IsFatal reports whether the event is a Control(Error).
func (e Event) IsFatal() bool {
	_, ok := e.control(ControlError)
	return ok
}

// IsCancelled reports whether the event is a Control(Cancelled).
func (e Event) IsCancelled() bool {
	_, ok := e.control(ControlCancelled)
	return ok
}

// IsEscalation reports whether the event is a Control(Escalate).
func (e Event) IsEscalation() bool {
	_, ok := e.control(ControlEscalate)
	return ok
}

// IsMaxIterationsReached reports whether the event is a Control(MaxIterationsReached).
func (e Event) IsMaxIterationsReached() bool {
	_, ok := e.control(ControlMaxIterationsReached)
	return ok
}

// IsTerminal reports whether the event ends the emitting agent's stream.
func (e Event) IsTerminal() bool { return e.IsFatal() || e.IsCancelled() }

// IsFromUser reports whether the caller authored the event.
func (e Event) IsFromUser() bool { return e.Author == UserAuthor }
