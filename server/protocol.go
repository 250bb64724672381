package server

import (
	"github.com/hupe1980/agentrun/core"
)

// MessageType identifies a client message.
type MessageType string

const (
	MessageRun    MessageType = "run"
	MessageCancel MessageType = "cancel"
	MessageStatus MessageType = "status"
)

// ClientMessage is one request of the run/cancel protocol. Run uses the
// session fields and NewMessage; Cancel and StatusQuery use InvocationID.
type ClientMessage struct {
	Type         MessageType `json:"type"`
	AppName      string      `json:"appName,omitempty"`
	UserID       string      `json:"userId,omitempty"`
	SessionID    string      `json:"sessionId,omitempty"`
	NewMessage   string      `json:"newMessage,omitempty"`
	InvocationID string      `json:"invocationId,omitempty"`
}

// FrameType identifies a server frame.
type FrameType string

const (
	// FrameStarted opens a run stream and carries the invocation id.
	FrameStarted FrameType = "started"
	FrameEvent   FrameType = "event"
	// FrameDone ends a run stream whose events were all persisted. Outcome
	// tells completed, failed and cancelled runs apart.
	FrameDone FrameType = "done"
	// FrameError ends a run stream on an infrastructure failure or rejects a
	// malformed message.
	FrameError FrameType = "error"
	// FrameAck answers Cancel and StatusQuery.
	FrameAck FrameType = "ack"
)

// Outcome is the terminal state reported by a Done frame.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Frame is one server response.
type Frame struct {
	Type         FrameType             `json:"type"`
	InvocationID string                `json:"invocationId,omitempty"`
	SessionID    string                `json:"sessionId,omitempty"`
	Event        *core.Event           `json:"event,omitempty"`
	Outcome      Outcome               `json:"outcome,omitempty"`
	Status       core.InvocationStatus `json:"status,omitempty"`
	Cancelled    *bool                 `json:"cancelled,omitempty"`
	Error        string                `json:"error,omitempty"`
}

func outcomeOf(last *core.Event) Outcome {
	switch {
	case last == nil:
		return OutcomeCompleted
	case last.IsCancelled():
		return OutcomeCancelled
	case last.IsFatal():
		return OutcomeFailed
	default:
		return OutcomeCompleted
	}
}
