package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned by a SessionService for unknown keys.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating a session that already exists.
	ErrSessionExists = errors.New("session already exists")
	// ErrSequenceConflict is returned when an append would break sequence order.
	ErrSequenceConflict = errors.New("sequence number conflict")
	// ErrInvalidAgentTree is returned when an agent tree is cyclic or shares nodes.
	ErrInvalidAgentTree = errors.New("invalid agent tree")
)

// Error kinds carried by Control(Error) events.
const (
	ErrorKindToolBudgetExceeded = "tool_budget_exceeded"
	ErrorKindProvider           = "provider_error"
	ErrorKindInstruction        = "instruction_error"
	ErrorKindSubAgentFailed     = "sub_agent_failed"
	ErrorKindAgent              = "agent_error"
)

// SessionError reports that the session service could not serve a run. It
// is the only failure the runner surfaces as a Go error instead of an event.
type SessionError struct {
	Op  string
	Key SessionKey
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s failed for %s: %v", e.Op, e.Key, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
