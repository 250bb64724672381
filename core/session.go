package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SessionKey identifies a session by application, user and session id.
type SessionKey struct {
	AppName   string `json:"app_name"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// String renders the key as app/user/session.
func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.AppName, k.UserID, k.SessionID)
}

// Session is an append-only ordered event log plus a key/value state blob.
// It is safe for concurrent access.
//
// Contract:
//   - AddEvent is the only way events and state deltas enter the session
//   - GetEvents returns a copy
//   - Clone performs deep copies of the top-level maps and slices
type Session struct {
	Key     SessionKey     `json:"key"`
	State   map[string]any `json:"state"`
	Events  []Event        `json:"events"`
	Created time.Time      `json:"created"`
	Updated time.Time      `json:"updated"`
	mu      sync.RWMutex
}

// NewSession creates an empty session for key.
func NewSession(key SessionKey) *Session {
	now := time.Now().UTC()
	return &Session{Key: key, State: map[string]any{}, Events: []Event{}, Created: now, Updated: now}
}

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// StateSnapshot returns a shallow copy of the state map.
func (s *Session) StateSnapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.State))
	for k, v := range s.State {
		out[k] = v
	}
	return out
}

// AddEvent appends ev and merges its state delta. Partial events are ignored.
func (s *Session) AddEvent(ev Event) {
	if ev.Partial {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	for k, v := range ev.Actions.StateDelta {
		s.State[k] = v
	}
	s.Updated = time.Now().UTC()
}

// GetEvents returns a copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// LastSequenceNo returns the sequence number of the newest event, or zero.
func (s *Session) LastSequenceNo() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Events) == 0 {
		return 0
	}
	return s.Events[len(s.Events)-1].SequenceNo
}

// GetConversationHistory returns the events a model should see: text, tool
// calls and tool results, excluding partial fragments and control signals.
func (s *Session) GetConversationHistory() []Event {
	return ConversationHistory(s.GetEvents())
}

// ConversationHistory filters events down to conversational payloads.
func ConversationHistory(events []Event) []Event {
	res := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.Partial || ev.Payload.Kind == PayloadControl {
			continue
		}
		res = append(res, ev)
	}
	return res
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		Key:     s.Key,
		State:   make(map[string]any, len(s.State)),
		Events:  make([]Event, len(s.Events)),
		Created: s.Created,
		Updated: s.Updated,
	}
	for k, v := range s.State {
		clone.State[k] = v
	}
	copy(clone.Events, s.Events)
	return clone
}

// SessionService is the storage contract for sessions. The core never
// mutates storage through any other path.
//
// AppendEvent must reject an event whose SequenceNo is not greater than the
// last stored one with ErrSequenceConflict and must apply the event's state
// delta atomically with the append.
type SessionService interface {
	// Create makes a new session. An empty sessionID requests a generated one.
	// Creating an existing session returns ErrSessionExists.
	Create(ctx context.Context, appName, userID, sessionID string) (*Session, error)
	// Get loads a session or returns ErrSessionNotFound.
	Get(ctx context.Context, key SessionKey) (*Session, error)
	// AppendEvent durably appends ev to the session.
	AppendEvent(ctx context.Context, key SessionKey, ev Event) error
	// ListEvents returns the session's events ordered by sequence number.
	ListEvents(ctx context.Context, key SessionKey) ([]Event, error)
}
