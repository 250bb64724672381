package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/util"
)

// InMemoryService is a volatile core.SessionService storing sessions in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Each returned session is cloned to
// prevent external mutation of internal state.
type InMemoryService struct {
	mu       sync.RWMutex
	sessions map[core.SessionKey]*core.Session
}

// NewInMemoryService constructs an empty in-memory session service.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{sessions: make(map[core.SessionKey]*core.Session)}
}

// Create makes a new session; an empty sessionID requests a generated one.
func (s *InMemoryService) Create(_ context.Context, appName, userID, sessionID string) (*core.Session, error) {
	if sessionID == "" {
		sessionID = util.NewID()
	}

	key := core.SessionKey{AppName: appName, UserID: userID, SessionID: sessionID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[key]; ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionExists, key)
	}

	sess := core.NewSession(key)
	s.sessions[key] = sess

	return sess.Clone(), nil
}

// Get returns a clone of an existing session or core.ErrSessionNotFound.
func (s *InMemoryService) Get(_ context.Context, key core.SessionKey) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, key)
	}

	return sess.Clone(), nil
}

// AppendEvent appends ev and merges its state delta in one step. Partial
// events are ignored. An event whose sequence number does not advance the
// log is rejected with core.ErrSequenceConflict.
func (s *InMemoryService) AppendEvent(_ context.Context, key core.SessionKey, ev core.Event) error {
	if ev.Partial {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, key)
	}

	if last := sess.LastSequenceNo(); ev.SequenceNo <= last {
		return fmt.Errorf("%w: %d after %d", core.ErrSequenceConflict, ev.SequenceNo, last)
	}

	sess.AddEvent(ev)

	return nil
}

// ListEvents returns the session's events ordered by sequence number.
func (s *InMemoryService) ListEvents(_ context.Context, key core.SessionKey) ([]core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, key)
	}

	return sess.GetEvents(), nil
}

// Delete drops a session. Deleting an unknown session is a no-op.
func (s *InMemoryService) Delete(_ context.Context, key core.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)

	return nil
}

// List returns the keys of a user's sessions in unspecified order.
func (s *InMemoryService) List(_ context.Context, appName, userID string) ([]core.SessionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]core.SessionKey, 0)

	for k := range s.sessions {
		if k.AppName == appName && k.UserID == userID {
			keys = append(keys, k)
		}
	}

	return keys, nil
}
