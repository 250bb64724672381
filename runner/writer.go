package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrun/core"
)

// sessionWriter is the single append path of one session. Every invocation
// running on the session appends through the same writer, which assigns
// sequence numbers under its lock so they stay strictly increasing.
type sessionWriter struct {
	key     core.SessionKey
	svc     core.SessionService
	mu      sync.Mutex
	lastSeq int64
	refs    int
}

// observe raises the writer's sequence floor to seq.
func (w *sessionWriter) observe(seq int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if seq > w.lastSeq {
		w.lastSeq = seq
	}
}

// append assigns the next sequence number to ev and persists it. When the
// store reports a conflict (another process appended to the session) the
// writer resynchronizes from the stored log and retries once.
func (w *sessionWriter) append(ctx context.Context, ev *core.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ev.SequenceNo = w.lastSeq + 1

	err := w.svc.AppendEvent(ctx, w.key, *ev)
	if errors.Is(err, core.ErrSequenceConflict) {
		events, lerr := w.svc.ListEvents(ctx, w.key)
		if lerr != nil {
			return fmt.Errorf("resync after %w: %v", err, lerr)
		}

		if n := len(events); n > 0 {
			w.lastSeq = events[n-1].SequenceNo
		}

		ev.SequenceNo = w.lastSeq + 1
		err = w.svc.AppendEvent(ctx, w.key, *ev)
	}

	if err != nil {
		return err
	}

	w.lastSeq = ev.SequenceNo

	return nil
}

// writerSet hands out one refcounted writer per session key.
type writerSet struct {
	mu      sync.Mutex
	writers map[core.SessionKey]*sessionWriter
}

func newWriterSet() *writerSet {
	return &writerSet{writers: make(map[core.SessionKey]*sessionWriter)}
}

func (s *writerSet) acquire(key core.SessionKey, svc core.SessionService) *sessionWriter {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.writers[key]
	if !ok {
		w = &sessionWriter{key: key, svc: svc}
		s.writers[key] = w
	}

	w.refs++

	return w
}

func (s *writerSet) release(w *sessionWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.refs--
	if w.refs <= 0 {
		delete(s.writers, w.key)
	}
}

// size reports the number of sessions with a live writer.
func (s *writerSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.writers)
}
