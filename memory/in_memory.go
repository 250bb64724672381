package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/hupe1980/agentrun/core"
)

// InMemoryService is a naive process-local core.MemoryService. AddSession
// indexes the text events of a session; Search ranks the indexed fragments
// of one user by the number of distinct query words they contain.
//
// Re-adding a session replaces its earlier fragments, so the runner may index
// a session after every invocation.
//
// Concurrency: protected by RWMutex. Search is a linear scan; swap for a
// full-text or vector index for production retrieval.
type InMemoryService struct {
	mu sync.RWMutex
	// app/user -> session id -> fragments
	entries map[userKey]map[string][]indexed
}

type userKey struct {
	app, user string
}

type indexed struct {
	entry core.MemoryEntry
	words map[string]bool
}

// NewInMemoryService creates an empty memory service.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{entries: make(map[userKey]map[string][]indexed)}
}

// AddSession indexes every non-empty text event of session.
func (m *InMemoryService) AddSession(_ context.Context, session *core.Session) error {
	var fragments []indexed

	for _, ev := range session.GetEvents() {
		if ev.Payload.Kind != core.PayloadText || ev.Partial || strings.TrimSpace(ev.Payload.Text) == "" {
			continue
		}

		fragments = append(fragments, indexed{
			entry: core.MemoryEntry{
				Key:       session.Key,
				EventID:   ev.ID,
				Author:    ev.Author,
				Text:      ev.Payload.Text,
				Timestamp: ev.Timestamp,
			},
			words: wordSet(ev.Payload.Text),
		})
	}

	uk := userKey{app: session.Key.AppName, user: session.Key.UserID}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[uk]; !ok {
		m.entries[uk] = make(map[string][]indexed)
	}

	m.entries[uk][session.Key.SessionID] = fragments

	return nil
}

// Search returns up to limit fragments of the user's sessions matching at
// least one query word, best matches first and newer before older on ties.
// A non-positive limit returns every match.
func (m *InMemoryService) Search(_ context.Context, appName, userID, query string, limit int) ([]core.MemoryEntry, error) {
	terms := wordSet(query)
	if len(terms) == 0 {
		return []core.MemoryEntry{}, nil
	}

	type hit struct {
		entry core.MemoryEntry
		score int
	}

	m.mu.RLock()

	var hits []hit

	for _, fragments := range m.entries[userKey{app: appName, user: userID}] {
		for _, f := range fragments {
			score := 0

			for t := range terms {
				if f.words[t] {
					score++
				}
			}

			if score > 0 {
				hits = append(hits, hit{entry: f.entry, score: score})
			}
		}
	}

	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}

		return hits[i].entry.Timestamp.After(hits[j].entry.Timestamp)
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]core.MemoryEntry, len(hits))
	for i, h := range hits {
		results[i] = h.entry
	}

	return results, nil
}

func wordSet(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}

	return set
}
