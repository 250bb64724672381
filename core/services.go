package core

import (
	"context"
	"time"
)

// ArtifactService stores versioned binary artifacts scoped to a session.
type ArtifactService interface {
	// Save stores data under name and returns the new version (starting at 1).
	Save(ctx context.Context, key SessionKey, name string, data []byte) (int, error)
	// Load returns the given version of name; version 0 selects the latest.
	Load(ctx context.Context, key SessionKey, name string, version int) ([]byte, error)
	// List returns the artifact names stored for the session.
	List(ctx context.Context, key SessionKey) ([]string, error)
	// Versions returns the stored versions of name in ascending order.
	Versions(ctx context.Context, key SessionKey, name string) ([]int, error)
	// Delete removes every version of name.
	Delete(ctx context.Context, key SessionKey, name string) error
}

// MemoryEntry is one recalled conversational fragment.
type MemoryEntry struct {
	Key       SessionKey `json:"key"`
	EventID   string     `json:"event_id"`
	Author    string     `json:"author"`
	Text      string     `json:"text"`
	Timestamp time.Time  `json:"timestamp"`
}

// MemoryService indexes finished sessions for later recall across sessions
// of the same user.
type MemoryService interface {
	AddSession(ctx context.Context, session *Session) error
	Search(ctx context.Context, appName, userID, query string, limit int) ([]MemoryEntry, error)
}
