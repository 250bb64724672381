package artifact

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentrun/core"
)

// InMemoryService is a trivial in-process core.ArtifactService useful for
// tests, examples and single-process prototypes. Every Save appends a new
// version; earlier versions stay loadable until the artifact is deleted.
// Data is copied on save and on load so callers never share buffers with
// the store.
//
// Layout: session key -> artifact name -> versions (index 0 is version 1)
//
// It does not enforce retention limits, size quotas, or eviction.
type InMemoryService struct {
	mu        sync.RWMutex
	artifacts map[core.SessionKey]map[string][][]byte
}

// NewInMemoryService returns an empty in-memory artifact service.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{artifacts: make(map[core.SessionKey]map[string][][]byte)}
}

// Save stores data as the next version of name and returns that version.
func (a *InMemoryService) Save(_ context.Context, key core.SessionKey, name string, data []byte) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("artifact name must not be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	byName, ok := a.artifacts[key]
	if !ok {
		byName = make(map[string][][]byte)
		a.artifacts[key] = byName
	}

	byName[name] = append(byName[name], clone(data))

	return len(byName[name]), nil
}

// Load returns a copy of the requested version; version 0 selects the latest.
func (a *InMemoryService) Load(_ context.Context, key core.SessionKey, name string, version int) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	versions := a.artifacts[key][name]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if version == 0 {
		version = len(versions)
	}

	if version < 1 || version > len(versions) {
		return nil, fmt.Errorf("%w: %s version %d", ErrNotFound, name, version)
	}

	return clone(versions[version-1]), nil
}

// List returns the sorted artifact names stored for the session.
func (a *InMemoryService) List(_ context.Context, key core.SessionKey) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.artifacts[key]))
	for name := range a.artifacts[key] {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

// Versions returns the stored versions of name in ascending order.
func (a *InMemoryService) Versions(_ context.Context, key core.SessionKey, name string) ([]int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	versions := a.artifacts[key][name]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	out := make([]int, len(versions))
	for i := range versions {
		out[i] = i + 1
	}

	return out, nil
}

// Delete removes every version of name or returns ErrNotFound.
func (a *InMemoryService) Delete(_ context.Context, key core.SessionKey, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.artifacts[key][name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	delete(a.artifacts[key], name)

	return nil
}

func clone(data []byte) []byte {
	cp := make([]byte, len(data))
	copy(cp, data)

	return cp
}
