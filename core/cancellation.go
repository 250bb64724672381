package core

import (
	"context"
	"sync"
)

// CancellationToken is a cooperative cancellation flag. Agents sample it at
// suspension points; it never interrupts an in-flight external call.
// A nil token is never cancelled.
type CancellationToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancellationToken returns a fresh, unset token.
func NewCancellationToken() *CancellationToken {
	ctx, cancel := context.WithCancel(context.Background())
	return &CancellationToken{ctx: ctx, cancel: cancel}
}

// Child derives a token that is set whenever t is set, and may additionally
// be set on its own without affecting t.
func (t *CancellationToken) Child() *CancellationToken {
	parent := context.Background()
	if t != nil {
		parent = t.ctx
	}
	ctx, cancel := context.WithCancel(parent)
	return &CancellationToken{ctx: ctx, cancel: cancel}
}

// Cancel sets the token. It is idempotent.
func (t *CancellationToken) Cancel() {
	if t != nil {
		t.cancel()
	}
}

// IsCancelled reports whether the token (or one of its ancestors) is set.
func (t *CancellationToken) IsCancelled() bool {
	return t != nil && t.ctx.Err() != nil
}

// Done returns a channel closed once the token is set.
func (t *CancellationToken) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.ctx.Done()
}

// InvocationStatus is the externally visible lifecycle of an invocation.
type InvocationStatus string

const (
	// StatusActive marks a running invocation.
	StatusActive InvocationStatus = "active"
	// StatusCancelled marks an invocation whose cancellation was requested.
	StatusCancelled InvocationStatus = "cancelled"
	// StatusCompleted marks a recently finished invocation.
	StatusCompleted InvocationStatus = "completed"
	// StatusNotFound marks an unknown (or long finished) invocation id.
	StatusNotFound InvocationStatus = "not_found"
)

// RegistryOptions configures a CancellationRegistry.
type RegistryOptions struct {
	// Retain bounds how many finished invocations keep a queryable status.
	Retain int
}

type registration struct {
	token     *CancellationToken
	cancelled bool
}

// CancellationRegistry maps invocation ids to cancellation tokens for the
// lifetime of each invocation. It is explicit process-scoped state: create
// one and hand it to every runner that should share cancel semantics.
type CancellationRegistry struct {
	mu       sync.Mutex
	active   map[string]*registration
	finished map[string]InvocationStatus
	order    []string
	retain   int
}

// NewCancellationRegistry creates an empty registry.
func NewCancellationRegistry(optFns ...func(o *RegistryOptions)) *CancellationRegistry {
	opts := RegistryOptions{Retain: 1024}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &CancellationRegistry{
		active:   make(map[string]*registration),
		finished: make(map[string]InvocationStatus),
		retain:   opts.Retain,
	}
}

// Register inserts invocationID and returns its token. Registering an id
// that is already active returns the existing token.
func (r *CancellationRegistry) Register(invocationID string) *CancellationToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg, ok := r.active[invocationID]; ok {
		return reg.token
	}

	tok := NewCancellationToken()
	r.active[invocationID] = &registration{token: tok}

	return tok
}

// Cancel sets the token registered for invocationID. It returns false for
// unknown ids and is idempotent for known ones.
func (r *CancellationRegistry) Cancel(invocationID string) bool {
	r.mu.Lock()
	reg, ok := r.active[invocationID]
	if ok {
		reg.cancelled = true
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	reg.token.Cancel()

	return true
}

// IsCancelled reports whether token has been set.
func (r *CancellationRegistry) IsCancelled(token *CancellationToken) bool {
	return token.IsCancelled()
}

// Status reports the lifecycle state of invocationID.
func (r *CancellationRegistry) Status(invocationID string) InvocationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg, ok := r.active[invocationID]; ok {
		if reg.cancelled {
			return StatusCancelled
		}
		return StatusActive
	}

	if st, ok := r.finished[invocationID]; ok {
		return st
	}

	return StatusNotFound
}

// Deregister removes invocationID once its run has ended. The final status
// stays queryable until it is evicted by newer invocations.
func (r *CancellationRegistry) Deregister(invocationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.active[invocationID]
	if !ok {
		return
	}
	delete(r.active, invocationID)

	if r.retain <= 0 {
		return
	}

	st := StatusCompleted
	if reg.cancelled {
		st = StatusCancelled
	}
	r.finished[invocationID] = st
	r.order = append(r.order, invocationID)

	for len(r.order) > r.retain {
		delete(r.finished, r.order[0])
		r.order = r.order[1:]
	}
}

// ActiveCount returns the number of registered invocations.
func (r *CancellationRegistry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.active)
}
