package util

import "github.com/google/uuid"

// NewID returns a random UUID string.
func NewID() string { return uuid.NewString() }

// NewInvocationID returns an invocation id. The "e-" prefix keeps invocation
// ids distinguishable from event and session ids in logs.
func NewInvocationID() string { return "e-" + uuid.NewString() }
