package core

import (
	"fmt"
	"sync"
)

// ToolCallBudget bounds the number of model->tools round trips of one
// invocation. It is shared by every agent of the invocation.
type ToolCallBudget struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewToolCallBudget creates a budget. If max == 0, unlimited round trips are allowed.
func NewToolCallBudget(max int) *ToolCallBudget {
	return &ToolCallBudget{max: max}
}

// Increment consumes one round trip and returns an error if the budget is exceeded.
func (b *ToolCallBudget) Increment() error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && b.count >= b.max {
		return fmt.Errorf("exceeded tool call budget: %d", b.max)
	}
	b.count++

	return nil
}

// Count returns the number of round trips consumed.
func (b *ToolCallBudget) Count() int {
	if b == nil {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Remaining returns how many round trips are left, or -1 when unlimited.
func (b *ToolCallBudget) Remaining() int {
	if b == nil {
		return -1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max == 0 {
		return -1
	}

	return b.max - b.count
}
