package model

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/agentrun/core"
)

// Turn is one scripted MockModel reply.
type Turn struct {
	Text      string
	ToolCalls []core.ToolCall
	// Chunks are streamed as partial deltas before the final reply when the
	// request asks for streaming. Empty means a single delta with Text.
	Chunks []string
	// Delay simulates provider latency; it honors context cancellation.
	Delay time.Duration
	Err   error
}

// TextTurn returns a Turn answering with text.
func TextTurn(text string) Turn { return Turn{Text: text} }

// ToolCallTurn returns a Turn requesting the given tool calls.
func ToolCallTurn(calls ...core.ToolCall) Turn { return Turn{ToolCalls: calls} }

// MockModel is a lightweight in-memory Model replaying scripted turns, useful
// for tests & examples. It is safe for concurrent use; turns are consumed in
// call order.
type MockModel struct {
	info     Info
	turns    []Turn
	fallback *Turn

	mu       sync.Mutex
	next     int
	requests []Request
}

// NewMockModel constructs a MockModel replaying turns.
func NewMockModel(name string, turns ...Turn) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      "mock",
			SupportsTools: true,
		},
		turns: turns,
	}
}

// WithFallback sets the reply used once the script is exhausted.
func (m *MockModel) WithFallback(t Turn) *MockModel {
	m.fallback = &t
	return m
}

// Calls returns how many times Generate was invoked.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)

	return out
}

func (m *MockModel) take(req Request) (Turn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.next < len(m.turns) {
		t := m.turns[m.next]
		m.next++
		return t, true
	}

	if m.fallback != nil {
		return *m.fallback, true
	}

	return Turn{}, false
}

// Generate implements Model; emits optional streaming chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		turn, ok := m.take(req)
		if !ok {
			errCh <- NewProviderError("mock", 400, errors.New("no scripted turn left"))
			return
		}

		if turn.Delay > 0 {
			select {
			case <-time.After(turn.Delay):
			case <-ctx.Done():
				errCh <- NewProviderError("mock", 0, ctx.Err())
				return
			}
		}

		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		if req.Stream && turn.Text != "" {
			chunks := turn.Chunks
			if len(chunks) == 0 {
				chunks = []string{turn.Text}
			}
			for _, c := range chunks {
				select {
				case <-ctx.Done():
					errCh <- NewProviderError("mock", 0, ctx.Err())
					return
				case respCh <- Response{Partial: true, Text: c}:
				}
			}
		}

		finish := "stop"
		if len(turn.ToolCalls) > 0 {
			finish = "tool_calls"
		}

		respCh <- Response{
			ID:           core.NewID(),
			Text:         turn.Text,
			ToolCalls:    turn.ToolCalls,
			FinishReason: finish,
		}
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
