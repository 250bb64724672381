package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrun/logging"
)

// ToolContext provides a constrained, auditable surface for tool
// implementations invoked by an agent. It accumulates EventActions (state
// deltas, artifact versions) and control requests (escalate, end invocation)
// without touching the session; the executing agent attaches them to the
// ToolResult event, so they are persisted through the normal append path.
type ToolContext struct {
	ctx     context.Context
	ic      *InvocationContext
	call    ToolCall
	actions EventActions

	escalate bool
	mu       sync.Mutex

	*runLogger
}

// NewToolContext binds a tool call to its invocation. ctx bounds the tool
// execution (typically the invocation context plus a per-call timeout).
func NewToolContext(ctx context.Context, ic *InvocationContext, call ToolCall) *ToolContext {
	return &ToolContext{
		ctx:       ctx,
		ic:        ic,
		call:      call,
		runLogger: ic.runLogger.with("function_call_id", call.CallID),
	}
}

// Context returns the context bounding the tool execution.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// InvocationID returns the invocation the call belongs to.
func (tc *ToolContext) InvocationID() string { return tc.ic.InvocationID }

// SessionKey returns the key of the invocation's session.
func (tc *ToolContext) SessionKey() SessionKey { return tc.ic.SessionKey() }

// FunctionCallID returns the model supplied call id.
func (tc *ToolContext) FunctionCallID() string { return tc.call.CallID }

// ToolName returns the name of the tool being executed.
func (tc *ToolContext) ToolName() string { return tc.call.Name }

// AgentName returns the agent executing the tool.
func (tc *ToolContext) AgentName() string { return tc.ic.AgentName }

// Branch returns the branch the tool runs on.
func (tc *ToolContext) Branch() Branch { return tc.ic.Branch }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.runLogger.Logger() }

// GetState returns a value staged by this call, else the invocation's view.
func (tc *ToolContext) GetState(k string) (any, bool) {
	tc.mu.Lock()
	v, ok := tc.actions.StateDelta[k]
	tc.mu.Unlock()

	if ok {
		return v, true
	}

	return tc.ic.GetState(k)
}

// SetState stages a state mutation. It becomes visible to the rest of the
// invocation once the ToolResult carrying it is emitted.
func (tc *ToolContext) SetState(k string, v any) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.actions.StateDelta == nil {
		tc.actions.StateDelta = map[string]any{}
	}
	tc.actions.StateDelta[k] = v
}

// Escalate requests that the enclosing loop terminate after this tool batch.
func (tc *ToolContext) Escalate() {
	tc.mu.Lock()
	tc.escalate = true
	tc.mu.Unlock()

	tc.LogInfo("tool.escalate.request", "agent", tc.AgentName())
}

// EscalationRequested reports whether Escalate was called.
func (tc *ToolContext) EscalationRequested() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	return tc.escalate
}

// EndInvocation asks the whole invocation to stop after the current step.
func (tc *ToolContext) EndInvocation() {
	tc.ic.EndInvocation()
	tc.LogInfo("tool.end_invocation.request", "agent", tc.AgentName())
}

// SaveArtifact stores data and records the new version in the artifact delta.
func (tc *ToolContext) SaveArtifact(name string, data []byte) (int, error) {
	if tc.ic.Artifacts == nil {
		return 0, fmt.Errorf("artifact service not configured")
	}

	version, err := tc.ic.Artifacts.Save(tc.ctx, tc.SessionKey(), name, data)
	if err != nil {
		return 0, err
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.actions.ArtifactDelta == nil {
		tc.actions.ArtifactDelta = map[string]int{}
	}
	tc.actions.ArtifactDelta[name] = version

	return version, nil
}

// LoadArtifact retrieves an artifact version; version 0 selects the latest.
func (tc *ToolContext) LoadArtifact(name string, version int) ([]byte, error) {
	if tc.ic.Artifacts == nil {
		return nil, fmt.Errorf("artifact service not configured")
	}

	return tc.ic.Artifacts.Load(tc.ctx, tc.SessionKey(), name, version)
}

// ListArtifacts returns artifact names stored for the session.
func (tc *ToolContext) ListArtifacts() ([]string, error) {
	if tc.ic.Artifacts == nil {
		return nil, fmt.Errorf("artifact service not configured")
	}

	return tc.ic.Artifacts.List(tc.ctx, tc.SessionKey())
}

// SearchMemory recalls fragments from the user's earlier sessions.
func (tc *ToolContext) SearchMemory(query string, limit int) ([]MemoryEntry, error) {
	if tc.ic.Memory == nil {
		return nil, fmt.Errorf("memory service not configured")
	}

	key := tc.SessionKey()

	return tc.ic.Memory.Search(tc.ctx, key.AppName, key.UserID, query, limit)
}

// Actions returns a copy of the accumulated actions.
func (tc *ToolContext) Actions() EventActions {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	out := EventActions{}
	if len(tc.actions.StateDelta) > 0 {
		out.StateDelta = make(map[string]any, len(tc.actions.StateDelta))
		for k, v := range tc.actions.StateDelta {
			out.StateDelta[k] = v
		}
	}
	if len(tc.actions.ArtifactDelta) > 0 {
		out.ArtifactDelta = make(map[string]int, len(tc.actions.ArtifactDelta))
		for k, v := range tc.actions.ArtifactDelta {
			out.ArtifactDelta[k] = v
		}
	}

	return out
}

// ApplyActions merges the accumulated actions into ev.
func (tc *ToolContext) ApplyActions(ev *Event) {
	actions := tc.Actions()

	if len(actions.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		for k, v := range actions.StateDelta {
			ev.Actions.StateDelta[k] = v
		}
	}

	if len(actions.ArtifactDelta) > 0 {
		if ev.Actions.ArtifactDelta == nil {
			ev.Actions.ArtifactDelta = map[string]int{}
		}
		for k, v := range actions.ArtifactDelta {
			ev.Actions.ArtifactDelta[k] = v
		}
	}
}
