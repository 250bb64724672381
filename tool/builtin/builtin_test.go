package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/tool"
)

func toolContext(ic *core.InvocationContext, name string) *core.ToolContext {
	return core.NewToolContext(ic.Context, ic, core.ToolCall{CallID: "call-" + name, Name: name})
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"2+2", 4},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"-3 + 5", 2},
		{"2^3^2", 512},
		{"10 % 4", 2},
		{"sqrt(16) + abs(-2)", 6},
		{"1.5 * 2", 3},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	for _, bad := range []string{"", "2+", "1/0", "(1+2", "foo(1)", "2 2", "1..2"} {
		_, err := Evaluate(bad)
		assert.Error(t, err, bad)
	}
}

func TestCalculatorTool(t *testing.T) {
	ic := core.NewInvocationContext(context.Background(), "inv", nil)
	calc := NewCalculator()

	res, err := calc.Call(toolContext(ic, CalculatorName), map[string]any{"expr": "2+2"})
	require.NoError(t, err)
	assert.Equal(t, "4", res)

	_, err = calc.Call(toolContext(ic, CalculatorName), map[string]any{"expr": "1/0"})
	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.CodeExecution, toolErr.Code)
}

func TestExitLoopEscalates(t *testing.T) {
	ic := core.NewInvocationContext(context.Background(), "inv", nil)
	tc := toolContext(ic, ExitLoopName)

	_, err := NewExitLoop().Call(tc, map[string]any{})
	require.NoError(t, err)
	assert.True(t, tc.EscalationRequested())
}

func TestEcho(t *testing.T) {
	ic := core.NewInvocationContext(context.Background(), "inv", nil)
	res, err := NewEcho().Call(toolContext(ic, "echo"), map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res)
}

type fakeMemory struct {
	entries []core.MemoryEntry
	query   string
	limit   int
}

func (f *fakeMemory) AddSession(context.Context, *core.Session) error { return nil }

func (f *fakeMemory) Search(_ context.Context, _, _, query string, limit int) ([]core.MemoryEntry, error) {
	f.query, f.limit = query, limit
	return f.entries, nil
}

func TestLoadMemory(t *testing.T) {
	mem := &fakeMemory{entries: []core.MemoryEntry{{
		Key:    core.SessionKey{AppName: "app", UserID: "u", SessionID: "old"},
		Author: "user",
		Text:   "my cat is called Tom",
	}}}
	ic := core.NewInvocationContext(context.Background(), "inv", nil, func(o *core.InvocationOptions) {
		o.Memory = mem
	})

	res, err := NewLoadMemory().Call(toolContext(ic, "load_memory"), map[string]any{"query": "cat"})
	require.NoError(t, err)
	assert.Equal(t, "cat", mem.query)
	assert.Equal(t, 5, mem.limit)

	hits := res.(map[string]any)["memories"].([]memoryHit)
	require.Len(t, hits, 1)
	assert.Equal(t, "old", hits[0].SessionID)
}

func TestSessionStateTool(t *testing.T) {
	s := core.NewSession(core.SessionKey{SessionID: "s"})
	s.State["color"] = "blue"
	ic := core.NewInvocationContext(context.Background(), "inv", s)
	st := NewSessionState()

	tc := toolContext(ic, st.Name())
	res, err := st.Call(tc, map[string]any{"operation": "get_state", "key": "color"})
	require.NoError(t, err)
	assert.Equal(t, true, res.(map[string]any)["exists"])
	assert.Equal(t, "blue", res.(map[string]any)["value"])

	_, err = st.Call(tc, map[string]any{"operation": "set_state", "key": "color", "value": "red"})
	require.NoError(t, err)
	assert.Equal(t, "red", tc.Actions().StateDelta["color"])

	_, err = st.Call(tc, map[string]any{"operation": "end_invocation"})
	require.NoError(t, err)
	assert.True(t, ic.Ended())

	_, err = st.Call(tc, map[string]any{"operation": "set_state"})
	assert.Error(t, err)

	_, err = st.Call(tc, map[string]any{"operation": "save_artifact", "name": "a.txt", "data": "x"})
	assert.Error(t, err, "no artifact service configured")

	_, err = st.Call(tc, map[string]any{"operation": "nope"})
	assert.Error(t, err)
}

func TestAllHaveUniqueNames(t *testing.T) {
	s, err := tool.NewSet(All()...)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Len())

	_, ok := ByName("calculator")
	assert.True(t, ok)
}
