package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvocationContext_Defaults(t *testing.T) {
	ic := NewInvocationContext(context.Background(), "inv", nil)

	require.NotNil(t, ic.Session)
	require.NotNil(t, ic.Token)
	assert.Equal(t, DefaultEventBufferSize, ic.EventBufferSize)
	assert.Equal(t, DefaultEventBufferSize, cap(ic.NewEventChannel()))
	assert.False(t, ic.IsCancelled())
}

func TestInvocationContext_DerivationDoesNotMutate(t *testing.T) {
	root := NewInvocationContext(context.Background(), "inv", nil)
	a := root.ForAgent("a")
	b := a.WithBranch("fan", "left")
	tok := root.Token.Child()
	c := b.WithToken(tok)

	assert.Empty(t, root.AgentName)
	assert.Equal(t, "a", a.AgentName)
	assert.Empty(t, a.Branch)
	assert.Equal(t, "fan.left", b.Branch.String())
	assert.Same(t, tok, c.Token)
	assert.NotSame(t, tok, b.Token)

	ev := c.NewEvent("a", TextPayload("x"))
	assert.Equal(t, "fan.left", ev.Branch)
}

func TestInvocationContext_SharedLogAndState(t *testing.T) {
	s := NewSession(SessionKey{SessionID: "s"})
	s.State["persisted"] = "yes"
	root := NewInvocationContext(context.Background(), "inv", s)
	child := root.ForAgent("writer")

	out := child.NewEventChannel()
	ev := child.NewEvent("writer", TextPayload("draft"))
	ev.Actions.StateDelta = map[string]any{"draft": "v1"}
	require.True(t, child.Emit(out, ev))

	partial := child.NewEvent("writer", TextPayload("dr"))
	partial.Partial = true
	require.True(t, child.Emit(out, partial))

	assert.Len(t, root.InvocationEvents(), 1)

	v, ok := root.GetState("draft")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	state := root.State()
	assert.Equal(t, "yes", state["persisted"])
	assert.Equal(t, "v1", state["draft"])

	child.EndInvocation()
	assert.True(t, root.Ended())
}

func TestInvocationContext_DiscardWithdrawsEventAndState(t *testing.T) {
	ic := NewInvocationContext(context.Background(), "inv", nil)
	out := ic.NewEventChannel()

	kept := ic.NewEvent("a", TextPayload("kept"))
	kept.Actions.StateDelta = map[string]any{"k": "first"}
	require.True(t, ic.Emit(out, kept))

	dropped := ic.NewEvent("a", TextPayload("dropped"))
	dropped.Actions.StateDelta = map[string]any{"k": "second", "only": true}
	require.True(t, ic.Emit(out, dropped))

	ic.Discard(dropped)
	ic.Discard(ic.NewEvent("a", TextPayload("never recorded")))

	events := ic.InvocationEvents()
	require.Len(t, events, 1)
	assert.Equal(t, kept.ID, events[0].ID)

	v, _ := ic.GetState("k")
	assert.Equal(t, "first", v)

	_, ok := ic.GetState("only")
	assert.False(t, ok)
}

func TestInvocationContext_EscalationScopeIsInherited(t *testing.T) {
	root := NewInvocationContext(context.Background(), "inv", nil)
	assert.False(t, root.EscalationStops())

	scoped := root.WithEscalationScope()
	assert.False(t, root.EscalationStops())
	assert.True(t, scoped.ForAgent("a").WithBranch("par", "b").EscalationStops())
}

func TestInvocationContext_HistoryIsBranchScoped(t *testing.T) {
	root := NewInvocationContext(context.Background(), "inv", nil)
	out := make(chan Event, 8)

	left := root.WithBranch("fan", "left")
	right := root.WithBranch("fan", "right")

	root.Emit(out, root.NewEvent(UserAuthor, TextPayload("question")))
	left.Emit(out, left.NewEvent("left", TextPayload("from left")))
	right.Emit(out, right.NewEvent("right", TextPayload("from right")))

	h := left.History()
	require.Len(t, h, 2)
	assert.Equal(t, "question", h[0].Payload.Text)
	assert.Equal(t, "from left", h[1].Payload.Text)

	// Ancestors do not see descendants' events.
	assert.Len(t, root.History(), 1)
}

func TestInvocationContext_ForwardUnblocksOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ic := NewInvocationContext(ctx, "inv", nil)
	cancel()

	assert.False(t, ic.Forward(make(chan Event), ic.NewEvent("a", TextPayload("x"))))
}
