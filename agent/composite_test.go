package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/testutil"
	"github.com/hupe1980/agentrun/model"
)

func newIC(t *testing.T, optFns ...func(o *core.InvocationOptions)) *core.InvocationContext {
	t.Helper()

	sess := testutil.NewSessionBuilder("s1").Build()
	fns := append([]func(o *core.InvocationOptions){func(o *core.InvocationOptions) {
		o.UserMessage = "go"
		o.Budget = core.NewToolCallBudget(20)
	}}, optFns...)

	return core.NewInvocationContext(context.Background(), "inv-1", sess, fns...)
}

func controlKinds(events []core.Event) []core.ControlKind {
	var kinds []core.ControlKind
	for _, ev := range events {
		if ev.Payload.Kind == core.PayloadControl {
			kinds = append(kinds, ev.Payload.Control.Kind)
		}
	}
	return kinds
}

func TestNewSequentialAgent_Validation(t *testing.T) {
	_, err := NewSequentialAgent("seq", nil)
	assert.True(t, errors.Is(err, core.ErrInvalidAgentTree))

	_, err = NewSequentialAgent("", []core.Agent{testutil.NewTextAgent("a", "x")})
	assert.True(t, errors.Is(err, core.ErrInvalidAgentTree))

	_, err = NewSequentialAgent("seq", []core.Agent{nil})
	assert.True(t, errors.Is(err, core.ErrInvalidAgentTree))

	seq, err := NewSequentialAgent("seq", []core.Agent{testutil.NewTextAgent("a", "x")}, func(o *SequentialAgentOptions) {
		o.Description = "runs a"
	})
	require.NoError(t, err)
	assert.Equal(t, "runs a", seq.Description())
	assert.Len(t, seq.SubAgents(), 1)
}

func TestSequentialAgent_RunsChildrenInOrder(t *testing.T) {
	a := testutil.NewTextAgent("a", "a1", "a2")
	b := testutil.NewTextAgent("b", "b1")
	seq, err := NewSequentialAgent("seq", []core.Agent{a, b})
	require.NoError(t, err)

	events := testutil.Collect(seq.Run(newIC(t)))

	assert.Equal(t, []string{"a1", "a2", "b1"}, testutil.Texts(events))
	for _, ev := range events {
		assert.Equal(t, "", ev.Branch)
	}
}

func TestSequentialAgent_LaterStepSeesEarlierEvents(t *testing.T) {
	a := testutil.NewTextAgent("a", "from a")

	var seen []string
	observer := &hookAgent{name: "b", fn: func(ic *core.InvocationContext) {
		for _, ev := range ic.History() {
			if ev.Payload.Kind == core.PayloadText {
				seen = append(seen, ev.Payload.Text)
			}
		}
	}}

	seq, err := NewSequentialAgent("seq", []core.Agent{a, observer})
	require.NoError(t, err)

	testutil.Collect(seq.Run(newIC(t)))

	assert.Contains(t, seen, "from a")
}

func TestSequentialAgent_FailFast(t *testing.T) {
	failing := testutil.NewScriptedAgent("a",
		testutil.TextStep("partial work"),
		testutil.Step{Payload: core.ErrorPayload(core.ErrorKindProvider, "boom")},
	)
	b := testutil.NewTextAgent("b", "never")
	seq, err := NewSequentialAgent("seq", []core.Agent{failing, b})
	require.NoError(t, err)

	events := testutil.Collect(seq.Run(newIC(t)))

	require.Len(t, events, 2)
	assert.True(t, events[1].IsFatal())
	assert.Equal(t, "a", events[1].Author)
	assert.Equal(t, 0, b.Runs())
}

func TestSequentialAgent_CancelledBetweenSteps(t *testing.T) {
	ic := newIC(t)

	canceller := &hookAgent{name: "a", fn: func(ic *core.InvocationContext) { ic.Token.Cancel() }}
	b := testutil.NewTextAgent("b", "never")
	seq, err := NewSequentialAgent("seq", []core.Agent{canceller, b})
	require.NoError(t, err)

	events := testutil.Collect(seq.Run(ic))

	require.Len(t, events, 2)
	assert.True(t, events[1].IsCancelled())
	assert.Equal(t, "seq", events[1].Author)
	assert.Equal(t, 0, b.Runs())
}

func TestSequentialAgent_EndInvocation(t *testing.T) {
	ender := &hookAgent{name: "a", fn: func(ic *core.InvocationContext) { ic.EndInvocation() }}
	b := testutil.NewTextAgent("b", "never")
	seq, err := NewSequentialAgent("seq", []core.Agent{ender, b})
	require.NoError(t, err)

	events := testutil.Collect(seq.Run(newIC(t)))

	assert.Equal(t, []string{"a done"}, testutil.Texts(events))
	assert.Empty(t, controlKinds(events))
	assert.Equal(t, 0, b.Runs())
}

func TestParallelAgent_BranchIsolation(t *testing.T) {
	a := testutil.NewTextAgent("a", "a1", "a2", "a3")
	b := testutil.NewTextAgent("b", "b1", "b2")
	par, err := NewParallelAgent("par", []core.Agent{a, b})
	require.NoError(t, err)

	events := testutil.Collect(par.Run(newIC(t)))

	require.Len(t, events, 5)
	assert.Equal(t, []string{"a1", "a2", "a3"}, testutil.Texts(testutil.ByAuthor(events, "a")))
	assert.Equal(t, []string{"b1", "b2"}, testutil.Texts(testutil.ByAuthor(events, "b")))

	for _, ev := range testutil.ByAuthor(events, "a") {
		assert.Equal(t, "par.a", ev.Branch)
	}
	for _, ev := range testutil.ByAuthor(events, "b") {
		assert.Equal(t, "par.b", ev.Branch)
	}
}

func TestParallelAgent_SiblingsDoNotSeeEachOther(t *testing.T) {
	a := testutil.NewTextAgent("a", "secret of a")

	seen := make(chan []string, 1)
	observer := &hookAgent{name: "b", fn: func(ic *core.InvocationContext) {
		// Give a time to emit before reading history.
		time.Sleep(20 * time.Millisecond)

		var texts []string
		for _, ev := range ic.History() {
			if ev.Payload.Kind == core.PayloadText {
				texts = append(texts, ev.Payload.Text)
			}
		}
		seen <- texts
	}}

	par, err := NewParallelAgent("par", []core.Agent{a, observer})
	require.NoError(t, err)

	testutil.Collect(par.Run(newIC(t)))

	assert.NotContains(t, <-seen, "secret of a")
}

func TestParallelAgent_CancelEmitsSingleCancelled(t *testing.T) {
	ic := newIC(t)

	a := testutil.NewBlockingAgent("a")
	b := testutil.NewBlockingAgent("b")
	par, err := NewParallelAgent("par", []core.Agent{a, b})
	require.NoError(t, err)

	out := par.Run(ic)

	go func() {
		<-a.Started
		<-b.Started
		ic.Token.Cancel()
	}()

	events := testutil.Collect(out)

	assert.ElementsMatch(t, []string{"a working", "b working"}, testutil.Texts(events))
	assert.Equal(t, []core.ControlKind{core.ControlCancelled}, controlKinds(events))
	assert.Equal(t, "par", events[len(events)-1].Author)
}

func TestParallelAgent_CancelWhileChildrenAwaitModel(t *testing.T) {
	ic := newIC(t)

	slowLeaf := func(name string) core.Agent {
		m := model.NewMockModel(name, model.Turn{Text: name + " answer", Delay: 100 * time.Millisecond})
		leaf, err := NewModelAgent(name, m)
		require.NoError(t, err)

		return leaf
	}

	par, err := NewParallelAgent("par", []core.Agent{slowLeaf("a"), slowLeaf("b")})
	require.NoError(t, err)

	time.AfterFunc(20*time.Millisecond, ic.Token.Cancel)

	events := testutil.Collect(par.Run(ic))

	require.Equal(t, []core.ControlKind{core.ControlCancelled}, controlKinds(events))
	assert.Equal(t, "par", events[len(events)-1].Author)
}

func TestParallelAgent_AbsorbedTerminalsLeaveNoHistory(t *testing.T) {
	ic := newIC(t)

	blocking := testutil.NewBlockingAgent("slow")
	failing := testutil.NewScriptedAgent("bad",
		testutil.Step{Payload: core.ErrorPayload(core.ErrorKindProvider, "boom"), Delay: 10 * time.Millisecond},
	)
	par, err := NewParallelAgent("par", []core.Agent{blocking, failing})
	require.NoError(t, err)

	events := testutil.Collect(par.Run(ic))

	recorded := ic.InvocationEvents()
	assert.Equal(t, controlKinds(events), controlKinds(recorded))
	assert.Equal(t, "par", recorded[len(recorded)-1].Author)
}

func TestParallelAgent_FailureCancelsSiblings(t *testing.T) {
	blocking := testutil.NewBlockingAgent("slow")
	failing := testutil.NewScriptedAgent("bad",
		testutil.Step{Payload: core.ErrorPayload(core.ErrorKindProvider, "boom"), Delay: 10 * time.Millisecond},
	)
	par, err := NewParallelAgent("par", []core.Agent{blocking, failing})
	require.NoError(t, err)

	events := testutil.Collect(par.Run(newIC(t)))

	require.Equal(t, []core.ControlKind{core.ControlError}, controlKinds(events))

	last := events[len(events)-1]
	assert.Equal(t, "par", last.Author)
	assert.Equal(t, core.ErrorKindSubAgentFailed, last.Payload.Control.ErrorKind)
	assert.Contains(t, last.Payload.Control.Message, "bad: boom")
}

func TestParallelAgent_AlreadyCancelled(t *testing.T) {
	ic := newIC(t)
	ic.Token.Cancel()

	a := testutil.NewTextAgent("a", "x")
	par, err := NewParallelAgent("par", []core.Agent{a})
	require.NoError(t, err)

	events := testutil.Collect(par.Run(ic))

	require.Len(t, events, 1)
	assert.True(t, events[0].IsCancelled())
	assert.Equal(t, 0, a.Runs())
}

func TestNewLoopAgent_Validation(t *testing.T) {
	_, err := NewLoopAgent("loop", []core.Agent{testutil.NewTextAgent("a", "x")}, func(o *LoopAgentOptions) {
		o.MaxIterations = -1
	})
	assert.True(t, errors.Is(err, core.ErrInvalidAgentTree))

	l, err := NewLoopAgent("loop", []core.Agent{testutil.NewTextAgent("a", "x")})
	require.NoError(t, err)
	assert.Equal(t, 0, l.MaxIterations())
}

func TestLoopAgent_MaxIterationsReached(t *testing.T) {
	a := testutil.NewTextAgent("a", "tick")
	loop, err := NewLoopAgent("loop", []core.Agent{a}, func(o *LoopAgentOptions) {
		o.MaxIterations = 3
	})
	require.NoError(t, err)

	events := testutil.Collect(loop.Run(newIC(t)))

	assert.Equal(t, 3, a.Runs())
	assert.Equal(t, []string{"tick", "tick", "tick"}, testutil.Texts(events))

	last := events[len(events)-1]
	assert.True(t, last.IsMaxIterationsReached())
	assert.Equal(t, "loop", last.Author)
}

func TestLoopAgent_EscalateStopsLoop(t *testing.T) {
	worker := testutil.NewTextAgent("worker", "draft")
	checker := testutil.NewScriptedAgent("checker",
		testutil.TextStep("good enough"),
		testutil.Step{Payload: core.EscalatePayload()},
		testutil.TextStep("never forwarded"),
	)
	after := testutil.NewTextAgent("after", "never")

	loop, err := NewLoopAgent("loop", []core.Agent{worker, checker, after})
	require.NoError(t, err)

	events := testutil.Collect(loop.Run(newIC(t)))

	assert.Equal(t, []string{"draft", "good enough"}, testutil.Texts(events))
	assert.Equal(t, []core.ControlKind{core.ControlEscalate}, controlKinds(events))
	assert.Equal(t, 1, worker.Runs())
	assert.Equal(t, 0, after.Runs())
}

func TestLoopAgent_EscalationInsideSequentialEndsPass(t *testing.T) {
	esc := testutil.NewScriptedAgent("esc", testutil.Step{Payload: core.EscalatePayload()})
	after := testutil.NewTextAgent("after", "side effect")

	pass, err := NewSequentialAgent("pass", []core.Agent{esc, after})
	require.NoError(t, err)

	loop, err := NewLoopAgent("loop", []core.Agent{pass}, func(o *LoopAgentOptions) {
		o.MaxIterations = 3
	})
	require.NoError(t, err)

	ic := newIC(t)
	events := testutil.Collect(loop.Run(ic))

	assert.Equal(t, []core.ControlKind{core.ControlEscalate}, controlKinds(events))
	assert.Equal(t, 1, esc.Runs())
	assert.Equal(t, 0, after.Runs())
	assert.Empty(t, testutil.Texts(ic.InvocationEvents()))
}

func TestLoopAgent_EscalationInsideParallelStopsSiblings(t *testing.T) {
	esc := testutil.NewScriptedAgent("esc", testutil.Step{Payload: core.EscalatePayload(), Delay: 10 * time.Millisecond})
	sibling := testutil.NewBlockingAgent("sibling")

	par, err := NewParallelAgent("fan", []core.Agent{esc, sibling})
	require.NoError(t, err)

	loop, err := NewLoopAgent("loop", []core.Agent{par}, func(o *LoopAgentOptions) {
		o.MaxIterations = 3
	})
	require.NoError(t, err)

	events := testutil.Collect(loop.Run(newIC(t)))

	assert.Equal(t, []core.ControlKind{core.ControlEscalate}, controlKinds(events))
	assert.Equal(t, 1, esc.Runs())
}

func TestLoopAgent_DrainedEventsLeaveNoHistory(t *testing.T) {
	checker := testutil.NewScriptedAgent("checker",
		testutil.TextStep("good"),
		testutil.Step{Payload: core.EscalatePayload()},
		testutil.TextStep("never forwarded"),
	)
	loop, err := NewLoopAgent("loop", []core.Agent{checker})
	require.NoError(t, err)

	ic := newIC(t)
	events := testutil.Collect(loop.Run(ic))

	assert.Equal(t, []string{"good"}, testutil.Texts(events))
	assert.Equal(t, []string{"good"}, testutil.Texts(ic.InvocationEvents()))
	assert.Equal(t, []core.ControlKind{core.ControlEscalate}, controlKinds(ic.InvocationEvents()))
}

func TestLoopAgent_ChildErrorEndsLoop(t *testing.T) {
	failing := testutil.NewScriptedAgent("a", testutil.Step{Payload: core.ErrorPayload(core.ErrorKindAgent, "broken")})
	loop, err := NewLoopAgent("loop", []core.Agent{failing}, func(o *LoopAgentOptions) {
		o.MaxIterations = 5
	})
	require.NoError(t, err)

	events := testutil.Collect(loop.Run(newIC(t)))

	require.Len(t, events, 1)
	assert.True(t, events[0].IsFatal())
	assert.Equal(t, 1, failing.Runs())
}

func TestLoopAgent_CancelDuringInterval(t *testing.T) {
	ic := newIC(t)

	a := testutil.NewTextAgent("a", "tick")
	loop, err := NewLoopAgent("loop", []core.Agent{a}, func(o *LoopAgentOptions) {
		o.Interval = time.Hour
	})
	require.NoError(t, err)

	out := loop.Run(ic)

	first := <-out
	assert.Equal(t, "tick", first.Payload.Text)

	ic.Token.Cancel()

	rest := testutil.Collect(out)
	require.Len(t, rest, 1)
	assert.True(t, rest[0].IsCancelled())
	assert.Equal(t, "loop", rest[0].Author)
}

func TestNestedTree_ParallelInsideSequential(t *testing.T) {
	par, err := NewParallelAgent("research", []core.Agent{
		testutil.NewTextAgent("web", "w"),
		testutil.NewTextAgent("docs", "d"),
	})
	require.NoError(t, err)

	seq, err := NewSequentialAgent("pipeline", []core.Agent{par, testutil.NewTextAgent("writer", "report")})
	require.NoError(t, err)

	events := testutil.Collect(seq.Run(newIC(t)))

	require.Len(t, events, 3)
	assert.Equal(t, "report", events[2].Payload.Text)
	assert.Equal(t, "", events[2].Branch)
	assert.Equal(t, "research.web", testutil.ByAuthor(events, "web")[0].Branch)

	found := seq.FindAgent("docs")
	require.NotNil(t, found)
	assert.Equal(t, "docs", found.Name())
}

// hookAgent runs fn, then emits "<name> done".
type hookAgent struct {
	name string
	fn   func(ic *core.InvocationContext)
}

func (a *hookAgent) Name() string            { return a.name }
func (a *hookAgent) Description() string     { return "observer" }
func (a *hookAgent) SubAgents() []core.Agent { return nil }

func (a *hookAgent) Run(ic *core.InvocationContext) <-chan core.Event {
	out := ic.NewEventChannel()

	go func() {
		defer close(out)
		a.fn(ic)
		ic.Emit(out, ic.NewEvent(a.name, core.TextPayload(a.name+" done")))
	}()

	return out
}
