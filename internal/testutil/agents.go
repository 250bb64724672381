package testutil

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentrun/core"
)

// Step is one scripted emission of a ScriptedAgent.
type Step struct {
	Payload core.Payload
	// Delay simulates an external call before the emission.
	Delay   time.Duration
	Actions core.EventActions
}

// TextStep returns a Step emitting text.
func TextStep(text string) Step { return Step{Payload: core.TextPayload(text)} }

// ScriptedAgent emits a fixed sequence of payloads, sampling the cancellation
// token before each one. A terminal payload (error or cancelled) ends the run.
type ScriptedAgent struct {
	name  string
	steps []Step
	runs  atomic.Int32
}

// NewScriptedAgent creates a leaf agent that replays steps on every run.
func NewScriptedAgent(name string, steps ...Step) *ScriptedAgent {
	return &ScriptedAgent{name: name, steps: steps}
}

// NewTextAgent creates a ScriptedAgent emitting one text event per message.
func NewTextAgent(name string, texts ...string) *ScriptedAgent {
	steps := make([]Step, len(texts))
	for i, t := range texts {
		steps[i] = TextStep(t)
	}
	return NewScriptedAgent(name, steps...)
}

func (a *ScriptedAgent) Name() string            { return a.name }
func (a *ScriptedAgent) Description() string     { return "scripted test agent" }
func (a *ScriptedAgent) SubAgents() []core.Agent { return nil }

// Runs returns how many times Run was called.
func (a *ScriptedAgent) Runs() int { return int(a.runs.Load()) }

func (a *ScriptedAgent) Run(ic *core.InvocationContext) <-chan core.Event {
	a.runs.Add(1)
	out := ic.NewEventChannel()

	go func() {
		defer close(out)

		for _, step := range a.steps {
			if ic.IsCancelled() {
				ic.Emit(out, ic.NewEvent(a.name, core.CancelledPayload("cancelled")))
				return
			}

			if step.Delay > 0 {
				select {
				case <-time.After(step.Delay):
				case <-ic.Context.Done():
					return
				}
			}

			ev := ic.NewEvent(a.name, step.Payload)
			ev.Actions = step.Actions
			if !ic.Emit(out, ev) || ev.IsTerminal() {
				return
			}
		}
	}()

	return out
}

// BlockingAgent emits one text event, signals Started, then parks until its
// token is cancelled and finishes with a Cancelled event.
type BlockingAgent struct {
	name    string
	Started chan struct{}
	started atomic.Bool
}

// NewBlockingAgent creates a BlockingAgent.
func NewBlockingAgent(name string) *BlockingAgent {
	return &BlockingAgent{name: name, Started: make(chan struct{})}
}

func (a *BlockingAgent) Name() string            { return a.name }
func (a *BlockingAgent) Description() string     { return "blocks until cancelled" }
func (a *BlockingAgent) SubAgents() []core.Agent { return nil }

func (a *BlockingAgent) Run(ic *core.InvocationContext) <-chan core.Event {
	out := ic.NewEventChannel()

	go func() {
		defer close(out)

		if !ic.Emit(out, ic.NewEvent(a.name, core.TextPayload(a.name+" working"))) {
			return
		}
		if a.started.CompareAndSwap(false, true) {
			close(a.Started)
		}

		select {
		case <-ic.Token.Done():
			ic.Emit(out, ic.NewEvent(a.name, core.CancelledPayload("cancelled")))
		case <-ic.Context.Done():
		}
	}()

	return out
}

// Collect drains ch into a slice.
func Collect(ch <-chan core.Event) []core.Event {
	var events []core.Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

// Texts returns the text payloads of events in order.
func Texts(events []core.Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Payload.Kind == core.PayloadText {
			out = append(out, ev.Payload.Text)
		}
	}
	return out
}

// ByAuthor returns the events authored by name, preserving order.
func ByAuthor(events []core.Event, name string) []core.Event {
	var out []core.Event
	for _, ev := range events {
		if ev.Author == name {
			out = append(out, ev)
		}
	}
	return out
}
