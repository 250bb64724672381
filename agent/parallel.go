package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentrun/core"
)

// ParallelAgentOptions configures a ParallelAgent.
type ParallelAgentOptions struct {
	Description string
}

// ParallelAgent coordinates the concurrent execution of multiple child agents.
//
// Each child runs on its own branch (<branch>.<parallel>.<child>), so siblings
// never see each other's events in their history. Events of one child keep
// their relative order; the interleaving across children is whatever order
// they arrive in at the single merging consumer.
//
// Completion:
//   - The agent completes only after every child finished
//   - A child's Control(Error) cancels the remaining children; after the join
//     one aggregate Control(Error(sub_agent_failed)) is emitted
//   - Children's Control(Cancelled) events are absorbed; after the join one
//     aggregate Control(Cancelled) is emitted when the parent token fired or
//     a child was cancelled, unless a failure dominates
//   - Below a LoopAgent, a forwarded Control(Escalate) cancels the siblings
//     and drops the rest of their output
type ParallelAgent struct {
	BaseAgent
}

// NewParallelAgent creates a new parallel execution coordinator.
func NewParallelAgent(name string, subAgents []core.Agent, optFns ...func(o *ParallelAgentOptions)) (*ParallelAgent, error) {
	opts := ParallelAgentOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := validateComposite("parallel", name, subAgents); err != nil {
		return nil, err
	}

	return &ParallelAgent{BaseAgent: NewBaseAgent(name, opts.Description, subAgents...)}, nil
}

// branchContext derives the isolated context for one child. All children
// share token, a child of the parent's token.
func (p *ParallelAgent) branchContext(ic *core.InvocationContext, child core.Agent, token *core.CancellationToken) *core.InvocationContext {
	return ic.WithBranch(p.Name(), child.Name()).ForAgent(child.Name()).WithToken(token)
}

// Run implements core.Agent.
func (p *ParallelAgent) Run(ic *core.InvocationContext) <-chan core.Event {
	ic = ic.ForAgent(p.Name())
	out := ic.NewEventChannel()

	go func() {
		defer close(out)
		p.run(ic, out)
	}()

	return out
}

func (p *ParallelAgent) run(ic *core.InvocationContext, out chan<- core.Event) {
	if ic.IsCancelled() {
		ic.Emit(out, ic.NewEvent(p.Name(), core.CancelledPayload("cancelled before start")))
		return
	}

	if ic.Ended() {
		return
	}

	token := ic.Token.Child()
	defer token.Cancel()

	merged := make(chan core.Event, ic.EventBufferSize)

	var wg sync.WaitGroup

	for _, child := range p.subAgents {
		wg.Add(1)

		go func(c core.Agent) {
			defer wg.Done()

			for ev := range c.Run(p.branchContext(ic, c, token)) {
				select {
				case merged <- ev:
				case <-ic.Context.Done():
				}
			}
		}(child)
	}

	go func() {
		wg.Wait()
		close(merged)
	}()

	ic.LogDebug("agent.parallel.start", "agent", p.Name(), "branch", ic.Branch.String(), "children", len(p.subAgents))

	var (
		failures  []string
		cancelled bool
		escalated bool
		stopped   bool
	)

	for ev := range merged {
		if stopped || escalated {
			ic.Discard(ev)
			continue
		}

		switch {
		case ev.IsFatal():
			failures = append(failures, fmt.Sprintf("%s: %s", ev.Author, ev.Payload.Control.Message))
			ic.LogWarn("agent.parallel.child_failed", "agent", p.Name(), "child", ev.Author, "kind", ev.Payload.Control.ErrorKind)
			ic.Discard(ev)
			token.Cancel()

			continue
		case ev.IsCancelled():
			cancelled = true
			ic.Discard(ev)

			continue
		}

		if !ic.Forward(out, ev) {
			stopped = true
			ic.Discard(ev)
			token.Cancel()

			continue
		}

		if ev.IsEscalation() && ic.EscalationStops() {
			escalated = true
			token.Cancel()
		}
	}

	// Children may finish normally after the parent token fired, for example
	// while waiting on a model call, so the parent token decides as well.
	cancelled = cancelled || ic.IsCancelled()

	switch {
	case stopped, escalated:
	case len(failures) > 0:
		msg := fmt.Sprintf("%d sub-agent(s) failed: %s", len(failures), strings.Join(failures, "; "))
		ic.Emit(out, ic.NewEvent(p.Name(), core.ErrorPayload(core.ErrorKindSubAgentFailed, msg)))
	case cancelled:
		ic.Emit(out, ic.NewEvent(p.Name(), core.CancelledPayload("cancelled")))
	}

	ic.LogDebug("agent.parallel.finished", "agent", p.Name(), "failures", len(failures), "cancelled", cancelled, "escalated", escalated)
}
