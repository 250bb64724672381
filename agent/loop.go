package agent

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentrun/core"
)

// LoopAgentOptions configures a LoopAgent.
type LoopAgentOptions struct {
	Description string
	// MaxIterations bounds the number of passes; 0 means unbounded (only
	// escalation or cancellation end the loop).
	MaxIterations int
	// Interval is a pause between iterations. The pause is cut short by
	// cancellation.
	Interval time.Duration
}

// LoopAgent coordinates the repeated execution of its sub-agents.
//
// Each iteration runs the sub-agents as a SequentialAgent would, on the same
// branch. The loop ends:
//   - on the first Control(Escalate) from any sub-agent, which is forwarded
//   - on a sub-agent's Control(Error) or Control(Cancelled), forwarded as is
//   - with Control(Cancelled) when the token fires at an iteration boundary
//   - with Control(MaxIterationsReached) once MaxIterations passes completed
//   - silently on end_invocation
type LoopAgent struct {
	BaseAgent
	maxIterations int
	interval      time.Duration
}

// NewLoopAgent constructs a looping coordinator.
func NewLoopAgent(name string, subAgents []core.Agent, optFns ...func(o *LoopAgentOptions)) (*LoopAgent, error) {
	opts := LoopAgentOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := validateComposite("loop", name, subAgents); err != nil {
		return nil, err
	}

	if opts.MaxIterations < 0 {
		return nil, fmt.Errorf("%w: loop agent %q has negative max iterations", core.ErrInvalidAgentTree, name)
	}

	return &LoopAgent{
		BaseAgent:     NewBaseAgent(name, opts.Description, subAgents...),
		maxIterations: opts.MaxIterations,
		interval:      opts.Interval,
	}, nil
}

// MaxIterations returns the configured iteration bound (0 = unbounded).
func (l *LoopAgent) MaxIterations() int { return l.maxIterations }

// Run implements core.Agent.
func (l *LoopAgent) Run(ic *core.InvocationContext) <-chan core.Event {
	ic = ic.ForAgent(l.Name())
	out := ic.NewEventChannel()

	go func() {
		defer close(out)
		l.run(ic, out)
	}()

	return out
}

func (l *LoopAgent) run(ic *core.InvocationContext, out chan<- core.Event) {
	ic = ic.WithEscalationScope()

	for i := 1; l.maxIterations == 0 || i <= l.maxIterations; i++ {
		if ic.IsCancelled() {
			ic.Emit(out, ic.NewEvent(l.Name(), core.CancelledPayload(fmt.Sprintf("cancelled before iteration %d", i))))
			return
		}

		if ic.Ended() {
			return
		}

		ic.LogDebug("agent.loop.iteration", "agent", l.Name(), "iteration", i)

		outcome := runSequence(ic, out, l.Name(), l.subAgents)
		if outcome != stepCompleted {
			ic.LogInfo("agent.loop.finished", "agent", l.Name(), "iteration", i, "outcome", outcome.String())
			return
		}

		if l.interval > 0 && (l.maxIterations == 0 || i < l.maxIterations) {
			select {
			case <-time.After(l.interval):
			case <-ic.Token.Done():
			case <-ic.Context.Done():
				return
			}
		}
	}

	ic.LogInfo("agent.loop.max_iterations", "agent", l.Name(), "max_iterations", l.maxIterations)
	ic.Emit(out, ic.NewEvent(l.Name(), core.MaxIterationsReachedPayload(fmt.Sprintf("loop reached %d iterations", l.maxIterations))))
}
