package agent

import (
	"github.com/hupe1980/agentrun/core"
)

// SequentialAgentOptions configures a SequentialAgent.
type SequentialAgentOptions struct {
	Description string
}

// SequentialAgent coordinates the execution of multiple child agents in sequence.
//
// Children run strictly in list order on the same branch, so each step sees
// the events of the steps before it in its history. A child's stream is fully
// forwarded before the next child starts.
//
// Termination:
//   - A child ending in Control(Error) stops the sequence (fail-fast)
//   - A child ending in Control(Cancelled) stops the sequence
//   - A cancelled token observed between steps or after the last step emits
//     Control(Cancelled)
//   - Below a LoopAgent, a forwarded Control(Escalate) ends the sequence
//   - end_invocation stops the sequence without a terminal event
type SequentialAgent struct {
	BaseAgent
}

// NewSequentialAgent creates a new sequential execution coordinator.
func NewSequentialAgent(name string, subAgents []core.Agent, optFns ...func(o *SequentialAgentOptions)) (*SequentialAgent, error) {
	opts := SequentialAgentOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := validateComposite("sequential", name, subAgents); err != nil {
		return nil, err
	}

	return &SequentialAgent{BaseAgent: NewBaseAgent(name, opts.Description, subAgents...)}, nil
}

// Run implements core.Agent.
func (s *SequentialAgent) Run(ic *core.InvocationContext) <-chan core.Event {
	ic = ic.ForAgent(s.Name())
	out := ic.NewEventChannel()

	go func() {
		defer close(out)

		ic.LogDebug("agent.sequential.start", "agent", s.Name(), "branch", ic.Branch.String(), "steps", len(s.subAgents))

		outcome := runSequence(ic, out, s.Name(), s.subAgents)

		ic.LogDebug("agent.sequential.finished", "agent", s.Name(), "outcome", outcome.String())
	}()

	return out
}
