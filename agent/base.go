package agent

import (
	"fmt"

	"github.com/hupe1980/agentrun/core"
)

// BaseAgent bundles identity and the owned sub-agent list. Embed it in
// concrete agent implementations and supply a Run method to satisfy the
// core.Agent interface. A BaseAgent is immutable after construction, so the
// embedding agent can serve concurrent invocations.
type BaseAgent struct {
	name        string       // Human-readable name, also the branch segment
	description string       // Detailed description of agent's purpose
	subAgents   []core.Agent // Child agents owned by this agent
}

// NewBaseAgent constructs a BaseAgent. An empty description is replaced with
// a generated one.
func NewBaseAgent(name, description string, subAgents ...core.Agent) BaseAgent {
	if description == "" {
		description = fmt.Sprintf("Agent %s", name)
	}

	return BaseAgent{
		name:        name,
		description: description,
		subAgents:   append([]core.Agent(nil), subAgents...),
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SubAgents returns a shallow copy of the child agents for safe iteration.
func (b *BaseAgent) SubAgents() []core.Agent {
	result := make([]core.Agent, len(b.subAgents))
	copy(result, b.subAgents)

	return result
}

// FindAgent performs a depth-first search over the children for name.
// Use core.FindAgent to include the receiver itself.
func (b *BaseAgent) FindAgent(name string) core.Agent {
	for _, child := range b.subAgents {
		if found := core.FindAgent(child, name); found != nil {
			return found
		}
	}

	return nil
}

// validateComposite checks the constructor arguments shared by the
// sequential, parallel and loop agents.
func validateComposite(kind, name string, subAgents []core.Agent) error {
	if name == "" {
		return fmt.Errorf("%w: %s agent requires a name", core.ErrInvalidAgentTree, kind)
	}

	if len(subAgents) == 0 {
		return fmt.Errorf("%w: %s agent %q requires at least one sub-agent", core.ErrInvalidAgentTree, kind, name)
	}

	for i, c := range subAgents {
		if c == nil {
			return fmt.Errorf("%w: %s agent %q has nil sub-agent at index %d", core.ErrInvalidAgentTree, kind, name, i)
		}
	}

	return nil
}
