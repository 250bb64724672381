package core

import (
	"fmt"
	"reflect"
	"strings"
)

// Agent is the capability shared by every node of an agent tree.
//
// Run starts the agent and returns the consumer end of a bounded channel.
// The sequence is lazy, finite and non-restartable: the agent produces
// events only as the consumer receives them and closes the channel when it
// is done. Terminal outcomes are events (Control(Error), Control(Cancelled)),
// never Go errors.
//
// Implementations must:
//   - Sample ic.Token at their suspension points
//   - Send through ic.Emit / ic.Forward so abandoned consumers release them
//   - Treat the tree as immutable; Run may be called concurrently
type Agent interface {
	Name() string
	Description() string
	SubAgents() []Agent
	Run(ic *InvocationContext) <-chan Event
}

// FindAgent performs a depth-first search for name starting at root.
func FindAgent(root Agent, name string) Agent {
	if root == nil {
		return nil
	}
	if root.Name() == name {
		return root
	}
	for _, c := range root.SubAgents() {
		if found := FindAgent(c, name); found != nil {
			return found
		}
	}
	return nil
}

// ValidateTree checks that root forms a strict tree: every agent has a
// non-empty name without branch separators, names are unique, and no agent
// instance is reachable twice (which also rules out cycles).
func ValidateTree(root Agent) error {
	if root == nil {
		return fmt.Errorf("%w: nil root", ErrInvalidAgentTree)
	}

	names := map[string]bool{}
	seen := map[any]bool{}

	var visit func(a Agent, path Branch) error
	visit = func(a Agent, path Branch) error {
		if a == nil {
			return fmt.Errorf("%w: nil sub-agent under %q", ErrInvalidAgentTree, path.String())
		}

		name := a.Name()
		if name == "" {
			return fmt.Errorf("%w: empty agent name under %q", ErrInvalidAgentTree, path.String())
		}
		if strings.Contains(name, BranchSeparator) {
			return fmt.Errorf("%w: agent name %q contains %q", ErrInvalidAgentTree, name, BranchSeparator)
		}

		if reflect.TypeOf(a).Comparable() {
			if seen[a] {
				return fmt.Errorf("%w: agent %q is reachable more than once", ErrInvalidAgentTree, name)
			}
			seen[a] = true
		}

		if names[name] {
			return fmt.Errorf("%w: duplicate agent name %q", ErrInvalidAgentTree, name)
		}
		names[name] = true

		for _, c := range a.SubAgents() {
			if err := visit(c, path.Extend(name)); err != nil {
				return err
			}
		}

		return nil
	}

	return visit(root, nil)
}
