// Package agentrun is a thin façade over runner.Runner for applications that
// want one object to run an agent tree. Most applications:
//  1. Build an agent tree from the agent package (model, sequential, parallel, loop)
//  2. Create an AgentRun via New (optionally overriding the in-memory services)
//  3. Run invocations asynchronously (Run) or synchronously (RunSync)
//
// Sessions, artifacts and memory default to in-memory implementations; the
// session/sqlite package provides a durable session store.
package agentrun

import (
	"context"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/runner"
)

// Options configures the AgentRun instance. It is the runner's option set.
type Options = runner.Options

// RunRequest describes one invocation.
type RunRequest = runner.RunRequest

// AgentRun aggregates the runner for one agent tree.
type AgentRun struct {
	runner *runner.Runner
}

// New creates an AgentRun for the tree rooted at root. The tree is validated
// once and must not change afterwards.
func New(root core.Agent, optFns ...func(o *Options)) (*AgentRun, error) {
	r, err := runner.New(root, optFns...)
	if err != nil {
		return nil, err
	}

	return &AgentRun{runner: r}, nil
}

// Runner exposes the underlying runner.
func (a *AgentRun) Runner() *runner.Runner { return a.runner }

// Run starts an asynchronous invocation.
func (a *AgentRun) Run(ctx context.Context, req RunRequest) (*runner.Invocation, error) {
	return a.runner.Run(ctx, req)
}

// RunSync runs an invocation to completion and returns its invocation id and
// every event it produced. When ctx ends first the events collected so far
// are returned with ctx.Err().
func (a *AgentRun) RunSync(ctx context.Context, req RunRequest) (string, []core.Event, error) {
	inv, err := a.runner.Run(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event

	for {
		select {
		case <-ctx.Done():
			return inv.ID, events, ctx.Err()
		case ev, ok := <-inv.Events:
			if !ok {
				if err, ok := <-inv.Errors; ok && err != nil {
					return inv.ID, events, err
				}

				return inv.ID, events, ctx.Err()
			}

			events = append(events, ev)
		}
	}
}

// Cancel requests cancellation of a running invocation. Unknown ids return
// false.
func (a *AgentRun) Cancel(invocationID string) bool { return a.runner.Cancel(invocationID) }

// Status reports the lifecycle state of an invocation.
func (a *AgentRun) Status(invocationID string) core.InvocationStatus {
	return a.runner.Status(invocationID)
}
