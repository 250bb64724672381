package agent

import (
	"github.com/hupe1980/agentrun/core"
)

// stepOutcome is how one pass over an ordered sub-agent list ended.
type stepOutcome int

const (
	stepCompleted stepOutcome = iota
	stepFailed                // a child forwarded Control(Error)
	stepCancelled             // a child forwarded Control(Cancelled) or the token fired at a boundary
	stepEscalated             // a child escalated (only when watching for escalation)
	stepEnded                 // end_invocation was requested
	stepStopped               // the consumer went away
)

func (o stepOutcome) String() string {
	switch o {
	case stepCompleted:
		return "completed"
	case stepFailed:
		return "failed"
	case stepCancelled:
		return "cancelled"
	case stepEscalated:
		return "escalated"
	case stepEnded:
		return "ended"
	default:
		return "stopped"
	}
}

// runSequence runs children in order on ic's branch, forwarding every event
// to out. The token is sampled before each child and once more after the
// last one; when it fired the owner emits its own Cancelled. A child's
// terminal event is forwarded as is and ends the pass without a second
// terminal event.
//
// Inside an escalation scope each child runs under a derived token. The
// first Control(Escalate) is forwarded, the child's token is cancelled, the
// rest of its stream is drained and the pass ends as escalated, so no later
// sibling starts.
func runSequence(ic *core.InvocationContext, out chan<- core.Event, owner string, children []core.Agent) stepOutcome {
	for _, child := range children {
		if ic.IsCancelled() {
			return emitCancelled(ic, out, owner, "cancelled before "+child.Name())
		}

		if ic.Ended() {
			return stepEnded
		}

		childIC := ic.ForAgent(child.Name())

		var childToken *core.CancellationToken
		if ic.EscalationStops() {
			childToken = ic.Token.Child()
			childIC = childIC.WithToken(childToken)
		}

		outcome := pipe(ic, out, child.Run(childIC), childToken)

		if childToken != nil {
			childToken.Cancel()
		}

		if outcome != stepCompleted {
			return outcome
		}
	}

	if ic.IsCancelled() {
		return emitCancelled(ic, out, owner, "cancelled")
	}

	if ic.Ended() {
		return stepEnded
	}

	return stepCompleted
}

func emitCancelled(ic *core.InvocationContext, out chan<- core.Event, owner, msg string) stepOutcome {
	ic.LogInfo("agent.composite.cancelled", "agent", owner, "reason", msg)
	ic.Emit(out, ic.NewEvent(owner, core.CancelledPayload(msg)))

	return stepCancelled
}

// pipe forwards a child's stream to out until it closes. A non-nil
// escalationToken enables escalation handling and is cancelled on the first
// Control(Escalate). Events that are drained instead of forwarded are
// discarded from the invocation log.
func pipe(ic *core.InvocationContext, out chan<- core.Event, events <-chan core.Event, escalationToken *core.CancellationToken) stepOutcome {
	outcome := stepCompleted

	for ev := range events {
		if outcome == stepEscalated || outcome == stepStopped {
			ic.Discard(ev)
			continue
		}

		if !ic.Forward(out, ev) {
			outcome = stepStopped
			ic.Discard(ev)

			continue
		}

		switch {
		case ev.IsFatal():
			outcome = stepFailed
		case ev.IsCancelled():
			outcome = stepCancelled
		case escalationToken != nil && ev.IsEscalation():
			outcome = stepEscalated
			escalationToken.Cancel()
		}
	}

	return outcome
}
