// Package runner is the top-level entry point of an invocation.
//
// Runner.Run resolves (or creates) the session, records the caller's message
// as the first event of the invocation, registers the invocation with the
// cancellation registry and drives the root agent. Every event the tree
// produces is appended to the session before it is handed to the caller, so
// a caller never sees an event that is missing from history.
//
// # Responsibilities
//   - Per-session single-writer appends with strictly increasing sequence numbers
//   - Invocation lifecycle: registration, deadline, cancellation, status
//   - Persist-before-forward streaming; partial events are forwarded only
//   - Memory indexing after each invocation (when configured)
//
// Infrastructure failures that happen before any event exists surface as a
// *core.SessionError from Run. Everything else is an event.
package runner
