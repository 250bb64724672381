// Package core provides the domain types and contracts of the execution
// engine:
//
//   - Events (immutable records with a tagged Payload) and Sessions
//     (append-only event logs plus key/value state)
//   - InvocationContext (per-run handle: id, session snapshot, branch,
//     cancellation token, tool-call budget) and ToolContext
//   - The Agent capability and agent tree validation
//   - The CancellationRegistry mapping invocation ids to tokens
//   - Storage contracts for sessions, artifacts and memory
//
// Concrete agents, the runner and storage backends live in sibling packages.
package core
