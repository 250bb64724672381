// Package agent contains the agent kinds an execution tree is built from:
//
//  1. ModelAgent, the leaf that drives a language model and its tools
//  2. SequentialAgent, ParallelAgent and LoopAgent, which coordinate children
//
// Every agent exposes Run(ic) and returns a channel of core.Event that is
// closed when the agent finished. Composite agents forward their children's
// events in order and add their own control events (Cancelled, Error,
// MaxIterationsReached) only where the child did not already end the run.
//
// Agents hold configuration only. One tree may serve many concurrent
// invocations; per-run state lives in the core.InvocationContext.
package agent
