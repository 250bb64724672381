// Package flow implements the model-driven leaf agent loop.
//
// A flow assembles a model request through an ordered pipeline of request
// processors (instructions, conversation contents, tool declarations), calls
// the bound model, executes requested tools through a FunctionExecutor and
// feeds the results back until the model produces a final answer, the
// invocation is cancelled, or a fatal condition ends the run.
package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/tool"
)

// FlowAgent defines what a flow needs from the agent it drives.
//
// This interface provides flows with access to agent capabilities without
// exposing the full agent implementation details.
type FlowAgent interface {
	// Name returns the agent name, used as event author.
	Name() string

	// Model returns the language model bound to the agent.
	Model() model.Model

	// Tools returns the tools the model may call. A nil set means no tools.
	Tools() *tool.Set

	// ResolveInstruction returns the raw (unrendered) instruction template.
	ResolveInstruction(ic *core.InvocationContext) (string, error)

	// StreamingEnabled reports whether partial model deltas are forwarded.
	StreamingEnabled() bool

	// MaxHistoryMessages bounds the conversation sent to the model; 0 keeps all.
	MaxHistoryMessages() int

	// ModelTimeout bounds a single model call; 0 disables the timeout.
	ModelTimeout() time.Duration

	// ToolTimeout bounds a single tool call; 0 disables the timeout.
	ToolTimeout() time.Duration

	// OutputKey names the session state key receiving the final answer text.
	// Empty disables the write.
	OutputKey() string
}

// RequestProcessor processes the request before sending it to the model.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the model request before execution.
	ProcessRequest(ic *core.InvocationContext, req *model.Request, agent FlowAgent) error
}

// RequestError is returned by request processors. Kind is the error kind
// reported in the resulting Control(Error) event.
type RequestError struct {
	Processor string
	Kind      string
	Err       error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request processor %s: %v", e.Processor, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// errorKind maps a failure of the model round to the error kind reported in
// the stream.
func errorKind(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Kind != "" {
		return reqErr.Kind
	}

	var provErr *model.ProviderError
	if errors.As(err, &provErr) {
		return core.ErrorKindProvider
	}

	return core.ErrorKindAgent
}
