package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/telemetry"
)

// State is a phase of the leaf agent loop.
type State int

const (
	StateAwaitingModel State = iota
	StateExecutingTools
	StateDone
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a BaseFlow.
type Options struct {
	// RequestProcessors run in order before every model call.
	// Default: DefaultRequestProcessors().
	RequestProcessors []RequestProcessor
	// Executor runs tool batches. Default: parallel, order preserving.
	Executor FunctionExecutor
}

// BaseFlow is the single-agent request -> model -> (optional tool loop)
// cycle with pluggable request processors.
//
// The loop moves AwaitingModel -> (ExecutingTools <-> AwaitingModel) and ends
// in Done, Failed or Cancelled. The cancellation token is sampled before each
// model call and before each tool call. Every model round that requests
// tools consumes one unit of the invocation's ToolCallBudget.
type BaseFlow struct {
	agent             FlowAgent
	requestProcessors []RequestProcessor
	executor          FunctionExecutor
}

// NewBaseFlow creates a new basic single-agent flow.
func NewBaseFlow(agent FlowAgent, optFns ...func(o *Options)) *BaseFlow {
	opts := Options{
		RequestProcessors: DefaultRequestProcessors(),
		Executor:          NewParallelFunctionExecutor(DefaultFunctionExecutorConfig()),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &BaseFlow{
		agent:             agent,
		requestProcessors: opts.RequestProcessors,
		executor:          opts.Executor,
	}
}

// AddRequestProcessor appends a request processor; order of registration defines execution order.
func (f *BaseFlow) AddRequestProcessor(processor RequestProcessor) {
	f.requestProcessors = append(f.requestProcessors, processor)
}

// Run launches the flow asynchronously and returns its event stream. The
// channel is closed once the loop reaches a final state.
func (f *BaseFlow) Run(ic *core.InvocationContext) <-chan core.Event {
	out := ic.NewEventChannel()

	go func() {
		defer close(out)

		final := f.run(ic, out)

		ic.LogDebug("agent.flow.finished", "agent", f.agent.Name(), "branch", ic.Branch.String(), "state", final.String())
	}()

	return out
}

// errStopped signals that the consumer went away mid-round.
var errStopped = errors.New("event consumer stopped")

func (f *BaseFlow) run(ic *core.InvocationContext, out chan<- core.Event) State {
	name := f.agent.Name()

	emit := func(ev core.Event) bool { return ic.Emit(out, ev) }

	var (
		state     = StateAwaitingModel
		pending   []core.ToolCall
		iteration int
	)

	for {
		switch state {
		case StateAwaitingModel:
			if ic.IsCancelled() {
				emit(ic.NewEvent(name, core.CancelledPayload("cancelled before model call")))
				return StateCancelled
			}

			iteration++

			resp, err := f.callModel(ic, out, iteration)
			if errors.Is(err, errStopped) {
				return StateCancelled
			}
			if err != nil {
				kind := core.ErrorKindProvider
				if errors.As(err, new(*RequestError)) {
					kind = errorKind(err)
				}

				ic.LogError("agent.model.error", "agent", name, "iteration", iteration, "kind", kind, "error", err.Error())
				emit(ic.NewEvent(name, core.ErrorPayload(kind, err.Error())))

				return StateFailed
			}

			if len(resp.ToolCalls) == 0 {
				ev := ic.NewEvent(name, core.TextPayload(resp.Text))
				ev.TurnComplete = true
				if key := f.agent.OutputKey(); key != "" {
					ev.Actions.StateDelta = map[string]any{key: resp.Text}
				}
				emit(ev)

				return StateDone
			}

			if err := ic.Budget.Increment(); err != nil {
				ic.LogWarn("agent.tool.budget_exceeded", "agent", name, "count", ic.Budget.Count())
				emit(ic.NewEvent(name, core.ErrorPayload(core.ErrorKindToolBudgetExceeded, err.Error())))

				return StateFailed
			}

			if resp.Text != "" {
				if !emit(ic.NewEvent(name, core.TextPayload(resp.Text))) {
					return StateCancelled
				}
			}

			pending = pending[:0]
			for _, call := range resp.ToolCalls {
				if call.CallID == "" {
					call.CallID = core.NewID()
				}
				pending = append(pending, call)

				if !emit(ic.NewEvent(name, core.ToolCallPayload(call))) {
					return StateCancelled
				}
			}

			state = StateExecutingTools

		case StateExecutingTools:
			batch := f.executor.Execute(ic, f.agent, pending, emit)

			switch {
			case batch.Stopped:
				return StateCancelled
			case batch.Cancelled:
				emit(ic.NewEvent(name, core.CancelledPayload("cancelled before tool call")))
				return StateCancelled
			case batch.Escalate:
				emit(ic.NewEvent(name, core.EscalatePayload()))
				return StateDone
			case ic.Ended():
				ic.LogInfo("agent.flow.end_invocation", "agent", name, "iteration", iteration)
				return StateDone
			}

			state = StateAwaitingModel
		}
	}
}

// callModel builds the request, calls the model and forwards streamed
// partials. It returns the final aggregated response.
func (f *BaseFlow) callModel(ic *core.InvocationContext, out chan<- core.Event, iteration int) (*model.Response, error) {
	req := new(model.Request)

	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(ic, req, f.agent); err != nil {
			var reqErr *RequestError
			if errors.As(err, &reqErr) {
				return nil, err
			}

			return nil, &RequestError{Processor: processor.Name(), Kind: core.ErrorKindAgent, Err: err}
		}
	}

	llm := f.agent.Model()
	info := llm.Info()

	ctx := ic.Context

	if timeout := f.agent.ModelTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)

		defer cancel()
	}

	ctx, span := telemetry.StartModelCall(ctx, f.agent.Name(), ic.Branch.String(), info.Provider, info.Name, iteration)

	ic.LogDebug(
		"agent.model.call",
		"agent", f.agent.Name(),
		"model", info.Name,
		"iteration", iteration,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"stream", req.Stream,
	)

	resp, err := f.consume(ctx, ic, out, llm, *req)
	if err == nil && resp.Usage != nil {
		span.SetAttributes(
			telemetry.AttrInputTokens.Int(resp.Usage.PromptTokens),
			telemetry.AttrOutputTokens.Int(resp.Usage.CompletionTokens),
		)
	}

	telemetry.End(span, err)

	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (f *BaseFlow) consume(
	ctx context.Context,
	ic *core.InvocationContext,
	out chan<- core.Event,
	llm model.Model,
	req model.Request,
) (*model.Response, error) {
	respCh, errCh := llm.Generate(ctx, req)

	var (
		final  *model.Response
		genErr error
	)

	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}

			if resp.Partial {
				if !req.Stream || resp.Text == "" {
					continue
				}

				ev := ic.NewEvent(f.agent.Name(), core.TextPayload(resp.Text))
				ev.Partial = true

				if !ic.Forward(out, ev) {
					return nil, errStopped
				}

				continue
			}

			r := resp
			final = &r
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}

			if err != nil && genErr == nil {
				genErr = err
			}
		}
	}

	if genErr != nil {
		return nil, fmt.Errorf("model %s: %w", llm.Info().Name, genErr)
	}

	if final == nil {
		return nil, fmt.Errorf("model %s returned no final response", llm.Info().Name)
	}

	return final, nil
}
