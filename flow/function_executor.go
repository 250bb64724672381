package flow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/telemetry"
	"github.com/hupe1980/agentrun/tool"
)

// FunctionExecutor executes a batch of tool calls possibly in parallel and
// emits one ToolResult event per executed call through emit. Implementations
// must:
//   - Check the cancellation token before starting each call
//   - Never panic (recover internally and report a ToolResult error)
//   - Apply ToolContext accumulated actions to emitted events
//
// emit returns false when the consumer is gone; the executor then stops
// emitting.
type FunctionExecutor interface {
	Execute(ic *core.InvocationContext, agent FlowAgent, calls []core.ToolCall, emit func(core.Event) bool) BatchResult
}

// BatchResult summarizes one executed tool batch.
type BatchResult struct {
	// Executed is the number of calls that ran and produced a result.
	Executed int
	// Escalate is set when any tool called ToolContext.Escalate.
	Escalate bool
	// Cancelled is set when the token fired before every call started.
	Cancelled bool
	// Stopped is set when emit reported that the consumer is gone.
	Stopped bool
}

// FunctionExecutorConfig configures the default parallel executor.
type FunctionExecutorConfig struct {
	MaxParallel    int  // 0 or <1 => no explicit limit (len(calls))
	PreserveOrder  bool // if true, buffer results and emit in original order
	LogStartEvents bool // log a start line per function
}

// DefaultFunctionExecutorConfig runs calls concurrently and emits results in
// call order.
func DefaultFunctionExecutorConfig() FunctionExecutorConfig {
	return FunctionExecutorConfig{PreserveOrder: true}
}

// parallelFunctionExecutor is the default implementation.
type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs a new executor with the given config.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &parallelFunctionExecutor{cfg: cfg}
}

type callOutcome struct {
	event    core.Event
	escalate bool
	done     bool
}

func (e *parallelFunctionExecutor) Execute(
	ic *core.InvocationContext,
	agent FlowAgent,
	calls []core.ToolCall,
	emit func(core.Event) bool,
) BatchResult {
	var res BatchResult

	n := len(calls)
	if n == 0 {
		return res
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	outcomes := make([]callOutcome, n) // used only if PreserveOrder

	var (
		mu  sync.Mutex // protects res and unordered emit
		wg  sync.WaitGroup
		sem = make(chan struct{}, maxPar)
	)

	deliver := func(o callOutcome) {
		if o.escalate {
			res.Escalate = true
		}
		res.Executed++
		if !res.Stopped && !emit(o.event) {
			res.Stopped = true
		}
	}

	batchStart := time.Now()

	for i := range calls {
		sem <- struct{}{}

		if ic.IsCancelled() {
			<-sem
			mu.Lock()
			res.Cancelled = true
			mu.Unlock()

			break
		}

		wg.Add(1)

		go func(idx int, call core.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()

			o := e.executeOne(ic, agent, call)

			mu.Lock()
			defer mu.Unlock()

			if e.cfg.PreserveOrder {
				outcomes[idx] = o
				return
			}

			deliver(o)
		}(i, calls[i])
	}

	wg.Wait()

	if e.cfg.PreserveOrder {
		for _, o := range outcomes {
			if o.done {
				deliver(o)
			}
		}
	}

	ic.LogDebug(
		"agent.functions.batch.complete",
		"agent", agent.Name(),
		"count", n,
		"executed", res.Executed,
		"parallelism", maxPar,
		"preserve_order", e.cfg.PreserveOrder,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return res
}

func (e *parallelFunctionExecutor) executeOne(ic *core.InvocationContext, agent FlowAgent, call core.ToolCall) callOutcome {
	if e.cfg.LogStartEvents {
		ic.LogInfo("agent.function.start", "agent", agent.Name(), "function", call.Name, "function_call_id", call.CallID)
	}

	ctx := ic.Context

	if timeout := agent.ToolTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)

		defer cancel()
	}

	ctx, span := telemetry.StartToolCall(ctx, agent.Name(), call.Name, call.CallID)

	toolCtx := core.NewToolContext(ctx, ic.ForAgent(agent.Name()), call)

	start := time.Now()
	result, abandoned, err := invokeWithDeadline(ctx, toolCtx, agent.Tools(), call)
	dur := time.Since(start)

	telemetry.End(span, err)

	var panicked *panicErr
	if errors.As(err, &panicked) {
		ic.LogError("agent.function.panic", "agent", agent.Name(), "function", call.Name, "recover", panicked.val, "stack", string(panicked.stack))
	}

	ic.LogInfo(
		"agent.function.executed",
		"agent", agent.Name(),
		"function", call.Name,
		"function_call_id", call.CallID,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)

	tr := core.ToolResult{CallID: call.CallID, Name: call.Name}
	if err != nil {
		tr.Error = err.Error()
	} else {
		tr.Result = result
	}

	ev := ic.NewEvent(agent.Name(), core.ToolResultPayload(tr))

	if !abandoned {
		toolCtx.ApplyActions(&ev)
	}

	return callOutcome{
		event:    ev,
		escalate: !abandoned && toolCtx.EscalationRequested(),
		done:     true,
	}
}

// invokeWithDeadline runs the tool and gives up once ctx is done. A tool that
// ignores its context keeps running in the background; its late result and
// actions are discarded.
func invokeWithDeadline(ctx context.Context, toolCtx *core.ToolContext, tools *tool.Set, call core.ToolCall) (any, bool, error) {
	impl, ok := tools.Get(call.Name)
	if !ok {
		return nil, false, tool.NewToolError(call.Name, fmt.Sprintf("tool %s not found", call.Name), tool.CodeNotFound)
	}

	type result struct {
		val any
		err error
	}

	done := make(chan result, 1)

	go func() {
		var r result

		func() { // panic safety
			defer func() {
				if rec := recover(); rec != nil {
					r.err = panicError(rec)
				}
			}()

			args := call.Args
			if args == nil {
				args = map[string]any{}
			}

			r.val, r.err = impl.Call(toolCtx, args)
		}()

		done <- r
	}()

	select {
	case r := <-done:
		return r.val, false, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, true, tool.NewToolError(call.Name, "tool call timed out", tool.CodeTimeout)
		}

		return nil, true, tool.NewToolError(call.Name, ctx.Err().Error(), tool.CodeExecution)
	}
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string {
	return fmt.Sprintf("tool error [%s]: panic recovered: %v", tool.CodePanic, p.val)
}
