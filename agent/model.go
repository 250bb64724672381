package agent

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/flow"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/tool"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Description        string
	Instruction        Instruction
	Tools              []tool.Tool
	EnableStreaming    bool
	ModelTimeout       time.Duration
	ToolTimeout        time.Duration
	MaxHistoryMessages int
	OutputKey          string
	// MaxParallelTools bounds concurrent tool calls of one model turn; 0 runs
	// the whole batch concurrently.
	MaxParallelTools int
}

// ModelAgent is the leaf of an agent tree: it drives one language model and
// its tools through the flow state machine.
//
// This agent implementation supports:
//   - Instructions rendered against session state
//   - Function calling with registered tools
//   - Streaming responses for real-time interactions
//   - Saving the final answer to session state with an output key
//   - Per-call model and tool timeouts
//
// ModelAgent embeds BaseAgent and holds no per-run state, so one instance
// serves any number of concurrent invocations.
type ModelAgent struct {
	BaseAgent
	llm                model.Model
	instruction        Instruction
	tools              *tool.Set
	enableStreaming    bool
	modelTimeout       time.Duration
	toolTimeout        time.Duration
	maxHistoryMessages int
	outputKey          string
	flow               *flow.BaseFlow
}

// NewModelAgent creates a new model-based agent with sensible defaults.
//
// The agent is initialized with:
//   - A generic assistant instruction naming the agent
//   - No tools
//   - Streaming disabled
//   - 15-second timeout for tool calls, no model call timeout
//   - 20-message conversation history limit
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) (*ModelAgent, error) {
	opts := ModelAgentOptions{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		ToolTimeout:        15 * time.Second,
		MaxHistoryMessages: 20,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if name == "" {
		return nil, fmt.Errorf("%w: model agent requires a name", core.ErrInvalidAgentTree)
	}

	if llm == nil {
		return nil, fmt.Errorf("%w: model agent %q requires a model", core.ErrInvalidAgentTree, name)
	}

	tools, err := tool.NewSet(opts.Tools...)
	if err != nil {
		return nil, fmt.Errorf("model agent %q: %w", name, err)
	}

	a := &ModelAgent{
		BaseAgent:          NewBaseAgent(name, opts.Description),
		llm:                llm,
		instruction:        opts.Instruction,
		tools:              tools,
		enableStreaming:    opts.EnableStreaming,
		modelTimeout:       opts.ModelTimeout,
		toolTimeout:        opts.ToolTimeout,
		maxHistoryMessages: opts.MaxHistoryMessages,
		outputKey:          opts.OutputKey,
	}

	a.flow = flow.NewBaseFlow(a, func(o *flow.Options) {
		o.Executor = flow.NewParallelFunctionExecutor(flow.FunctionExecutorConfig{
			MaxParallel:   opts.MaxParallelTools,
			PreserveOrder: true,
		})
	})

	return a, nil
}

// Model returns the language model instance.
func (a *ModelAgent) Model() model.Model { return a.llm }

// Tools returns the registered tools.
func (a *ModelAgent) Tools() *tool.Set { return a.tools }

// HasTool checks if a tool is registered with the agent.
func (a *ModelAgent) HasTool(name string) bool {
	_, ok := a.tools.Get(name)
	return ok
}

// StreamingEnabled returns whether streaming responses are enabled.
func (a *ModelAgent) StreamingEnabled() bool { return a.enableStreaming }

// MaxHistoryMessages returns the maximum number of conversation history messages to keep.
func (a *ModelAgent) MaxHistoryMessages() int { return a.maxHistoryMessages }

// ModelTimeout returns the per model call timeout.
func (a *ModelAgent) ModelTimeout() time.Duration { return a.modelTimeout }

// ToolTimeout returns the per tool call timeout.
func (a *ModelAgent) ToolTimeout() time.Duration { return a.toolTimeout }

// OutputKey returns the session state key for saving responses.
func (a *ModelAgent) OutputKey() string { return a.outputKey }

// ResolveInstruction produces the instruction template by resolving static
// or dynamic instruction sources.
func (a *ModelAgent) ResolveInstruction(ic *core.InvocationContext) (string, error) {
	return a.instruction.Resolve(ic)
}

// Run implements core.Agent by streaming the flow's events.
func (a *ModelAgent) Run(ic *core.InvocationContext) <-chan core.Event {
	ic = ic.ForAgent(a.Name())

	ic.LogDebug(
		"agent.run.start",
		"agent", a.Name(),
		"invocation_id", ic.InvocationID,
		"branch", ic.Branch.String(),
		"tools", a.tools.Len(),
	)

	return a.flow.Run(ic)
}
