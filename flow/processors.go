package flow

import (
	"fmt"

	"github.com/hupe1980/agentrun/core"
	internalutil "github.com/hupe1980/agentrun/internal/util"
	"github.com/hupe1980/agentrun/model"
)

// DefaultRequestProcessors returns the standard pipeline: instructions,
// conversation contents and tool declarations.
func DefaultRequestProcessors() []RequestProcessor {
	return []RequestProcessor{
		NewInstructionsProcessor(),
		NewContentsProcessor(),
		NewToolsProcessor(),
	}
}

// InstructionsProcessor handles system prompt and instruction processing.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest resolves the agent instruction and renders it against the
// invocation's view of session state.
func (p *InstructionsProcessor) ProcessRequest(ic *core.InvocationContext, req *model.Request, agent FlowAgent) error {
	instructions, err := agent.ResolveInstruction(ic)
	if err != nil {
		return &RequestError{Processor: p.Name(), Kind: core.ErrorKindInstruction, Err: fmt.Errorf("failed to resolve instruction: %w", err)}
	}

	rendered, err := internalutil.RenderTemplate(instructions, ic.State())
	if err != nil {
		return &RequestError{Processor: p.Name(), Kind: core.ErrorKindInstruction, Err: fmt.Errorf("failed to render template: %w", err)}
	}

	ic.LogDebug("agent.instruction.resolved", "agent", agent.Name(), "length", len(rendered))

	req.Instructions = rendered

	return nil
}

// ContentsProcessor converts the branch-visible history into model messages.
//
// Events authored by the agent itself become assistant and tool messages.
// Text from other agents is presented as user context so that a later
// sequential step can build on an earlier one; their tool traffic is omitted.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest fills req.Messages.
func (p *ContentsProcessor) ProcessRequest(ic *core.InvocationContext, req *model.Request, agent FlowAgent) error {
	history := ic.History()

	messages := make([]model.Message, 0, len(history)+1)
	sawUserTurn := false

	for _, ev := range history {
		if ev.IsFromUser() && ev.InvocationID == ic.InvocationID {
			sawUserTurn = true
		}
		messages = appendEvent(messages, ev, agent.Name())
	}

	if !sawUserTurn && ic.UserMessage != "" {
		messages = append(messages, model.Message{Role: model.RoleUser, Text: ic.UserMessage})
	}

	req.Messages = trimHistory(messages, agent.MaxHistoryMessages())

	return nil
}

func appendEvent(messages []model.Message, ev core.Event, self string) []model.Message {
	switch {
	case ev.IsFromUser():
		if ev.Payload.Kind == core.PayloadText {
			messages = append(messages, model.Message{Role: model.RoleUser, Text: ev.Payload.Text})
		}
	case ev.Author == self:
		switch ev.Payload.Kind {
		case core.PayloadText:
			messages = append(messages, model.Message{Role: model.RoleAssistant, Name: self, Text: ev.Payload.Text})
		case core.PayloadToolCall:
			call := *ev.Payload.ToolCall
			if n := len(messages); n > 0 && messages[n-1].Role == model.RoleAssistant && messages[n-1].Name == self {
				// Calls of one model turn share a single assistant message.
				messages[n-1].ToolCalls = append(messages[n-1].ToolCalls, call)
			} else {
				messages = append(messages, model.Message{Role: model.RoleAssistant, Name: self, ToolCalls: []core.ToolCall{call}})
			}
		case core.PayloadToolResult:
			res := *ev.Payload.ToolResult
			messages = append(messages, model.Message{Role: model.RoleTool, Name: res.Name, ToolResult: &res})
		}
	default:
		if ev.Payload.Kind == core.PayloadText && ev.Payload.Text != "" {
			messages = append(messages, model.Message{
				Role: model.RoleUser,
				Text: fmt.Sprintf("For context: [%s] said: %s", ev.Author, ev.Payload.Text),
			})
		}
	}

	return messages
}

// trimHistory keeps the last max messages without starting on a tool result
// whose call was cut off.
func trimHistory(messages []model.Message, max int) []model.Message {
	if max <= 0 || len(messages) <= max {
		return messages
	}

	start := len(messages) - max
	for start < len(messages) && messages[start].Role == model.RoleTool {
		start++
	}

	return messages[start:]
}

// ToolsProcessor declares the agent's tools to the model.
type ToolsProcessor struct{}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor() *ToolsProcessor { return &ToolsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest sets req.Tools and the streaming flag.
func (p *ToolsProcessor) ProcessRequest(_ *core.InvocationContext, req *model.Request, agent FlowAgent) error {
	req.Tools = agent.Tools().Definitions()
	req.Stream = agent.StreamingEnabled()

	return nil
}
