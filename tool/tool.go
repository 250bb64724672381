// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side-effects) with schema
// validated arguments and consistent error handling.
package tool

import (
	"fmt"
	"sort"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/util"
	"github.com/hupe1980/agentrun/model"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// All tools receive a ToolContext for session state, flow control (escalate,
// end invocation), memory and artifact access. Mutations made through the
// ToolContext are attached to the resulting ToolResult event.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Return errors instead of panicking (panics are recovered, but logged as such)
//   - Be safe for concurrent use; one tool instance serves every invocation
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is provided to the model to help it decide when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with structured arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "TOOL_NOT_FOUND"
	CodePanic      = "PANIC"
	CodeTimeout    = "TIMEOUT"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Definition converts a tool into the declaration sent to models.
func Definition(t Tool) model.ToolDefinition {
	params := t.Parameters()
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		},
	}
}

// Set is an immutable name-indexed collection of tools.
type Set struct {
	byName map[string]Tool
	order  []string
}

// NewSet indexes tools by name. Duplicate or empty names are rejected.
func NewSet(tools ...Tool) (*Set, error) {
	s := &Set{byName: make(map[string]Tool, len(tools))}

	for _, t := range tools {
		if t == nil {
			return nil, fmt.Errorf("nil tool")
		}

		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}

		s.byName[name] = t
		s.order = append(s.order, name)
	}

	return s, nil
}

// Get returns the tool registered under name.
func (s *Set) Get(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}

	t, ok := s.byName[name]

	return t, ok
}

// Len returns the number of tools.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}

	return len(s.order)
}

// Names returns the tool names in sorted order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}

	names := append([]string(nil), s.order...)
	sort.Strings(names)

	return names
}

// Definitions returns the model declarations in registration order.
func (s *Set) Definitions() []model.ToolDefinition {
	if s == nil {
		return nil
	}

	defs := make([]model.ToolDefinition, 0, len(s.order))
	for _, name := range s.order {
		defs = append(defs, Definition(s.byName[name]))
	}

	return defs
}
