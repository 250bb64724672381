package builtin

import (
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/tool"
)

// ExitLoopName is the name of the loop exit tool.
const ExitLoopName = "exit_loop"

// NewExitLoop returns a tool that asks the enclosing loop agent to stop.
// Call it only when the task is complete.
func NewExitLoop() tool.Tool {
	return tool.NewFunctionTool(
		ExitLoopName,
		"Exits the loop. Call this function only when you are instructed to do so.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			tc.Escalate()
			return "loop exit requested", nil
		},
	)
}
