package builtin

import (
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/tool"
)

type echoArgs struct {
	Text string `json:"text" description:"Text to return unchanged"`
}

// NewEcho returns a tool that returns its input text.
func NewEcho() tool.Tool {
	return tool.NewTypedFunctionTool("echo", "Return the given text unchanged.",
		func(_ *core.ToolContext, in echoArgs) (any, error) {
			return in.Text, nil
		},
	)
}
