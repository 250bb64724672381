package builtin

import (
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/tool"
)

type loadMemoryArgs struct {
	Query string `json:"query" description:"What to look for in earlier conversations"`
	Limit int    `json:"limit,omitempty" description:"Maximum number of fragments (default 5)"`
}

type memoryHit struct {
	SessionID string `json:"session_id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
}

// NewLoadMemory returns a tool recalling fragments of the user's earlier sessions.
func NewLoadMemory() tool.Tool {
	return tool.NewTypedFunctionTool(
		"load_memory",
		"Search earlier conversations with the current user for relevant information.",
		func(tc *core.ToolContext, in loadMemoryArgs) (any, error) {
			limit := in.Limit
			if limit <= 0 {
				limit = 5
			}

			entries, err := tc.SearchMemory(in.Query, limit)
			if err != nil {
				return nil, err
			}

			hits := make([]memoryHit, 0, len(entries))
			for _, e := range entries {
				hits = append(hits, memoryHit{SessionID: e.Key.SessionID, Author: e.Author, Text: e.Text})
			}

			return map[string]any{"memories": hits}, nil
		},
	)
}
