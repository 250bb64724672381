package anthropic

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/model"
)

func TestBuildMessages_GroupsToolResults(t *testing.T) {
	msgs := buildMessages([]model.Message{
		{Role: model.RoleUser, Text: "weather in two cities?"},
		{Role: model.RoleAssistant, ToolCalls: []core.ToolCall{
			{CallID: "a", Name: "weather", Args: map[string]any{"city": "Berlin"}},
			{CallID: "b", Name: "weather", Args: map[string]any{"city": "Paris"}},
		}},
		{Role: model.RoleTool, ToolResult: &core.ToolResult{CallID: "a", Result: "sunny"}},
		{Role: model.RoleTool, ToolResult: &core.ToolResult{CallID: "b", Error: "unavailable"}},
		{Role: model.RoleAssistant, Text: "Berlin is sunny."},
	})

	require.Len(t, msgs, 4)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
	assert.Len(t, msgs[1].Content, 2)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[2].Role)
	assert.Len(t, msgs[2].Content, 2)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[3].Role)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        "calculator",
			Description: "evaluates arithmetic",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"expr": map[string]any{"type": "string"}},
				"required":   []any{"expr"},
			},
		},
	}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "calculator", tools[0].OfTool.Name)
	assert.Equal(t, []string{"expr"}, tools[0].OfTool.InputSchema.Required)
}

func TestGenerate_NonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [
				{"type": "text", "text": "Let me compute."},
				{"type": "tool_use", "id": "tu_1", "name": "calculator", "input": {"expr": "2+2"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 3, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
		o.MaxRetries = 0
	})

	respCh, errCh := m.Generate(context.Background(), model.Request{
		Instructions: "be brief",
		Messages:     []model.Message{{Role: model.RoleUser, Text: "2+2?"}},
	})

	var resps []model.Response
	for r := range respCh {
		resps = append(resps, r)
	}
	require.NoError(t, <-errCh)
	require.Len(t, resps, 1)
	assert.Equal(t, "Let me compute.", resps[0].Text)
	require.Len(t, resps[0].ToolCalls, 1)
	assert.Equal(t, "tu_1", resps[0].ToolCalls[0].CallID)
	assert.Equal(t, "2+2", resps[0].ToolCalls[0].Args["expr"])
	assert.Equal(t, "tool_use", resps[0].FinishReason)
	assert.Equal(t, 7, resps[0].Usage.TotalTokens)
}
