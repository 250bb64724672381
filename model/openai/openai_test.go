package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/model"
)

func TestBuildMessages(t *testing.T) {
	req := model.Request{
		Instructions: "be brief",
		Messages: []model.Message{
			{Role: model.RoleUser, Text: "2+2?"},
			{Role: model.RoleAssistant, ToolCalls: []core.ToolCall{{CallID: "c1", Name: "calculator", Args: map[string]any{"expr": "2+2"}}}},
			{Role: model.RoleTool, ToolResult: &core.ToolResult{CallID: "c1", Name: "calculator", Result: "4"}},
			{Role: model.RoleAssistant, Text: "4"},
		},
	}

	msgs := buildMessages(req)
	require.Len(t, msgs, 5)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.JSONEq(t, `{"expr":"2+2"}`, msgs[2].OfAssistant.ToolCalls[0].Function.Arguments)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
}

func TestParseArgs(t *testing.T) {
	assert.Equal(t, map[string]any{"a": float64(1)}, parseArgs(`{"a":1}`))
	assert.Empty(t, parseArgs(""))
	assert.Empty(t, parseArgs("{not json"))
}

func TestGenerate_NonStreamingToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(body, &payload)
		assert.Equal(t, "gpt-test", payload["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 0,
			"model": "gpt-test",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "calculator", "arguments": "{\"expr\":\"2+2\"}"}}]
				}
			}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8}
		}`)
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.Model = "gpt-test"
		o.APIKey = "test"
		o.BaseURL = srv.URL + "/"
		o.MaxRetries = 0
	})

	respCh, errCh := m.Generate(context.Background(), model.Request{Messages: []model.Message{{Role: model.RoleUser, Text: "2+2?"}}})

	var resps []model.Response
	for r := range respCh {
		resps = append(resps, r)
	}
	require.NoError(t, <-errCh)
	require.Len(t, resps, 1)
	require.Len(t, resps[0].ToolCalls, 1)
	assert.Equal(t, "calculator", resps[0].ToolCalls[0].Name)
	assert.Equal(t, "2+2", resps[0].ToolCalls[0].Args["expr"])
	assert.Equal(t, 8, resps[0].Usage.TotalTokens)
}

func TestGenerate_ClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error": {"message": "slow down", "type": "rate_limit"}}`)
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL + "/"
		o.MaxRetries = 0
	})

	respCh, errCh := m.Generate(context.Background(), model.Request{Messages: []model.Message{{Role: model.RoleUser, Text: "hi"}}})
	for range respCh {
	}

	err := <-errCh
	var pErr *model.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, http.StatusTooManyRequests, pErr.StatusCode)
	assert.True(t, pErr.Transient())
}
