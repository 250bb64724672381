package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentrun/core"
)

// Role identifies the speaker of a Message.
type Role string

const (
	// RoleUser marks caller supplied input.
	RoleUser Role = "user"
	// RoleAssistant marks model output, including tool call requests.
	RoleAssistant Role = "assistant"
	// RoleTool marks a tool result fed back to the model.
	RoleTool Role = "tool"
)

// Message is one normalized conversation entry. Assistant messages may carry
// ToolCalls; tool messages carry exactly one ToolResult.
type Message struct {
	Role       Role             `json:"role"`
	Name       string           `json:"name,omitempty"`
	Text       string           `json:"text,omitempty"`
	ToolCalls  []core.ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *core.ToolResult `json:"tool_result,omitempty"`
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by flows.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. Partial chunks
// carry text deltas only. The final chunk carries the complete text and any
// tool call requests.
type Response struct {
	ID           string          `json:"id"`
	Partial      bool            `json:"partial"`
	Text         string          `json:"text,omitempty"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by flows & agents to drive generation.
//
// Generate returns a response channel and an error channel; both are closed
// when generation ends. Exactly one final (non-partial) Response is sent on
// success. Failures are reported on the error channel, preferably as
// *ProviderError. Transient failures are retried by the provider client, not
// by the caller.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ToolResultText renders a tool result for providers that accept text only.
// Errors are prefixed so the model can tell them apart from results.
func ToolResultText(res core.ToolResult) string {
	if res.Error != "" {
		return "error: " + res.Error
	}

	if s, ok := res.Result.(string); ok {
		return s
	}

	b, err := json.Marshal(res.Result)
	if err != nil {
		return fmt.Sprintf("%v", res.Result)
	}

	return string(b)
}
