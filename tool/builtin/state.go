package builtin

import (
	"fmt"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/tool"
)

// SessionStateTool exposes the ToolContext surface to models: session state,
// flow control (escalate, end_invocation) and artifact handling. Every
// mutation travels on the ToolResult event it produces.
type SessionStateTool struct{}

// NewSessionState creates the session_state tool.
func NewSessionState() *SessionStateTool { return &SessionStateTool{} }

// Name returns the tool identifier.
func (t *SessionStateTool) Name() string { return "session_state" }

// Description returns the tool description.
func (t *SessionStateTool) Description() string {
	return "Reads and writes session state, controls the run and manages artifacts. " +
		"Operations: get_state, set_state, escalate, end_invocation, save_artifact, load_artifact, list_artifacts."
}

// Parameters returns the JSON schema for tool parameters.
func (t *SessionStateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{
					"get_state", "set_state", "escalate", "end_invocation",
					"save_artifact", "load_artifact", "list_artifacts",
				},
				"description": "The operation to perform",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "State key for get_state/set_state",
			},
			"value": map[string]any{
				"description": "Value for set_state (any type)",
			},
			"name": map[string]any{
				"type":        "string",
				"description": "Artifact name for artifact operations",
			},
			"data": map[string]any{
				"type":        "string",
				"description": "Text content for save_artifact",
			},
			"version": map[string]any{
				"type":        "integer",
				"description": "Artifact version for load_artifact (0 or absent = latest)",
			},
		},
		"required": []string{"operation"},
	}
}

// Call dispatches on the operation argument.
func (t *SessionStateTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	operation, _ := args["operation"].(string)

	switch operation {
	case "get_state":
		key, err := requireString(args, "key", operation)
		if err != nil {
			return nil, err
		}
		value, exists := tc.GetState(key)
		return map[string]any{"key": key, "exists": exists, "value": value}, nil

	case "set_state":
		key, err := requireString(args, "key", operation)
		if err != nil {
			return nil, err
		}
		tc.SetState(key, args["value"])
		return map[string]any{"key": key, "value": args["value"]}, nil

	case "escalate":
		tc.Escalate()
		return map[string]any{"escalated": true}, nil

	case "end_invocation":
		tc.EndInvocation()
		return map[string]any{"ended": true}, nil

	case "save_artifact":
		name, err := requireString(args, "name", operation)
		if err != nil {
			return nil, err
		}
		data, _ := args["data"].(string)
		version, err := tc.SaveArtifact(name, []byte(data))
		if err != nil {
			return nil, fmt.Errorf("failed to save artifact: %w", err)
		}
		return map[string]any{"name": name, "version": version, "size": len(data)}, nil

	case "load_artifact":
		name, err := requireString(args, "name", operation)
		if err != nil {
			return nil, err
		}
		version := 0
		if v, ok := args["version"].(float64); ok {
			version = int(v)
		}
		data, err := tc.LoadArtifact(name, version)
		if err != nil {
			return nil, fmt.Errorf("failed to load artifact: %w", err)
		}
		return map[string]any{"name": name, "data": string(data), "size": len(data)}, nil

	case "list_artifacts":
		names, err := tc.ListArtifacts()
		if err != nil {
			return nil, fmt.Errorf("failed to list artifacts: %w", err)
		}
		return map[string]any{"artifacts": names, "count": len(names)}, nil

	default:
		return nil, tool.NewToolError(t.Name(), fmt.Sprintf("unknown operation: %s", operation), tool.CodeValidation)
	}
}

func requireString(args map[string]any, key, operation string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s parameter is required for %s operation", key, operation)
	}

	return v, nil
}
