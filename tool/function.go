package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/util"
	"github.com/hupe1980/agentrun/logging"
)

// Func is the signature wrapped by FunctionTool. Arguments have already been
// validated against the tool's parameter schema.
type Func func(toolCtx *core.ToolContext, args map[string]any) (any, error)

// FunctionTool exposes a plain Go function as a Tool. It holds no mutable
// state and may serve concurrent invocations.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          Func
}

// NewFunctionTool wraps fn with an explicit JSON schema. A nil schema accepts
// an object with arbitrary fields.
func NewFunctionTool(name, description string, parameters map[string]any, fn Func) *FunctionTool {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct wraps fn with a schema derived from the fields of
// structType (see util.CreateSchema for the supported tags).
func NewFunctionToolFromStruct(name, description string, structType any, fn Func) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// NewTypedFunctionTool derives the schema from T and decodes the validated
// arguments into a T before calling fn.
//
//	weather := tool.NewTypedFunctionTool("get_weather", "Look up the weather",
//		func(tc *core.ToolContext, in WeatherArgs) (any, error) {
//			return lookup(in.City)
//		})
func NewTypedFunctionTool[T any](name, description string, fn func(toolCtx *core.ToolContext, in T) (any, error)) *FunctionTool {
	var zero T

	return NewFunctionToolFromStruct(name, description, zero, func(tc *core.ToolContext, args map[string]any) (any, error) {
		in, err := decodeArgs[T](args)
		if err != nil {
			return nil, NewToolError(name, err.Error(), CodeValidation)
		}

		return fn(tc, in)
	})
}

func decodeArgs[T any](args map[string]any) (T, error) {
	var in T

	raw, err := json.Marshal(args)
	if err != nil {
		return in, fmt.Errorf("encode arguments: %w", err)
	}

	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("decode arguments: %w", err)
	}

	return in, nil
}

func (t *FunctionTool) Name() string               { return t.name }
func (t *FunctionTool) Description() string        { return t.description }
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args and runs the wrapped function. Every failure is
// returned as a *ToolError: schema mismatches carry CodeValidation, plain
// errors carry CodeExecution and a *ToolError from fn passes through.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := logging.With(toolCtx.Logger(), "tool", t.name)
	start := time.Now()

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.invalid_args", "error", err)

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	if t.fn == nil {
		return nil, NewToolError(t.name, "tool has no implementation", CodeExecution)
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		toolErr := t.asToolError(err)
		logger.Error("tool.call.failed", "code", toolErr.Code, "error", toolErr.Message)

		return nil, toolErr
	}

	logger.Debug("tool.call.done", "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

func (t *FunctionTool) asToolError(err error) *ToolError {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}

	return NewToolError(t.name, err.Error(), CodeExecution)
}
