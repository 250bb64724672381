package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/testutil"
	"github.com/hupe1980/agentrun/model"
)

func TestProcessorNames(t *testing.T) {
	assert.Equal(t, "instructions", NewInstructionsProcessor().Name())
	assert.Equal(t, "contents", NewContentsProcessor().Name())
	assert.Equal(t, "tools", NewToolsProcessor().Name())
}

func TestInstructionsProcessor_RendersSessionState(t *testing.T) {
	sess := testutil.NewSessionBuilder("s1").State("user_name", "Ada").Build()
	ic := core.NewInvocationContext(context.Background(), "inv-1", sess)

	req := new(model.Request)
	err := NewInstructionsProcessor().ProcessRequest(ic, req, &testAgent{name: "leaf", instruction: "Greet {{.user_name}}."})
	require.NoError(t, err)
	assert.Equal(t, "Greet Ada.", req.Instructions)
}

type failingInstruction struct{ testAgent }

func (failingInstruction) ResolveInstruction(*core.InvocationContext) (string, error) {
	return "", errors.New("no instruction")
}

func TestInstructionsProcessor_ProviderError(t *testing.T) {
	ic := core.NewInvocationContext(context.Background(), "inv-1", nil)

	err := NewInstructionsProcessor().ProcessRequest(ic, new(model.Request), &failingInstruction{})

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, core.ErrorKindInstruction, reqErr.Kind)
	assert.Equal(t, core.ErrorKindInstruction, errorKind(err))
}

func TestContentsProcessor_History(t *testing.T) {
	sess := testutil.NewSessionBuilder("s1").Events(
		testutil.NewEventBuilder().Invocation("inv-0").UserText("earlier").Build(),
		testutil.NewEventBuilder().Invocation("inv-0").Author("leaf").Text("earlier answer").Build(),
		testutil.NewEventBuilder().Invocation("inv-1").UserText("now").Build(),
		testutil.NewEventBuilder().Invocation("inv-1").Author("researcher").Text("facts").Build(),
		testutil.NewEventBuilder().Invocation("inv-1").Author("researcher").ToolCall("x1", "search", nil).Build(),
		testutil.NewEventBuilder().Invocation("inv-1").Author("leaf").ToolCall("c1", "calculator", nil).Build(),
		testutil.NewEventBuilder().Invocation("inv-1").Author("leaf").ToolCall("c2", "calculator", nil).Build(),
		testutil.NewEventBuilder().Invocation("inv-1").Author("leaf").ToolResult("c1", "calculator", "1", nil).Build(),
		testutil.NewEventBuilder().Invocation("inv-1").Author("leaf").Control(core.Control{Kind: core.ControlEscalate}).Build(),
	).Build()
	ic := core.NewInvocationContext(context.Background(), "inv-1", sess, func(o *core.InvocationOptions) {
		o.UserMessage = "now"
	})

	req := new(model.Request)
	require.NoError(t, NewContentsProcessor().ProcessRequest(ic, req, &testAgent{name: "leaf"}))

	msgs := req.Messages
	require.Len(t, msgs, 6)
	assert.Equal(t, model.Message{Role: model.RoleUser, Text: "earlier"}, msgs[0])
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "now", msgs[2].Text)
	assert.Equal(t, "For context: [researcher] said: facts", msgs[3].Text)
	assert.Len(t, msgs[4].ToolCalls, 2)
	assert.Equal(t, model.RoleTool, msgs[5].Role)
}

func TestContentsProcessor_AddsUserMessageWhenNotRecorded(t *testing.T) {
	ic := core.NewInvocationContext(context.Background(), "inv-1", nil, func(o *core.InvocationOptions) {
		o.UserMessage = "hello"
	})

	req := new(model.Request)
	require.NoError(t, NewContentsProcessor().ProcessRequest(ic, req, &testAgent{name: "leaf"}))
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "hello", req.Messages[0].Text)
}

func TestTrimHistory(t *testing.T) {
	msgs := []model.Message{
		{Role: model.RoleUser, Text: "q"},
		{Role: model.RoleAssistant, ToolCalls: []core.ToolCall{{CallID: "c1"}}},
		{Role: model.RoleTool, ToolResult: &core.ToolResult{CallID: "c1"}},
		{Role: model.RoleAssistant, Text: "a"},
	}

	assert.Len(t, trimHistory(msgs, 0), 4)
	assert.Len(t, trimHistory(msgs, 10), 4)

	trimmed := trimHistory(msgs, 2)
	require.Len(t, trimmed, 1)
	assert.Equal(t, "a", trimmed[0].Text)
}

func TestToolsProcessor(t *testing.T) {
	a := &testAgent{name: "leaf", streaming: true, tools: mustSet(t, &teMockTool{name: "one"})}

	req := new(model.Request)
	require.NoError(t, NewToolsProcessor().ProcessRequest(nil, req, a))
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "one", req.Tools[0].Function.Name)
	assert.True(t, req.Stream)
}
