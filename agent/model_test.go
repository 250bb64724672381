package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/testutil"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/tool"
	"github.com/hupe1980/agentrun/tool/builtin"
)

func TestModelAgent_NewAgent(t *testing.T) {
	m := model.NewMockModel("m")

	a, err := NewModelAgent("assistant", m)
	require.NoError(t, err)

	assert.Equal(t, "assistant", a.Name())
	assert.Equal(t, "Agent assistant", a.Description())
	assert.Equal(t, 20, a.MaxHistoryMessages())
	assert.False(t, a.StreamingEnabled())
	assert.Equal(t, 0, a.Tools().Len())
	assert.Same(t, m, a.Model())

	text, err := a.ResolveInstruction(nil)
	require.NoError(t, err)
	assert.Equal(t, "You are assistant, a helpful AI assistant.", text)
}

func TestModelAgent_NewAgentValidation(t *testing.T) {
	_, err := NewModelAgent("", model.NewMockModel("m"))
	assert.True(t, errors.Is(err, core.ErrInvalidAgentTree))

	_, err = NewModelAgent("a", nil)
	assert.True(t, errors.Is(err, core.ErrInvalidAgentTree))

	_, err = NewModelAgent("a", model.NewMockModel("m"), func(o *ModelAgentOptions) {
		o.Tools = []tool.Tool{builtin.NewCalculator(), builtin.NewCalculator()}
	})
	assert.Error(t, err)
}

func TestModelAgent_CalculatorScenario(t *testing.T) {
	m := model.NewMockModel("m",
		model.ToolCallTurn(core.ToolCall{CallID: "c1", Name: builtin.CalculatorName, Args: map[string]any{"expr": "2+2"}}),
		model.TextTurn("The answer is 4."),
	)

	a, err := NewModelAgent("math", m, func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromText("You solve {{.topic}} problems.")
		o.Tools = []tool.Tool{builtin.NewCalculator()}
		o.OutputKey = "answer"
	})
	require.NoError(t, err)
	assert.True(t, a.HasTool(builtin.CalculatorName))

	sess := testutil.NewSessionBuilder("s1").State("topic", "arithmetic").Build()
	ic := core.NewInvocationContext(t.Context(), "inv-1", sess, func(o *core.InvocationOptions) {
		o.UserMessage = "What is 2+2?"
		o.Budget = core.NewToolCallBudget(20)
	})

	events := testutil.Collect(a.Run(ic))

	require.Len(t, events, 3)
	assert.Equal(t, core.PayloadToolCall, events[0].Payload.Kind)
	assert.Equal(t, "4", events[1].Payload.ToolResult.Result)
	assert.Equal(t, "The answer is 4.", events[2].Payload.Text)
	assert.Equal(t, "The answer is 4.", events[2].Actions.StateDelta["answer"])

	for _, ev := range events {
		assert.Equal(t, "math", ev.Author)
	}

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "You solve arithmetic problems.", reqs[0].Instructions)
	assert.Equal(t, "What is 2+2?", reqs[0].Messages[0].Text)
}

func TestModelAgent_InsideLoopExitsOnExitLoopTool(t *testing.T) {
	m := model.NewMockModel("m",
		model.ToolCallTurn(core.ToolCall{CallID: "c1", Name: builtin.ExitLoopName}),
	)

	leaf, err := NewModelAgent("checker", m, func(o *ModelAgentOptions) {
		o.Tools = []tool.Tool{builtin.NewExitLoop()}
	})
	require.NoError(t, err)

	loop, err := NewLoopAgent("refine", []core.Agent{leaf}, func(o *LoopAgentOptions) {
		o.MaxIterations = 5
	})
	require.NoError(t, err)

	events := testutil.Collect(loop.Run(newIC(t)))

	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].IsEscalation())
	assert.Equal(t, 1, m.Calls())
}

// mockModel is a testify mock of model.Model.
type mockModel struct{ mock.Mock }

func (m *mockModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	args := m.Called(ctx, req)

	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	if resp, ok := args.Get(0).(*model.Response); ok && resp != nil {
		respCh <- *resp
	}

	if err := args.Error(1); err != nil {
		errCh <- err
	}

	close(respCh)
	close(errCh)

	return respCh, errCh
}

func (m *mockModel) Info() model.Info {
	args := m.Called()
	return args.Get(0).(model.Info)
}

func TestModelAgent_ProviderErrorEndsInFailure(t *testing.T) {
	m := &mockModel{}
	m.On("Info").Return(model.Info{Name: "gpt", Provider: "openai", SupportsTools: true})
	m.On("Generate", mock.Anything, mock.Anything).
		Return(nil, model.NewProviderError("openai", 401, errors.New("invalid api key"))).
		Once()

	a, err := NewModelAgent("assistant", m)
	require.NoError(t, err)

	events := testutil.Collect(a.Run(newIC(t)))

	require.Len(t, events, 1)
	require.True(t, events[0].IsFatal())
	assert.Equal(t, core.ErrorKindProvider, events[0].Payload.Control.ErrorKind)
	m.AssertExpectations(t)
}

func TestModelAgent_SendsInstructionAndUserMessage(t *testing.T) {
	m := &mockModel{}
	m.On("Info").Return(model.Info{Name: "gpt", Provider: "openai", SupportsTools: true})
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return req.Instructions == "Be brief." && len(req.Messages) == 1 && req.Messages[0].Text == "go"
	})).Return(&model.Response{Text: "ok", FinishReason: "stop"}, nil).Once()

	a, err := NewModelAgent("assistant", m, func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromText("Be brief.")
	})
	require.NoError(t, err)

	events := testutil.Collect(a.Run(newIC(t)))

	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Payload.Text)
	assert.True(t, events[0].TurnComplete)
	m.AssertExpectations(t)
}
