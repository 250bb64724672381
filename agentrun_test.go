package agentrun

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/testutil"
)

func TestRunSync(t *testing.T) {
	seq, err := agent.NewSequentialAgent("pipeline", []core.Agent{
		testutil.NewTextAgent("draft", "first draft"),
		testutil.NewTextAgent("review", "looks good"),
	})
	require.NoError(t, err)

	ar, err := New(seq)
	require.NoError(t, err)

	id, events, err := ar.RunSync(context.Background(), RunRequest{AppName: "app", UserID: "u", SessionID: "s", Message: "write"})
	require.NoError(t, err)

	assert.Equal(t, []string{"write", "first draft", "looks good"}, testutil.Texts(events))
	assert.Equal(t, core.StatusCompleted, ar.Status(id))
	assert.False(t, ar.Cancel(id))
}

func TestRunSync_ContextCancelled(t *testing.T) {
	ar, err := New(testutil.NewBlockingAgent("worker"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = ar.RunSync(ctx, RunRequest{AppName: "app", UserID: "u", Message: "go"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidTree(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, core.ErrInvalidAgentTree)
}
