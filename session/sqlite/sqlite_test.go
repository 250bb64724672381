package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/testutil"
)

var _ core.SessionService = (*Service)(nil)

func openTestDB(t *testing.T) (*Service, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sessions.db")

	svc, err := Open(path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = svc.Close() })

	return svc, path
}

func TestService_CreateGet(t *testing.T) {
	ctx := context.Background()
	svc, _ := openTestDB(t)

	sess, err := svc.Create(ctx, "app", "user", "s1")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "app", "user", "s1")
	assert.True(t, errors.Is(err, core.ErrSessionExists))

	got, err := svc.Get(ctx, sess.Key)
	require.NoError(t, err)
	assert.Equal(t, sess.Key, got.Key)
	assert.Empty(t, got.Events)

	_, err = svc.Get(ctx, core.SessionKey{AppName: "app", UserID: "user", SessionID: "nope"})
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))
}

func TestService_AppendAndReload(t *testing.T) {
	ctx := context.Background()
	svc, path := openTestDB(t)

	sess, err := svc.Create(ctx, "app", "user", "")
	require.NoError(t, err)

	events := []core.Event{
		testutil.NewEventBuilder().Seq(1).UserText("What is 2+2?").Build(),
		testutil.NewEventBuilder().Seq(2).Branch("par.a").
			ToolCall("c1", "calculator", map[string]any{"expr": "2+2"}).Build(),
		testutil.NewEventBuilder().Seq(3).ToolResult("c1", "calculator", "4", nil).Build(),
		testutil.NewEventBuilder().Seq(4).Text("4").TurnComplete(true).State("answer", "4").Build(),
	}

	for _, ev := range events {
		require.NoError(t, svc.AppendEvent(ctx, sess.Key, ev))
	}

	err = svc.AppendEvent(ctx, sess.Key, testutil.NewEventBuilder().Seq(4).Text("dup").Build())
	assert.True(t, errors.Is(err, core.ErrSequenceConflict))

	require.NoError(t, svc.Close())

	reopened, err := Open(path)
	require.NoError(t, err)

	defer reopened.Close()

	got, err := reopened.Get(ctx, sess.Key)
	require.NoError(t, err)
	require.Len(t, got.Events, 4)

	assert.Equal(t, int64(1), got.Events[0].SequenceNo)
	assert.Equal(t, core.UserAuthor, got.Events[0].Author)
	assert.Equal(t, "par.a", got.Events[1].Branch)
	assert.Equal(t, "calculator", got.Events[1].Payload.ToolCall.Name)
	assert.Equal(t, "2+2", got.Events[1].Payload.ToolCall.Args["expr"])
	assert.Equal(t, "4", got.Events[2].Payload.ToolResult.Result)
	assert.True(t, got.Events[3].TurnComplete)
	assert.Equal(t, events[3].ID, got.Events[3].ID)

	v, ok := got.GetState("answer")
	require.True(t, ok)
	assert.Equal(t, "4", v)
}

func TestService_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := openTestDB(t)

	for _, id := range []string{"a", "b"} {
		_, err := svc.Create(ctx, "app", "user", id)
		require.NoError(t, err)
	}

	_, err := svc.Create(ctx, "app", "other", "c")
	require.NoError(t, err)

	keys, err := svc.List(ctx, "app", "user")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	key := core.SessionKey{AppName: "app", UserID: "user", SessionID: "a"}
	require.NoError(t, svc.AppendEvent(ctx, key, testutil.NewEventBuilder().Seq(1).Text("x").Build()))
	require.NoError(t, svc.Delete(ctx, key))

	_, err = svc.ListEvents(ctx, key)
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))
}
