package artifact

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
)

// Interface compliance (compile-time assertions)
var _ core.ArtifactService = (*InMemoryService)(nil)

var testKey = core.SessionKey{AppName: "app", UserID: "user", SessionID: "s1"}

func TestInMemoryArtifactService_SaveLoadIsolation(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()

	data := []byte("hello")
	v, err := svc.Save(ctx, testKey, "a1", data)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// mutate original slice
	data[0] = 'H'

	out, err := svc.Load(ctx, testKey, "a1", 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))

	// mutate returned slice
	out[0] = 'x'

	out2, err := svc.Load(ctx, testKey, "a1", 1)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out2))
}

func TestInMemoryArtifactService_Versions(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()

	for _, body := range []string{"v1", "v2", "v3"} {
		_, err := svc.Save(ctx, testKey, "report.md", []byte(body))
		require.NoError(t, err)
	}

	versions, err := svc.Versions(ctx, testKey, "report.md")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, versions)

	latest, err := svc.Load(ctx, testKey, "report.md", 0)
	require.NoError(t, err)
	assert.Equal(t, "v3", string(latest))

	second, err := svc.Load(ctx, testKey, "report.md", 2)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(second))

	_, err = svc.Load(ctx, testKey, "report.md", 4)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInMemoryArtifactService_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()

	_, err := svc.Save(ctx, testKey, "b", []byte("1"))
	require.NoError(t, err)
	_, err = svc.Save(ctx, testKey, "a", []byte("2"))
	require.NoError(t, err)

	names, err := svc.List(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, svc.Delete(ctx, testKey, "a"))
	assert.True(t, errors.Is(svc.Delete(ctx, testKey, "a"), ErrNotFound))

	_, err = svc.Load(ctx, testKey, "a", 0)
	assert.True(t, errors.Is(err, ErrNotFound))

	other := core.SessionKey{AppName: "app", UserID: "user", SessionID: "s2"}
	names, err = svc.List(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestInMemoryArtifactService_Concurrency(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			_, err := svc.Save(ctx, testKey, "shared", []byte(fmt.Sprintf("%d", i)))
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	versions, err := svc.Versions(ctx, testKey, "shared")
	require.NoError(t, err)
	assert.Len(t, versions, 20)
}
