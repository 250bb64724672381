package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_Deterministic(t *testing.T) {
	a, err := Marshal(map[string]any{"b": 1, "a": "x", "c": []any{true}})
	require.NoError(t, err)
	b, err := Marshal(map[string]any{"c": []any{true}, "a": "x", "b": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnmarshal_UntypedValues(t *testing.T) {
	data, err := Marshal(map[string]any{
		"count":  3,
		"nested": map[string]any{"neg": -2},
	})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, int64(3), out["count"])

	nested, ok := out["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(-2), nested["neg"])
}
