package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherArgs struct {
	City  string  `json:"city" description:"City name"`
	Days  int     `json:"days,omitempty"`
	Scale *string `json:"scale"`
}

func TestCreateSchemaAndValidate(t *testing.T) {
	schema := CreateSchema(weatherArgs{})
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"city"}, schema["required"])

	props := schema["properties"].(map[string]any)
	assert.Equal(t, "integer", props["days"].(map[string]any)["type"])

	require.NoError(t, ValidateParameters(map[string]any{"city": "Berlin", "days": float64(3)}, schema))

	err := ValidateParameters(map[string]any{"days": 3}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "city", vErr.Field)

	err = ValidateParameters(map[string]any{"city": 42}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "city", vErr.Field)
}

type orderArgs struct {
	Unit  string `json:"unit" enum:"c,f"`
	Items []struct {
		SKU string `json:"sku"`
	} `json:"items"`
}

func TestCreateSchema_NestedAndEnum(t *testing.T) {
	schema := CreateSchema(&orderArgs{})

	props := schema["properties"].(map[string]any)
	assert.Equal(t, []string{"c", "f"}, props["unit"].(map[string]any)["enum"])

	items := props["items"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, "object", items["type"])
	assert.Equal(t, []string{"sku"}, items["required"])

	require.NoError(t, ValidateParameters(map[string]any{
		"unit":  "c",
		"items": []any{map[string]any{"sku": "A-1"}},
	}, schema))

	var vErr *ValidationError

	err := ValidateParameters(map[string]any{"unit": "k", "items": []any{}}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "unit", vErr.Field)

	err = ValidateParameters(map[string]any{"unit": "f", "items": []any{map[string]any{}}}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "items[0].sku", vErr.Field)
}

func TestValidateParameters_DecodedRequired(t *testing.T) {
	schema := map[string]any{"type": "object", "required": []any{"q"}}
	assert.Error(t, ValidateParameters(map[string]any{}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"q": "x"}, schema))
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain <b>text</b>", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain <b>text</b>", out)

	out, err = RenderTemplate(`Hello {{upper .name}} from {{default "nowhere" .city}} & co`, map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello ADA from nowhere & co", out)

	_, err = RenderTemplate("{{ .broken ", nil)
	assert.Error(t, err)

	out, err = RenderTemplate(`{{join ", " .tags}} {{json .meta}}`, map[string]any{
		"tags": []any{"a", "b"},
		"meta": map[string]any{"n": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, `a, b {"n":1}`, out)
}

func TestIDs(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
	assert.True(t, strings.HasPrefix(NewInvocationID(), "e-"))
}
