package endpoint

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopBody(ctx context.Context, eng interface{}, key interface{}) (interface{}, error) {
	return key, nil
}

func schemaOf(s string) SchemaDeriver {
	return func() (json.RawMessage, error) { return json.RawMessage(s), nil }
}

func TestBuilder_RegisterAndResolve(t *testing.T) {
	b := NewBuilder(schemaOf(`{"type":"string"}`), schemaOf(`{"type":"number"}`))
	b.Register("affiliation", nopBody)
	b.Register("", nopBody, AsDefault())

	reg, err := b.Build()
	require.NoError(t, err)

	ep, err := reg.Resolve("affiliation")
	require.NoError(t, err)
	assert.Equal(t, "affiliation", ep.Name)
	assert.False(t, ep.IsDefault())

	def, err := reg.Resolve("")
	require.NoError(t, err)
	assert.True(t, def.IsDefault())

	assert.Len(t, reg.All(), 2)
}

func TestBuilder_UnknownEndpointFails(t *testing.T) {
	b := NewBuilder(schemaOf(`{}`), schemaOf(`{}`))
	b.Register("activity", nopBody)
	reg, err := b.Build()
	require.NoError(t, err)

	_, err = reg.Resolve("nonexistent")
	assert.Error(t, err)
}

func TestBuilder_DuplicateDefaultFails(t *testing.T) {
	b := NewBuilder(schemaOf(`{}`), schemaOf(`{}`))
	b.Register("", nopBody)
	b.Register("", nopBody)

	_, err := b.Build()
	assert.Error(t, err)
}

func TestBuilder_DuplicateNamedEndpointFails(t *testing.T) {
	b := NewBuilder(schemaOf(`{}`), schemaOf(`{}`))
	b.Register("review", nopBody)
	b.Register("review", nopBody)

	_, err := b.Build()
	assert.Error(t, err)
}

func TestBuilder_ExplicitSchemaSkipsDeriver(t *testing.T) {
	b := NewBuilder(nil, nil)
	b.Register("review", nopBody,
		WithKeySchema(json.RawMessage(`{"type":"string"}`)),
		WithOutputSchema(json.RawMessage(`{"type":"object"}`)))

	reg, err := b.Build()
	require.NoError(t, err)
	ep, err := reg.Resolve("review")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"string"}`, string(ep.KeySchema))
}

func TestBuilder_NilBodyFails(t *testing.T) {
	b := NewBuilder(schemaOf(`{}`), schemaOf(`{}`))
	b.Register("broken", nil)
	_, err := b.Build()
	assert.Error(t, err)
}

func TestEndpoint_IsDefault(t *testing.T) {
	ep := &Endpoint{Name: ""}
	assert.True(t, ep.IsDefault())
	ep.Name = "named"
	assert.False(t, ep.IsDefault())
}
