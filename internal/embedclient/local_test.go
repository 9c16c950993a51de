package embedclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedder_DeterministicAndFixedDimension(t *testing.T) {
	e := NewLocalEmbedder(32)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "explain this function", map[string]string{"language": "go"})
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "explain this function", map[string]string{"language": "go"})
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 32)
}

func TestLocalEmbedder_DistinctTextsDiffer(t *testing.T) {
	e := NewLocalEmbedder(16)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "search for the parser", nil)
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "search for the tokenizer", nil)
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestLocalEmbedder_ContextOrderIndependent(t *testing.T) {
	e := NewLocalEmbedder(16)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "same text", map[string]string{"a": "1", "b": "2"})
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "same text", map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
}

func TestLocalEmbedder_DefaultDimension(t *testing.T) {
	e := NewLocalEmbedder(0)
	v, err := e.Embed(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Len(t, v, 384)
}
