package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(256)

	a, err := e.EmbedText(context.Background(), "the quick fox")
	require.NoError(t, err)
	b, err := e.EmbedText(context.Background(), "the quick fox")
	require.NoError(t, err)

	require.Len(t, a, 256)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestHashEmbedder_Dimension(t *testing.T) {
	assert.Equal(t, 64, NewHashEmbedder(64).Dimension())
	assert.Equal(t, DefaultDimension, NewHashEmbedder(0).Dimension())

	v, err := NewHashEmbedder(64).EmbedText(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, v, 64)
}

func TestHashEmbedder_L2Normalized(t *testing.T) {
	e := NewHashEmbedder(128)
	v, err := e.EmbedText(context.Background(), "prefers dark roast coffee in the morning")
	require.NoError(t, err)

	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	e := NewHashEmbedder(32)
	v, err := e.EmbedText(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, v, 32)
	for _, f := range v {
		assert.Zero(t, f)
	}
}

func TestHashEmbedder_TokenOrderInvariant(t *testing.T) {
	// Bag-of-tokens hashing: punctuation and order do not matter.
	e := NewHashEmbedder(128)
	a, _ := e.EmbedText(context.Background(), "quick brown fox")
	b, _ := e.EmbedText(context.Background(), "fox, quick... brown!")
	assert.Equal(t, a, b)
}

func TestCosineSimilarity(t *testing.T) {
	v := []float32{0.3, 0.4, 0.5}

	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{0, 1}))

	// Length mismatch and zero vectors score 0 rather than failing.
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestCosineSimilarity_Bounds(t *testing.T) {
	e := NewHashEmbedder(64)
	texts := []string{
		"enjoys hiking in the alps",
		"works on a compiler project",
		"allergic to peanuts",
		"enjoys hiking in the mountains",
	}
	vecs, err := e.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)

	for i := range vecs {
		for j := range vecs {
			sim := CosineSimilarity(vecs[i], vecs[j])
			assert.GreaterOrEqual(t, sim, -1.0-1e-9)
			assert.LessOrEqual(t, sim, 1.0+1e-9)
		}
	}
}
