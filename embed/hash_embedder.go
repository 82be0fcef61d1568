package embed

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const DefaultDimension = 1536

var tokenSplit = regexp.MustCompile(`\W+`)

// HashEmbedder is the deterministic offline fallback. It is not a semantic
// embedding, but the same text always produces the same vector, and the
// vector shares the configured dimension with the real providers so that
// mixed-origin embeddings stay comparable.
type HashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashEmbedder{dimension: dimension}
}

func (e *HashEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.embedText(text), nil
}

func (e *HashEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = e.embedText(text)
	}
	return result, nil
}

// embedText hashes each token with FNV-1a, accumulates into the bucket
// at hash mod dimension, then L2-normalizes.
func (e *HashEmbedder) embedText(text string) []float32 {
	v := make([]float32, e.dimension)
	tokens := tokenSplit.Split(strings.ToLower(text), -1)

	seen := false
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		seen = true
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		idx := int(h.Sum64() % uint64(e.dimension))
		v[idx] += 1.0
	}
	if !seen {
		return v
	}

	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) Provider() string {
	return "hash"
}
