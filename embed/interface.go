package embed

import (
	"context"
	"errors"
	"math"
)

var (
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
)

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	// EmbedText converts a single text to an embedding vector.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts converts a batch of texts to embedding vectors.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector length this embedder produces.
	Dimension() int

	// Provider returns the provider name.
	Provider() string
}

// Config configures a single embedding provider.
type Config struct {
	Provider  string // "openai", "siliconflow", "hash"
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// NewEmbedder builds a single provider from config. Unknown providers
// fall back to the deterministic hash embedder.
func NewEmbedder(config Config) Embedder {
	switch config.Provider {
	case "openai":
		return NewOpenAIEmbedder(config)
	case "siliconflow":
		return NewSiliconFlowEmbedder(config)
	default:
		return NewHashEmbedder(config.Dimension)
	}
}

// CosineSimilarity returns the cosine similarity of two vectors in [-1, 1].
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := 0; i < len(a); i++ {
		fa := float64(a[i])
		fb := float64(b[i])
		dot += fa * fb
		normA += fa * fa
		normB += fb * fb
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
