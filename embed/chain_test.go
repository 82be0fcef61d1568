package embed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyEmbedder fails until its remaining failure budget is spent.
type flakyEmbedder struct {
	mu        sync.Mutex
	dimension int
	failures  int
	calls     int
}

func (f *flakyEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures != 0 {
		f.failures--
		return nil, errors.New("simulated provider outage")
	}
	v := make([]float32, f.dimension)
	v[0] = 1
	return v, nil
}

func (f *flakyEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *flakyEmbedder) Dimension() int   { return f.dimension }
func (f *flakyEmbedder) Provider() string { return "flaky" }

func (f *flakyEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestChain_NeverFails(t *testing.T) {
	chain := NewChain(ChainConfig{
		Dimension:    64,
		Providers:    []Embedder{&flakyEmbedder{dimension: 64, failures: -1}},
		CacheMaxCost: -1,
	})

	v, err := chain.EmbedText(context.Background(), "likes jazz records")
	require.NoError(t, err)
	assert.Len(t, v, 64)

	// The fallback answered, and deterministically so.
	fallback, _ := NewHashEmbedder(64).EmbedText(context.Background(), "likes jazz records")
	assert.Equal(t, fallback, v)
}

func TestChain_FallbackMatchesProviderDimension(t *testing.T) {
	chain := NewChain(ChainConfig{Dimension: 1536, CacheMaxCost: -1})
	v, err := chain.EmbedText(context.Background(), "dimensionality invariant")
	require.NoError(t, err)
	assert.Len(t, v, 1536)
	assert.Equal(t, 1536, chain.Dimension())
}

func TestChain_BreakerTripsAndRecovers(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	provider := &flakyEmbedder{dimension: 32, failures: 3}
	chain := NewChain(ChainConfig{
		Dimension:        32,
		Providers:        []Embedder{provider},
		BreakerThreshold: 3,
		BreakerCooldown:  60 * time.Second,
		CacheMaxCost:     -1,
		Now:              clock.Now,
	})

	ctx := context.Background()

	// Three failing calls trip the breaker.
	for i := 0; i < 3; i++ {
		_, err := chain.EmbedText(ctx, "trip attempt")
		require.NoError(t, err)
	}
	require.Equal(t, 3, provider.callCount())
	require.True(t, chain.Status()[0].Open)

	// Within the cool-down the provider is skipped entirely.
	_, err := chain.EmbedText(ctx, "skipped attempt")
	require.NoError(t, err)
	assert.Equal(t, 3, provider.callCount())

	// After the cool-down the breaker closes and the provider recovers.
	clock.Advance(61 * time.Second)
	v, err := chain.EmbedText(ctx, "recovered attempt")
	require.NoError(t, err)
	assert.Equal(t, 4, provider.callCount())
	assert.Equal(t, float32(1), v[0])
	assert.False(t, chain.Status()[0].Open)
}

func TestChain_SecondProviderTakesOver(t *testing.T) {
	dead := &flakyEmbedder{dimension: 16, failures: -1}
	live := &flakyEmbedder{dimension: 16}
	chain := NewChain(ChainConfig{
		Dimension:    16,
		Providers:    []Embedder{dead, live},
		CacheMaxCost: -1,
	})

	v, err := chain.EmbedText(context.Background(), "failover")
	require.NoError(t, err)
	assert.Equal(t, float32(1), v[0])
	assert.Equal(t, 1, dead.callCount())
	assert.Equal(t, 1, live.callCount())
}

func TestChain_FallbackOnlySkipsProviders(t *testing.T) {
	provider := &flakyEmbedder{dimension: 16}
	chain := NewChain(ChainConfig{
		Dimension:    16,
		Providers:    []Embedder{provider},
		FallbackOnly: true,
		CacheMaxCost: -1,
	})

	_, err := chain.EmbedText(context.Background(), "offline mode")
	require.NoError(t, err)
	assert.Zero(t, provider.callCount())
}

func TestChain_OutageDoesNotPoisonCache(t *testing.T) {
	provider := &flakyEmbedder{dimension: 16, failures: 1}
	chain := NewChain(ChainConfig{
		Dimension: 16,
		Providers: []Embedder{provider},
	})

	ctx := context.Background()

	// First call fails over to the hash fallback.
	v, err := chain.EmbedText(ctx, "transient outage")
	require.NoError(t, err)
	fallback, _ := NewHashEmbedder(16).EmbedText(ctx, "transient outage")
	require.Equal(t, fallback, v)

	// Flush pending cache writes before the retry.
	chain.cache.Wait()

	// The recovered provider answers the same text; the fallback vector
	// must not have been cached in its place.
	v, err = chain.EmbedText(ctx, "transient outage")
	require.NoError(t, err)
	assert.Equal(t, float32(1), v[0])
	assert.Equal(t, 2, provider.callCount())
}

func TestChain_WrongDimensionCountsAsFailure(t *testing.T) {
	// A provider answering with the wrong vector length must not poison
	// the store; the chain treats it like any other provider failure.
	provider := &flakyEmbedder{dimension: 8}
	chain := NewChain(ChainConfig{
		Dimension:    32,
		Providers:    []Embedder{provider},
		CacheMaxCost: -1,
	})

	v, err := chain.EmbedText(context.Background(), "mismatch")
	require.NoError(t, err)
	assert.Len(t, v, 32)
	assert.Equal(t, int32(1), chain.Status()[0].Failures)
}
