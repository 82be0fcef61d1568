package embed

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"mnemogo/logging"
)

const DefaultAttemptTimeout = 2 * time.Second

// ChainConfig configures the provider chain.
type ChainConfig struct {
	// Dimension every produced vector must have. Zero means DefaultDimension.
	Dimension int

	// Providers are tried in order. The deterministic hash fallback is
	// always appended implicitly and never fails.
	Providers []Embedder

	// FallbackOnly skips live providers entirely.
	FallbackOnly bool

	BreakerThreshold int
	BreakerCooldown  time.Duration

	// AttemptTimeout bounds each live provider call independently of the
	// breaker. Zero means DefaultAttemptTimeout.
	AttemptTimeout time.Duration

	// CacheMaxCost is the embedding cache budget in bytes. Zero means a
	// small default; negative disables the cache.
	CacheMaxCost int64

	// Now is a clock hook for tests.
	Now func() time.Time
}

type guardedProvider struct {
	Embedder
	breaker *breaker
}

// Chain is the multi-provider embedder. It degrades instead of failing:
// every provider is consulted through its own circuit breaker, and when
// all live providers are down the hash fallback answers.
type Chain struct {
	dimension      int
	providers      []*guardedProvider
	fallback       *HashEmbedder
	fallbackOnly   bool
	attemptTimeout time.Duration
	cache          *ristretto.Cache
	now            func() time.Time
}

func NewChain(cfg ChainConfig) *Chain {
	dim := cfg.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := &Chain{
		dimension:      dim,
		fallback:       NewHashEmbedder(dim),
		fallbackOnly:   cfg.FallbackOnly,
		attemptTimeout: timeout,
		now:            now,
	}
	for _, p := range cfg.Providers {
		c.providers = append(c.providers, &guardedProvider{
			Embedder: p,
			breaker:  newBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		})
	}

	if cfg.CacheMaxCost >= 0 {
		maxCost := cfg.CacheMaxCost
		if maxCost == 0 {
			maxCost = 16 << 20
		}
		// NewCache only errors on invalid config; these values are fixed.
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 100_000,
			MaxCost:     maxCost,
			BufferItems: 64,
		})
		if err == nil {
			c.cache = cache
		}
	}

	return c
}

// EmbedText always returns a vector of the configured dimension. The
// returned error is always nil; it exists to satisfy Embedder.
func (c *Chain) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cacheGet(text); ok {
		return v, nil
	}

	if !c.fallbackOnly {
		for _, p := range c.providers {
			if !p.breaker.allow(c.now()) {
				logging.From(ctx).Debug("skipping provider, circuit open", "provider", p.Provider())
				continue
			}

			attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
			vec, err := p.EmbedText(attemptCtx, text)
			cancel()

			if err != nil || len(vec) != c.dimension {
				p.breaker.recordFailure(c.now())
				logging.From(ctx).Warn("embedding provider failed",
					"provider", p.Provider(), "error", err, "got_dim", len(vec))
				continue
			}

			p.breaker.recordSuccess()
			c.cacheSet(text, vec)
			return vec, nil
		}
	}

	// Fallback vectors are never cached: once the providers recover,
	// the next call for this text gets a real embedding again.
	return c.fallback.embedText(text), nil
}

func (c *Chain) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		v, _ := c.EmbedText(ctx, text)
		result[i] = v
	}
	return result, nil
}

func (c *Chain) Dimension() int {
	return c.dimension
}

func (c *Chain) Provider() string {
	return "chain"
}

// ProviderStatus describes one live provider's breaker state.
type ProviderStatus struct {
	Provider string
	Open     bool
	Failures int32
}

func (c *Chain) Status() []ProviderStatus {
	now := c.now()
	out := make([]ProviderStatus, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, ProviderStatus{
			Provider: p.Provider(),
			Open:     p.breaker.open(now),
			Failures: p.breaker.failures.Load(),
		})
	}
	return out
}

func (c *Chain) cacheGet(text string) ([]float32, bool) {
	if c.cache == nil {
		return nil, false
	}
	v, ok := c.cache.Get(text)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (c *Chain) cacheSet(text string, vec []float32) {
	if c.cache == nil {
		return
	}
	c.cache.Set(text, vec, int64(len(vec)*4))
}
