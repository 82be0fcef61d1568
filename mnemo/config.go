package mnemo

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Defaults for the retrieval and distillation knobs.
const (
	DefaultRecallK         = 10
	DefaultMMRLambda       = 0.7
	DefaultRelevanceFloor  = 0.2
	DefaultDistillWindow   = 12
	DefaultDistillBatch    = 4
	DefaultFactMinLength   = 15
	DefaultFactMinSalience = 0.6
	DefaultContextTokens   = 600
	DefaultSalience        = 0.5

	// SalienceReinforce is added to every surfaced memory, capped at 1.0.
	SalienceReinforce = 0.05

	MinContentLength = 10
	MaxContentLength = 2000
)

var defaultTransiencePatterns = []string{
	`(?i)\b(today|tonight|tomorrow|yesterday|this (morning|afternoon|evening|week|weekend))\b`,
	`(?i)\b(can you|could you|would you|help me|please help)\b`,
	`(?i)\b(right now|just now|currently|at the moment)\b`,
}

var defaultNoisePatterns = []string{
	`(?i)^(ok(ay)?|yes|no|sure|maybe|thanks?( you)?|got it|sounds good|cool|nice)[\s.!]*$`,
	`(?i)^(hi|hello|hey|good (morning|afternoon|evening))\b`,
	`(?i)\b(as an ai|i am a language model)\b`,
}

type Config struct {
	mu sync.RWMutex

	// Embedding
	Dimension        int
	Providers        []string // ordered, e.g. ["openai", "siliconflow"]
	FallbackOnly     bool
	BreakerThreshold int
	BreakerCooldown  time.Duration
	EmbedTimeout     time.Duration

	// Retrieval
	RecallK        int
	MMRLambda      float64
	RelevanceFloor float64
	ContextTokens  int

	// Distillation
	DistillWindow   int
	DistillBatch    int
	FactMinLength   int
	FactMinSalience float64

	// Quality gate heuristics, overridable via environment (";;"-separated
	// regular expressions).
	TransiencePatterns []string
	NoisePatterns      []string

	ChatModel string
}

func newConfig() *Config {
	return &Config{
		Dimension:        envInt("MNEMO_EMBEDDING_DIMENSION", 1536),
		Providers:        envList("MNEMO_EMBEDDING_PROVIDERS", defaultProviders()),
		FallbackOnly:     os.Getenv("MNEMO_EMBEDDING_FALLBACK_ONLY") == "1",
		BreakerThreshold: envInt("MNEMO_BREAKER_THRESHOLD", 3),
		BreakerCooldown:  envDuration("MNEMO_BREAKER_COOLDOWN", 60*time.Second),
		EmbedTimeout:     envDuration("MNEMO_EMBED_TIMEOUT", 2*time.Second),

		RecallK:        envInt("MNEMO_RECALL_K", DefaultRecallK),
		MMRLambda:      envFloat("MNEMO_MMR_LAMBDA", DefaultMMRLambda),
		RelevanceFloor: envFloat("MNEMO_RELEVANCE_FLOOR", DefaultRelevanceFloor),
		ContextTokens:  envInt("MNEMO_CONTEXT_TOKENS", DefaultContextTokens),

		DistillWindow:   envInt("MNEMO_DISTILL_WINDOW", DefaultDistillWindow),
		DistillBatch:    envInt("MNEMO_DISTILL_BATCH", DefaultDistillBatch),
		FactMinLength:   envInt("MNEMO_FACT_MIN_LENGTH", DefaultFactMinLength),
		FactMinSalience: envFloat("MNEMO_FACT_MIN_SALIENCE", DefaultFactMinSalience),

		TransiencePatterns: envPatterns("MNEMO_TRANSIENCE_PATTERNS", defaultTransiencePatterns),
		NoisePatterns:      envPatterns("MNEMO_NOISE_PATTERNS", defaultNoisePatterns),

		ChatModel: envString("MNEMO_CHAT_MODEL", "gpt-4o-mini"),
	}
}

// defaultProviders derives the live provider order from which API keys
// are present.
func defaultProviders() []string {
	var out []string
	if os.Getenv("OPENAI_API_KEY") != "" {
		out = append(out, "openai")
	}
	if os.Getenv("SILICONFLOW_API_KEY") != "" {
		out = append(out, "siliconflow")
	}
	return out
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envPatterns(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ";;") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
