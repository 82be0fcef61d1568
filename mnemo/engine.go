package mnemo

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"mnemogo/embed"
	"mnemogo/logging"
	"mnemogo/storage"
)

var (
	ErrNoStorage      = goerr.New("no storage attached")
	ErrInvalidOwner   = goerr.New("owner must not be empty")
	ErrInvalidContent = goerr.New("content length out of bounds")
)

// Mnemo is the semantic memory engine: it turns conversation into
// durable vector-indexed facts and recalls a relevant, diverse,
// token-bounded subset of them for a query.
type Mnemo struct {
	Config *Config

	Storage  *storage.Manager
	Embedder embed.Embedder
	Chat     ChatClient

	Distiller  *Distiller
	Compressor *Compressor

	queue         *distillQueue
	conversations *conversationSet
}

type Option func(*Mnemo)

func New(opts ...Option) *Mnemo {
	m := &Mnemo{
		Config: newConfig(),
	}

	for _, opt := range opts {
		opt(m)
	}

	// Defaults
	if m.Storage == nil {
		m.Storage = storage.NewManager()
	}
	if m.Embedder == nil {
		m.Embedder = newChainFromConfig(m.Config)
	}
	if m.Chat == nil && os.Getenv("OPENAI_API_KEY") != "" {
		m.Chat = NewOpenAICompatClient(OpenAICompatOptions{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  m.Config.ChatModel,
		})
	}

	m.Distiller = NewDistiller(m.Chat, m.Config)
	m.Compressor = NewCompressor(m.Chat, m.Config)
	m.queue = newDistillQueue(m)
	m.conversations = newConversationSet()
	return m
}

func WithStorageConn(conn any) Option {
	return func(m *Mnemo) {
		m.Storage = storage.NewManager()
		if err := m.Storage.Start(conn); err != nil {
			logging.Default().Error("failed to start storage", "error", err)
		}
	}
}

func WithEmbedder(e embed.Embedder) Option {
	return func(m *Mnemo) { m.Embedder = e }
}

func WithChatClient(c ChatClient) Option {
	return func(m *Mnemo) { m.Chat = c }
}

func newChainFromConfig(cfg *Config) *embed.Chain {
	var providers []embed.Embedder
	for _, name := range cfg.Providers {
		providers = append(providers, embed.NewEmbedder(embed.Config{
			Provider:  name,
			APIKey:    providerAPIKey(name),
			Dimension: cfg.Dimension,
		}))
	}
	return embed.NewChain(embed.ChainConfig{
		Dimension:        cfg.Dimension,
		Providers:        providers,
		FallbackOnly:     cfg.FallbackOnly,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
		AttemptTimeout:   cfg.EmbedTimeout,
	})
}

func providerAPIKey(name string) string {
	switch name {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "siliconflow":
		return os.Getenv("SILICONFLOW_API_KEY")
	}
	return ""
}

// MemoryInput is a directly stored memory.
type MemoryInput struct {
	Kind          string
	Content       string
	Tags          []string
	Salience      float64 // zero means DefaultSalience
	DecayAt       *time.Time
	SourceOrigin  string // default "manual"
	SourceContext string
}

// Remember validates, embeds and upserts a memory for the owner.
// Storing the same (owner, content) twice refreshes the existing record.
func (m *Mnemo) Remember(ctx context.Context, owner string, in MemoryInput) (storage.MemoryRecord, error) {
	if owner == "" {
		return storage.MemoryRecord{}, ErrInvalidOwner
	}
	if len(in.Content) < MinContentLength || len(in.Content) > MaxContentLength {
		return storage.MemoryRecord{}, goerr.Wrap(ErrInvalidContent, "rejecting memory",
			goerr.Value("length", len(in.Content)))
	}

	kind := in.Kind
	if !ValidKind(kind) {
		kind = KindFact
	}
	salience := clamp01(in.Salience)
	if in.Salience == 0 {
		salience = DefaultSalience
	}
	origin := in.SourceOrigin
	if origin == "" {
		origin = SourceManual
	}

	vec, _ := m.Embedder.EmbedText(ctx, in.Content)
	if len(vec) != m.Config.Dimension {
		// Mixed dimensionalities would poison similarity comparisons.
		return storage.MemoryRecord{}, goerr.New("embedding dimension mismatch",
			goerr.Value("got", len(vec)), goerr.Value("want", m.Config.Dimension))
	}

	repo := m.Storage.Memories()
	if repo == nil {
		return storage.MemoryRecord{}, ErrNoStorage
	}

	rec, err := repo.UpsertByOwnerAndContent(owner, in.Content, storage.UpsertFields{
		Kind:          kind,
		Embedding:     vec,
		Salience:      salience,
		DecayAt:       in.DecayAt,
		SourceOrigin:  origin,
		SourceContext: in.SourceContext,
		Tags:          in.Tags,
	})
	if err != nil {
		return storage.MemoryRecord{}, goerr.Wrap(err, "failed to upsert memory",
			goerr.Value("owner", owner))
	}
	return rec, nil
}

// Forget removes every memory of the owner and returns the count.
func (m *Mnemo) Forget(ctx context.Context, owner string) (int64, error) {
	if owner == "" {
		return 0, ErrInvalidOwner
	}
	repo := m.Storage.Memories()
	if repo == nil {
		return 0, ErrNoStorage
	}
	n, err := repo.DeleteByOwner(owner)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete memories", goerr.Value("owner", owner))
	}
	return n, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
