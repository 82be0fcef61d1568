package mnemo

import (
	"context"
	"time"

	"mnemogo/logging"
	"mnemogo/storage"
)

type recallOptions struct {
	k         int
	lambda    float64
	floor     float64
	maxTokens int
}

type RecallOption func(*recallOptions)

func WithK(k int) RecallOption {
	return func(o *recallOptions) { o.k = k }
}

func WithLambda(lambda float64) RecallOption {
	return func(o *recallOptions) { o.lambda = lambda }
}

func WithRelevanceFloor(floor float64) RecallOption {
	return func(o *recallOptions) { o.floor = floor }
}

func WithMaxTokens(n int) RecallOption {
	return func(o *recallOptions) { o.maxTokens = n }
}

// Recall runs the retrieval pipeline for one owner: embed the query,
// fetch live memories, rank by similarity, select a diverse subset,
// compress into a context block, then reinforce what was surfaced.
//
// Recall degrades instead of failing: a missing or erroring store reads
// as "no memories", and the result always carries a well-formed
// (possibly empty) context block.
func (m *Mnemo) Recall(ctx context.Context, owner, query string, opts ...RecallOption) (RecallResult, error) {
	o := recallOptions{
		k:         m.Config.RecallK,
		lambda:    m.Config.MMRLambda,
		floor:     m.Config.RelevanceFloor,
		maxTokens: m.Config.ContextTokens,
	}
	for _, opt := range opts {
		opt(&o)
	}

	empty := RecallResult{Context: frame("")}
	if owner == "" {
		return empty, ErrInvalidOwner
	}

	qvec, _ := m.Embedder.EmbedText(ctx, query)

	ranked := m.candidates(ctx, owner, qvec, o.k)
	if len(ranked) == 0 {
		return empty, nil
	}

	selected := SelectDiverse(ranked, o.k, o.lambda, o.floor)
	if len(selected) == 0 {
		return empty, nil
	}

	texts := make([]string, 0, len(selected))
	ids := make([]string, 0, len(selected))
	memories := make([]Memory, 0, len(selected))
	for _, s := range selected {
		texts = append(texts, s.Record.Content)
		ids = append(ids, s.Record.ID)
		memories = append(memories, Memory{
			ID:         s.Record.ID,
			Kind:       s.Record.Kind,
			Content:    s.Record.Content,
			Salience:   s.Record.Salience,
			Similarity: s.Similarity,
			Tags:       s.Record.Tags,
			CreatedAt:  s.Record.CreatedAt,
			UpdatedAt:  s.Record.UpdatedAt,
		})
	}

	result := RecallResult{
		Context:  m.Compressor.Compress(ctx, texts, o.maxTokens),
		Memories: memories,
	}

	// Usage-based reinforcement for surfaced memories only.
	if repo := m.Storage.Memories(); repo != nil {
		if err := repo.UpdateSalience(ids, SalienceReinforce); err != nil {
			logging.From(ctx).Warn("salience reinforcement failed", "error", err)
		}
	}

	return result, nil
}

// candidates fetches and ranks the owner's live memories. Drivers with
// a native vector index pre-narrow the set; the plain path fetches all
// live records and ranks in process.
func (m *Mnemo) candidates(ctx context.Context, owner string, qvec []float32, k int) []Scored {
	repo := m.Storage.Memories()
	if repo == nil {
		return nil
	}

	scanLimit := k * 10
	if scanLimit < k {
		scanLimit = k
	}

	if vi, ok := repo.(storage.VectorIndex); ok {
		hits, err := vi.SearchByEmbedding(owner, qvec, scanLimit)
		if err != nil {
			logging.From(ctx).Warn("vector search failed, treating as no memories", "error", err)
			return nil
		}
		now := time.Now()
		out := make([]Scored, 0, len(hits))
		for _, h := range hits {
			if !h.Record.Live(now) || len(h.Record.Embedding) != len(qvec) {
				continue
			}
			out = append(out, Scored{Record: h.Record, Similarity: h.Similarity})
		}
		return out
	}

	records, err := repo.FindByOwner(owner, true)
	if err != nil {
		logging.From(ctx).Warn("memory fetch failed, treating as no memories", "error", err)
		return nil
	}

	now := time.Now()
	live := records[:0]
	for _, rec := range records {
		if rec.Live(now) {
			live = append(live, rec)
		}
	}
	return RankBySimilarity(live, qvec)
}
