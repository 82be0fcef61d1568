package mnemo

import (
	"sort"

	"mnemogo/embed"
	"mnemogo/storage"
)

// Scored pairs a record with its cosine similarity to the query.
type Scored struct {
	Record     storage.MemoryRecord
	Similarity float64
}

// RankBySimilarity scores records against the query vector and returns
// them in descending similarity order. Records whose embedding length
// differs from the query are excluded rather than failing the ranking.
func RankBySimilarity(records []storage.MemoryRecord, query []float32) []Scored {
	out := make([]Scored, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) != len(query) {
			continue
		}
		out = append(out, Scored{
			Record:     rec,
			Similarity: embed.CosineSimilarity(rec.Embedding, query),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	return out
}

// SelectDiverse picks at most k candidates balancing relevance against
// redundancy (maximal marginal relevance). Candidates below the floor
// are dropped first; ties break toward the earlier candidate so the
// selection is deterministic.
func SelectDiverse(ranked []Scored, k int, lambda, floor float64) []Scored {
	var candidates []Scored
	for _, s := range ranked {
		if s.Similarity >= floor {
			candidates = append(candidates, s)
		}
	}

	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if len(candidates) <= k {
		return candidates
	}

	selected := make([]Scored, 0, k)
	selected = append(selected, candidates[0])
	remaining := append([]Scored(nil), candidates[1:]...)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := 0.0
		for i, cand := range remaining {
			maxToSelected := -1.0
			for _, sel := range selected {
				sim := embed.CosineSimilarity(cand.Record.Embedding, sel.Record.Embedding)
				if sim > maxToSelected {
					maxToSelected = sim
				}
			}
			score := lambda*cand.Similarity - (1-lambda)*maxToSelected
			if bestIdx == -1 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}
