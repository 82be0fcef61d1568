package storage

import (
	"strings"
	"time"
)

// Repos is implemented by drivers that expose the memory repository.
type Repos interface {
	Memories() MemoryRepo
}

// MemoryRepo is the persistence boundary of the engine. The engine
// tolerates an empty or unavailable store; callers treat read errors as
// "no memories found".
type MemoryRepo interface {
	// FindByOwner returns the owner's records. With liveOnly set, records
	// whose decay time has passed are excluded.
	FindByOwner(owner string, liveOnly bool) ([]MemoryRecord, error)

	// UpsertByOwnerAndContent inserts or refreshes the record identified
	// by (owner, content). An existing record keeps its creation time and
	// gets its update time refreshed.
	UpsertByOwnerAndContent(owner, content string, fields UpsertFields) (MemoryRecord, error)

	// UpdateSalience shifts salience by delta for each id, clamped to
	// [0, 1], and refreshes the update time.
	UpdateSalience(ids []string, delta float64) error

	// DeleteByOwner removes all of the owner's records and returns how
	// many were deleted.
	DeleteByOwner(owner string) (int64, error)
}

// ScoredRecord pairs a record with its similarity to a query vector.
type ScoredRecord struct {
	Record     MemoryRecord
	Similarity float64
}

// VectorIndex is an optional capability: drivers with a native vector
// query (chromem) can pre-narrow candidates before the engine ranks them.
type VectorIndex interface {
	SearchByEmbedding(owner string, query []float32, limit int) ([]ScoredRecord, error)
}

func decodeAnyTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return parseTimeString(x)
	case []byte:
		return parseTimeString(string(x))
	default:
		return time.Time{}, false
	}
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05", // SQLite datetime('now')
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05.999999999-07:00",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
