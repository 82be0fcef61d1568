package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

// ChromemDriver keeps memories in an embedded chromem-go vector database.
// chromem answers the similarity query; record bookkeeping (salience,
// decay, timestamps) lives beside it in process memory. Suited for local
// and test deployments, not for durable multi-process storage.
type ChromemDriver struct {
	a *ChromemAdapter

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	records     map[string]MemoryRecord // by record id
	byOwnerKey  map[string]string       // owner + "\x00" + uniq -> record id
}

func newChromemDriver(adapter Adapter) (Driver, error) {
	a, ok := adapter.(*ChromemAdapter)
	if !ok {
		return nil, fmt.Errorf("chromem driver expects *ChromemAdapter, got %T", adapter)
	}
	return &ChromemDriver{
		a:           a,
		collections: make(map[string]*chromem.Collection),
		records:     make(map[string]MemoryRecord),
		byOwnerKey:  make(map[string]string),
	}, nil
}

func (d *ChromemDriver) Dialect() string { return "chromem" }

// Migrate is a no-op; chromem collections are created on demand.
func (d *ChromemDriver) Migrate() error { return nil }

func (d *ChromemDriver) Memories() MemoryRepo { return d }

func ownerKey(owner, uniq string) string { return owner + "\x00" + uniq }

func collectionName(owner string) string {
	if owner == "" {
		return "mnemo-global"
	}
	return "mnemo-" + owner
}

func (d *ChromemDriver) collection(owner string) (*chromem.Collection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.collectionLocked(owner)
}

func (d *ChromemDriver) collectionLocked(owner string) (*chromem.Collection, error) {
	if col, ok := d.collections[owner]; ok {
		return col, nil
	}
	col, err := d.a.DB.GetOrCreateCollection(collectionName(owner), nil, nil)
	if err != nil {
		return nil, err
	}
	d.collections[owner] = col
	return col, nil
}

func (d *ChromemDriver) FindByOwner(owner string, liveOnly bool) ([]MemoryRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := time.Now()
	var out []MemoryRecord
	for _, rec := range d.records {
		if rec.Owner != owner {
			continue
		}
		if liveOnly && !rec.Live(now) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (d *ChromemDriver) UpsertByOwnerAndContent(owner, content string, fields UpsertFields) (MemoryRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	uniq := ContentKey(content)
	key := ownerKey(owner, uniq)
	now := time.Now()

	rec, exists := MemoryRecord{}, false
	if id, ok := d.byOwnerKey[key]; ok {
		rec, exists = d.records[id], true
	}
	if !exists {
		rec = MemoryRecord{
			ID:        uuid.New().String(),
			Owner:     owner,
			Content:   content,
			Salience:  fields.Salience,
			CreatedAt: now,
		}
	}

	rec.Kind = fields.Kind
	rec.Embedding = fields.Embedding
	rec.DecayAt = fields.DecayAt
	rec.SourceOrigin = fields.SourceOrigin
	rec.SourceContext = fields.SourceContext
	rec.Tags = fields.Tags
	rec.UpdatedAt = now
	if fields.Salience > rec.Salience {
		rec.Salience = fields.Salience
	}

	col, err := d.collectionLocked(owner)
	if err != nil {
		return MemoryRecord{}, err
	}
	if len(rec.Embedding) > 0 {
		err = col.AddDocument(context.Background(), chromem.Document{
			ID:        rec.ID,
			Content:   content,
			Embedding: rec.Embedding,
		})
		if err != nil {
			return MemoryRecord{}, err
		}
	}

	d.records[rec.ID] = rec
	d.byOwnerKey[key] = rec.ID
	return rec, nil
}

func (d *ChromemDriver) UpdateSalience(ids []string, delta float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		rec, ok := d.records[id]
		if !ok {
			continue
		}
		rec.Salience += delta
		if rec.Salience > 1.0 {
			rec.Salience = 1.0
		}
		if rec.Salience < 0.0 {
			rec.Salience = 0.0
		}
		rec.UpdatedAt = now
		d.records[id] = rec
	}
	return nil
}

func (d *ChromemDriver) DeleteByOwner(owner string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var count int64
	for id, rec := range d.records {
		if rec.Owner != owner {
			continue
		}
		delete(d.records, id)
		delete(d.byOwnerKey, ownerKey(owner, ContentKey(rec.Content)))
		count++
	}

	if _, ok := d.collections[owner]; ok {
		if err := d.a.DB.DeleteCollection(collectionName(owner)); err != nil {
			return count, err
		}
		delete(d.collections, owner)
	}
	return count, nil
}

// SearchByEmbedding narrows candidates with chromem's native vector query.
// Decayed records are filtered out before the results are returned.
func (d *ChromemDriver) SearchByEmbedding(owner string, query []float32, limit int) ([]ScoredRecord, error) {
	col, err := d.collection(owner)
	if err != nil {
		return nil, err
	}

	n := col.Count()
	if n == 0 || limit <= 0 {
		return nil, nil
	}
	if limit > n {
		limit = n
	}

	results, err := col.QueryEmbedding(context.Background(), query, limit, nil, nil)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	now := time.Now()
	var out []ScoredRecord
	for _, res := range results {
		rec, ok := d.records[res.ID]
		if !ok || !rec.Live(now) {
			continue
		}
		out = append(out, ScoredRecord{Record: rec, Similarity: float64(res.Similarity)})
	}
	return out, nil
}
