package mnemo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemogo/storage"
)

// brokenStore is a storage backend whose repo methods can be forced to
// fail. It registers with the storage registry like any real driver so
// the engine wires it through the ordinary path.
type brokenStore struct {
	records     []storage.MemoryRecord
	findErr     error
	salienceErr error

	salienceCalls atomic.Int32
}

func (s *brokenStore) Dialect() string              { return "broken-store" }
func (s *brokenStore) Migrate() error               { return nil }
func (s *brokenStore) Memories() storage.MemoryRepo { return s }

func (s *brokenStore) DeleteByOwner(string) (int64, error) { return 0, nil }

func (s *brokenStore) FindByOwner(owner string, liveOnly bool) ([]storage.MemoryRecord, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.records, nil
}

func (s *brokenStore) UpsertByOwnerAndContent(owner, content string, fields storage.UpsertFields) (storage.MemoryRecord, error) {
	return storage.MemoryRecord{}, errors.New("read-only fixture")
}

func (s *brokenStore) UpdateSalience(ids []string, delta float64) error {
	s.salienceCalls.Add(1)
	return s.salienceErr
}

func init() {
	storage.RegisterAdapter(
		func(conn any) bool { _, ok := conn.(*brokenStore); return ok },
		func(conn any) (storage.Adapter, error) { return conn.(*brokenStore), nil },
	)
	storage.RegisterDriver("broken-store", func(a storage.Adapter) (storage.Driver, error) {
		return a.(*brokenStore), nil
	})
}

func TestRecallStoreErrorReadsAsNoMemories(t *testing.T) {
	t.Setenv("MNEMO_EMBEDDING_DIMENSION", "32")
	t.Setenv("MNEMO_EMBEDDING_FALLBACK_ONLY", "1")

	store := &brokenStore{findErr: errors.New("backend down")}
	m := New(WithStorageConn(store))

	res, err := m.Recall(context.Background(), "alice", "anything at all")
	require.NoError(t, err, "a failing store must not surface as a recall error")
	assert.Equal(t, frame(""), res.Context)
	assert.Empty(t, res.Memories)
}

func TestRecallSalienceWriteFailureOnlyWarns(t *testing.T) {
	t.Setenv("MNEMO_EMBEDDING_DIMENSION", "32")
	t.Setenv("MNEMO_EMBEDDING_FALLBACK_ONLY", "1")

	store := &brokenStore{salienceErr: errors.New("write refused")}
	m := New(WithStorageConn(store))

	content := "keeps bees on the office roof"
	vec, err := m.Embedder.EmbedText(context.Background(), content)
	require.NoError(t, err)
	store.records = []storage.MemoryRecord{{
		ID:        "m1",
		Owner:     "alice",
		Kind:      KindFact,
		Content:   content,
		Embedding: vec,
		Salience:  0.7,
	}}

	res, err := m.Recall(context.Background(), "alice", "bees", WithRelevanceFloor(-1))
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.Contains(t, res.Context, content)
	assert.Equal(t, int32(1), store.salienceCalls.Load(), "reinforcement must still be attempted")
}
