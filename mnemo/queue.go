package mnemo

import (
	"context"
	"sync"

	"mnemogo/logging"
	"mnemogo/storage"
)

type distillJob struct {
	ConversationID string
	Owner          string
	Turns          []Turn
}

// distillQueue runs distillation off the request path: a buffered
// channel feeding a small worker pool. Enqueue never blocks; when the
// queue is full or the conversation already has a job in flight, the
// job is dropped and the turn counter keeps accumulating so a later
// turn retries.
type distillQueue struct {
	m         *Mnemo
	startOnce sync.Once
	queue     chan distillJob
	workers   int

	mu       sync.Mutex
	inflight map[string]bool
}

func newDistillQueue(m *Mnemo) *distillQueue {
	return &distillQueue{
		m:        m,
		queue:    make(chan distillJob, 1000),
		workers:  8,
		inflight: make(map[string]bool),
	}
}

func (q *distillQueue) start() {
	q.startOnce.Do(func() {
		for i := 0; i < q.workers; i++ {
			go q.worker()
		}
	})
}

// tryEnqueue reports whether the job was accepted.
func (q *distillQueue) tryEnqueue(job distillJob) bool {
	if job.Owner == "" || job.ConversationID == "" {
		return false
	}
	q.start()

	q.mu.Lock()
	if q.inflight[job.ConversationID] {
		q.mu.Unlock()
		return false
	}
	q.inflight[job.ConversationID] = true
	q.mu.Unlock()

	select {
	case q.queue <- job:
		return true
	default:
		// keep the request path low-latency; drop when full
		q.release(job.ConversationID)
		return false
	}
}

func (q *distillQueue) release(conversationID string) {
	q.mu.Lock()
	delete(q.inflight, conversationID)
	q.mu.Unlock()
}

func (q *distillQueue) worker() {
	for job := range q.queue {
		q.m.processDistill(context.Background(), job)
		q.release(job.ConversationID)
	}
}

// processDistill extracts facts from the job's turn window and persists
// the survivors. A failed write drops that candidate; retry is the
// surrounding system's concern.
func (m *Mnemo) processDistill(ctx context.Context, job distillJob) {
	candidates := m.Distiller.Distill(ctx, job.Turns)
	if len(candidates) == 0 {
		return
	}

	repo := m.Storage.Memories()
	if repo == nil {
		return
	}

	for _, c := range candidates {
		vec, _ := m.Embedder.EmbedText(ctx, c.Content)
		if len(vec) != m.Config.Dimension {
			continue
		}
		_, err := repo.UpsertByOwnerAndContent(job.Owner, c.Content, storage.UpsertFields{
			Kind:          c.Kind,
			Embedding:     vec,
			Salience:      clamp01(c.Salience),
			SourceOrigin:  SourceConversation,
			SourceContext: job.ConversationID,
			Tags:          c.Tags,
		})
		if err != nil {
			logging.From(ctx).Warn("dropping distilled fact, store write failed",
				"owner", job.Owner, "error", err)
		}
	}
}
