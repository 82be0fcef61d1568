package mnemo

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type conversation struct {
	mu           sync.Mutex
	turns        []Turn
	sinceDistill int
}

type conversationSet struct {
	mu    sync.Mutex
	convs map[string]*conversation
}

func newConversationSet() *conversationSet {
	return &conversationSet{convs: make(map[string]*conversation)}
}

func (s *conversationSet) get(id string) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		c = &conversation{}
		s.convs[id] = c
	}
	return c
}

// RecordTurns appends turns to a conversation and enqueues an async
// distillation once enough new turns accumulated. The caller is never
// blocked on distillation.
func (m *Mnemo) RecordTurns(owner, conversationID string, turns ...Turn) {
	if owner == "" || conversationID == "" || len(turns) == 0 {
		return
	}

	c := m.conversations.get(conversationID)
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range turns {
		if t.Role == "system" || strings.TrimSpace(t.Content) == "" {
			continue
		}
		c.turns = append(c.turns, t)
		c.sinceDistill++
	}

	// Keep a bounded tail; the distiller only ever looks at the window.
	if max := m.Config.DistillWindow * 2; len(c.turns) > max {
		c.turns = c.turns[len(c.turns)-max:]
	}

	if c.sinceDistill < m.Config.DistillBatch {
		return
	}

	window := c.turns
	if len(window) > m.Config.DistillWindow {
		window = window[len(window)-m.Config.DistillWindow:]
	}
	snapshot := append([]Turn(nil), window...)

	if m.queue.tryEnqueue(distillJob{
		ConversationID: conversationID,
		Owner:          owner,
		Turns:          snapshot,
	}) {
		c.sinceDistill = 0
	}
}

// ChatRecorder wraps an OpenAI-compatible chat client so that every
// exchange is recorded against a conversation and distilled in the
// background. The chat response itself is returned untouched.
type ChatRecorder struct {
	m              *Mnemo
	raw            *OpenAICompatClient
	owner          string
	conversationID string

	mu       sync.Mutex
	recorded []ChatMessage
}

// NewChatRecorder binds a raw client to an owner. A nil client falls
// back to the environment-configured OpenAI client.
func (m *Mnemo) NewChatRecorder(owner string, client *OpenAICompatClient) *ChatRecorder {
	if client == nil {
		client = NewOpenAIClient()
	}
	return &ChatRecorder{
		m:              m,
		raw:            client,
		owner:          owner,
		conversationID: uuid.New().String(),
	}
}

func (r *ChatRecorder) ConversationID() string { return r.conversationID }

func (r *ChatRecorder) ChatCompletionsCreate(ctx context.Context, req ChatCompletionsRequest) (ChatCompletionsResponse, error) {
	resp, err := r.raw.ChatCompletionsCreate(ctx, req)
	if err != nil {
		return resp, err
	}

	assistant := ""
	if len(resp.Choices) > 0 {
		assistant = resp.Choices[0].Message.Content
	}
	r.record(req.Messages, assistant)
	return resp, nil
}

func (r *ChatRecorder) ChatCompletionsStream(ctx context.Context, req ChatCompletionsRequest) (<-chan StreamEvent, <-chan error) {
	inEvents, inErrs := r.raw.ChatCompletionsStream(ctx, req)

	outEvents := make(chan StreamEvent, 128)
	outErrs := make(chan error, 1)

	go func() {
		defer close(outEvents)
		defer close(outErrs)

		var b strings.Builder

		for {
			select {
			case ev, ok := <-inEvents:
				if !ok {
					// Stream ended without explicit [DONE]
					r.record(req.Messages, b.String())
					return
				}

				outEvents <- ev

				if ev.Chunk != nil && len(ev.Chunk.Choices) > 0 {
					b.WriteString(ev.Chunk.Choices[0].Delta.Content)
				}

				if ev.Done {
					r.record(req.Messages, b.String())
					return
				}

			case err, ok := <-inErrs:
				if ok && err != nil {
					outErrs <- err
				}
				// Record the partial exchange best-effort.
				r.record(req.Messages, b.String())
				return
			}
		}
	}()

	return outEvents, outErrs
}

// record forwards only the turns this recorder has not seen yet.
// Chat callers resend the whole message history on every request;
// counting that history again would both re-trigger distillation
// batching on every exchange and flood the distillation window with
// duplicates of old turns.
func (r *ChatRecorder) record(messages []ChatMessage, assistant string) {
	r.mu.Lock()
	fresh := messages[recordedPrefix(r.recorded, messages):]

	r.recorded = append(r.recorded[:0], messages...)
	if strings.TrimSpace(assistant) != "" {
		r.recorded = append(r.recorded, ChatMessage{Role: "assistant", Content: assistant})
	}
	r.mu.Unlock()

	turns := make([]Turn, 0, len(fresh)+1)
	for _, msg := range fresh {
		turns = append(turns, Turn{Role: msg.Role, Content: msg.Content})
	}
	if strings.TrimSpace(assistant) != "" {
		turns = append(turns, Turn{Role: "assistant", Content: assistant})
	}
	r.m.RecordTurns(r.owner, r.conversationID, turns...)
}

// recordedPrefix returns how many leading messages are already part of
// the recorded history. A rewritten or truncated history records from
// the first divergent message on.
func recordedPrefix(recorded, messages []ChatMessage) int {
	n := len(recorded)
	if len(messages) < n {
		n = len(messages)
	}
	for i := 0; i < n; i++ {
		if recorded[i] != messages[i] {
			return i
		}
	}
	return n
}
