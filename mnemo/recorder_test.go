package mnemo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingChat captures the transcript of every distillation call.
type countingChat struct {
	mu          sync.Mutex
	transcripts []string
}

func (c *countingChat) Complete(_ context.Context, messages []ChatMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcripts = append(c.transcripts, messages[len(messages)-1].Content)
	return "[]", nil
}

func (c *countingChat) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.transcripts)
}

func (c *countingChat) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.transcripts...)
}

// Chat callers resend the full message history on every request. Only
// the turns a recorder has not seen yet may count toward the batching
// trigger, and old turns must not reappear in the distillation window.
func TestChatRecorderRecordsOnlyNewTurns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"ack"}}]}`)
	}))
	defer srv.Close()

	chat := &countingChat{}
	m := New(WithChatClient(chat))
	rec := m.NewChatRecorder("alice", NewOpenAICompatClient(OpenAICompatOptions{BaseURL: srv.URL}))

	var history []ChatMessage
	for i := 1; i <= 3; i++ {
		history = append(history, ChatMessage{Role: "user", Content: fmt.Sprintf("turn-%d", i)})
		resp, err := rec.ChatCompletionsCreate(context.Background(), ChatCompletionsRequest{Messages: history})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Choices)
		history = append(history, ChatMessage{Role: "assistant", Content: resp.Choices[0].Message.Content})
	}

	// Three exchanges produce six new turns: one batch after the second
	// exchange, none after the third.
	deadline := time.Now().Add(2 * time.Second)
	for chat.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)

	transcripts := chat.snapshot()
	require.Len(t, transcripts, 1, "re-sent history must not re-trigger distillation")
	assert.Equal(t, 1, strings.Count(transcripts[0], "turn-1"), "old turns must not be re-recorded")
	assert.Contains(t, transcripts[0], "turn-2")
}

func TestRecordedPrefix(t *testing.T) {
	a := ChatMessage{Role: "user", Content: "a"}
	b := ChatMessage{Role: "assistant", Content: "b"}
	c := ChatMessage{Role: "user", Content: "c"}

	cases := []struct {
		name      string
		recorded  []ChatMessage
		messages  []ChatMessage
		wantStart int
	}{
		{"empty recorded", nil, []ChatMessage{a, b}, 0},
		{"grown history", []ChatMessage{a, b}, []ChatMessage{a, b, c}, 2},
		{"identical", []ChatMessage{a, b}, []ChatMessage{a, b}, 2},
		{"rewritten history", []ChatMessage{a, b}, []ChatMessage{c, a}, 0},
		{"truncated history", []ChatMessage{a, b, c}, []ChatMessage{a}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantStart, recordedPrefix(tc.recorded, tc.messages))
		})
	}
}
