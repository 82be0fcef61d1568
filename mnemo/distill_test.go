package mnemo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChat struct {
	out string
	err error

	calls int
	last  []ChatMessage
}

func (s *stubChat) Complete(_ context.Context, messages []ChatMessage) (string, error) {
	s.calls++
	s.last = messages
	return s.out, s.err
}

func TestDistill_ParsesAndFilters(t *testing.T) {
	chat := &stubChat{out: `Here are the facts I found:
[
  {"kind": "project", "content": "has been working on a synthesizer side project for two years", "tags": ["music"], "salience": 0.75},
  {"kind": "task", "content": "help me", "salience": 0.9},
  {"kind": "fact", "content": "wants the report finished today before the standup", "salience": 0.8},
  {"kind": "preference", "content": "prefers tabs over spaces in all languages", "salience": 0.3}
]`}

	d := NewDistiller(chat, newConfig())
	facts := d.Distill(context.Background(), []Turn{
		{Role: "user", Content: "I have been tinkering with my synth project again"},
		{Role: "assistant", Content: "That sounds fun!"},
	})

	require.Len(t, facts, 1)
	assert.Equal(t, KindProject, facts[0].Kind)
	assert.Equal(t, "has been working on a synthesizer side project for two years", facts[0].Content)
	assert.Equal(t, []string{"music"}, facts[0].Tags)
	assert.Equal(t, 1, chat.calls)
}

func TestDistill_NormalizesUnknownKind(t *testing.T) {
	chat := &stubChat{out: `[{"kind": "hobby", "content": "plays bass in a local cover band on weekends", "salience": 0.8}]`}

	d := NewDistiller(chat, newConfig())
	facts := d.Distill(context.Background(), []Turn{{Role: "user", Content: "x"}})

	require.Len(t, facts, 1)
	assert.Equal(t, KindFact, facts[0].Kind)
}

func TestDistill_NeverFails(t *testing.T) {
	cfg := newConfig()
	turns := []Turn{{Role: "user", Content: "hello"}}

	t.Run("nil chat client", func(t *testing.T) {
		d := NewDistiller(nil, cfg)
		assert.Nil(t, d.Distill(context.Background(), turns))
	})

	t.Run("transport error", func(t *testing.T) {
		d := NewDistiller(&stubChat{err: errors.New("boom")}, cfg)
		assert.Nil(t, d.Distill(context.Background(), turns))
	})

	t.Run("unparseable output", func(t *testing.T) {
		d := NewDistiller(&stubChat{out: "I could not find any durable facts."}, cfg)
		assert.Nil(t, d.Distill(context.Background(), turns))
	})

	t.Run("empty array", func(t *testing.T) {
		d := NewDistiller(&stubChat{out: "[]"}, cfg)
		assert.Empty(t, d.Distill(context.Background(), turns))
	})
}

func TestDistill_WindowsTurns(t *testing.T) {
	chat := &stubChat{out: "[]"}
	cfg := newConfig()
	cfg.DistillWindow = 2

	turns := []Turn{
		{Role: "user", Content: "oldest"},
		{Role: "assistant", Content: "middle"},
		{Role: "user", Content: "newest"},
	}
	NewDistiller(chat, cfg).Distill(context.Background(), turns)

	require.Len(t, chat.last, 2)
	transcript := chat.last[1].Content
	assert.NotContains(t, transcript, "oldest")
	assert.Contains(t, transcript, "middle")
	assert.Contains(t, transcript, "newest")
}

func TestReject_QualityGate(t *testing.T) {
	d := NewDistiller(nil, newConfig())

	cases := []struct {
		name      string
		candidate CandidateFact
		reason    string
	}{
		{"accepted", CandidateFact{Content: "prefers dark roast coffee from a local roaster", Salience: 0.9}, ""},
		{"too short", CandidateFact{Content: "likes tea", Salience: 0.9}, "too short"},
		{"low salience", CandidateFact{Content: "prefers dark roast coffee from a local roaster", Salience: 0.4}, "low salience"},
		{"transient time", CandidateFact{Content: "wants the deploy finished today no matter what", Salience: 0.9}, "transient phrasing"},
		{"transient request", CandidateFact{Content: "asked can you review the pull request", Salience: 0.9}, "transient phrasing"},
		{"noisy greeting", CandidateFact{Content: "good morning to everyone on the team", Salience: 0.9}, "noisy phrasing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.reason, d.reject(tc.candidate))
		})
	}
}

func TestCompilePatterns_SkipsInvalid(t *testing.T) {
	res := compilePatterns([]string{`\bvalid\b`, `(unbalanced`, `also valid`})
	assert.Len(t, res, 2)
}
