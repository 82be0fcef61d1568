package mnemo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompress_EmptyInput(t *testing.T) {
	c := NewCompressor(nil, newConfig())

	out := c.Compress(context.Background(), nil, 0)

	assert.True(t, strings.HasPrefix(out, contextOpen))
	assert.True(t, strings.HasSuffix(out, contextClose))
	assert.Contains(t, out, contextRules)
}

func TestCompress_UnderBudgetKeepsFactsVerbatim(t *testing.T) {
	chat := &stubChat{out: "should not be called"}
	c := NewCompressor(chat, newConfig())

	out := c.Compress(context.Background(), []string{
		"prefers dark roast coffee",
		"  plays bass on weekends  ",
		"",
	}, 100)

	assert.Contains(t, out, "- prefers dark roast coffee")
	assert.Contains(t, out, "- plays bass on weekends")
	assert.Equal(t, 0, chat.calls, "no summarization under budget")
}

func TestCompress_OverBudgetSummarizes(t *testing.T) {
	chat := &stubChat{out: "works on synths, prefers dark roast"}
	c := NewCompressor(chat, newConfig())

	texts := []string{strings.Repeat("a long memory about the user ", 20)}
	out := c.Compress(context.Background(), texts, 10)

	assert.Equal(t, 1, chat.calls)
	assert.Contains(t, out, "works on synths, prefers dark roast")
	assert.True(t, strings.HasPrefix(out, contextOpen))
	assert.True(t, strings.HasSuffix(out, contextClose))
}

func TestCompress_TruncationFallback(t *testing.T) {
	maxTokens := 10
	texts := []string{strings.Repeat("verbose detail about the user ", 20)}

	for name, chat := range map[string]ChatClient{
		"no chat client": nil,
		"chat error":     &stubChat{err: errors.New("down")},
	} {
		t.Run(name, func(t *testing.T) {
			var c *Compressor
			if chat == nil {
				c = NewCompressor(nil, newConfig())
			} else {
				c = NewCompressor(chat, newConfig())
			}
			out := c.Compress(context.Background(), texts, maxTokens)

			body := strings.TrimSuffix(strings.TrimPrefix(out, contextOpen+"\n"+contextRules+"\n"), "\n"+contextClose)
			require.True(t, strings.HasSuffix(body, "..."))
			assert.LessOrEqual(t, len(body), maxTokens*charsPerToken+3)
		})
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 10) // 2 bytes per rune
	out := truncate(s, 5)
	assert.Equal(t, 4, len(out))
	assert.Equal(t, "éé", out)
}
