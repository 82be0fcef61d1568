package mnemo

import (
	"context"
	"fmt"
	"strings"

	"mnemogo/logging"
)

// Rough token heuristics: ~4 characters or ~1/4 word per token.
const (
	charsPerToken  = 4
	wordsPerTokens = 4
)

const (
	contextOpen  = "[MEMORY CONTEXT]"
	contextClose = "[END MEMORY CONTEXT]"
	contextRules = "Facts recalled about the user. Use them only when relevant to the request. Never invent details beyond these facts."
)

// Compressor collapses selected memory contents into a token-bounded
// block wrapped in a fixed instruction frame. The frame is part of the
// contract, not flavor text.
type Compressor struct {
	chat ChatClient
	cfg  *Config
}

func NewCompressor(chat ChatClient, cfg *Config) *Compressor {
	return &Compressor{chat: chat, cfg: cfg}
}

func (c *Compressor) Compress(ctx context.Context, texts []string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = c.cfg.ContextTokens
	}

	var lines []string
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t != "" {
			lines = append(lines, "- "+t)
		}
	}
	body := strings.Join(lines, "\n")

	budget := maxTokens * charsPerToken
	if len(body) > budget {
		body = c.shrink(ctx, body, maxTokens)
	}

	return frame(body)
}

// shrink asks the chat collaborator to summarize; when that is
// unavailable it falls back to hard truncation with an ellipsis.
func (c *Compressor) shrink(ctx context.Context, body string, maxTokens int) string {
	budget := maxTokens * charsPerToken

	if c.chat != nil {
		words := maxTokens / wordsPerTokens
		prompt := fmt.Sprintf(
			"Compress these facts about a user into at most %d words. Keep preferences, identity and project facts; drop incidental detail. Output plain lines, no commentary.\n\n%s",
			words, body)
		out, err := c.chat.Complete(ctx, []ChatMessage{{Role: "user", Content: prompt}})
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out)
		}
		logging.From(ctx).Warn("context compression call failed, truncating", "error", err)
	}

	return truncate(body, budget) + "..."
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary.
	for max > 0 && s[max]&0xC0 == 0x80 {
		max--
	}
	return s[:max]
}

func frame(body string) string {
	var b strings.Builder
	b.WriteString(contextOpen)
	b.WriteString("\n")
	b.WriteString(contextRules)
	b.WriteString("\n")
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	b.WriteString(contextClose)
	return b.String()
}
