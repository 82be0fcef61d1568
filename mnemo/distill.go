package mnemo

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"mnemogo/logging"
)

const distillSystemPrompt = `You extract durable facts about the user from a conversation.
Return ONLY a JSON array. Each element:
{"kind": "profile|preference|project|fact|task|contact|custom", "content": "...", "tags": ["..."], "salience": 0.0-1.0}

Rules:
- Favor stable preferences, identity, projects and skills.
- Skip transient requests, time-bound statements and small talk.
- "content" is a single self-contained sentence about the user.
- "salience" is your confidence that the fact stays true and useful.
- Return [] when nothing durable was said.`

// Distiller extracts candidate durable facts from a conversation window
// and filters them through the quality gate.
type Distiller struct {
	chat ChatClient
	cfg  *Config

	transience []*regexp.Regexp
	noise      []*regexp.Regexp
}

func NewDistiller(chat ChatClient, cfg *Config) *Distiller {
	return &Distiller{
		chat:       chat,
		cfg:        cfg,
		transience: compilePatterns(cfg.TransiencePatterns),
		noise:      compilePatterns(cfg.NoisePatterns),
	}
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			logging.Default().Warn("skipping invalid quality pattern", "pattern", p, "error", err)
			continue
		}
		out = append(out, re)
	}
	return out
}

// Distill never fails: a missing chat client, a transport error or
// unparseable output all yield zero candidates.
func (d *Distiller) Distill(ctx context.Context, turns []Turn) []CandidateFact {
	if d.chat == nil || len(turns) == 0 {
		return nil
	}

	window := turns
	if len(window) > d.cfg.DistillWindow {
		window = window[len(window)-d.cfg.DistillWindow:]
	}

	var b strings.Builder
	for _, t := range window {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}

	out, err := d.chat.Complete(ctx, []ChatMessage{
		{Role: "system", Content: distillSystemPrompt},
		{Role: "user", Content: b.String()},
	})
	if err != nil {
		logging.From(ctx).Warn("distillation call failed", "error", err)
		return nil
	}

	candidates := parseCandidates(out)
	if candidates == nil {
		logging.From(ctx).Warn("distillation output not parseable", "output_len", len(out))
		return nil
	}

	var accepted []CandidateFact
	for _, c := range candidates {
		if reason := d.reject(c); reason != "" {
			logging.From(ctx).Debug("candidate fact rejected", "reason", reason, "content", c.Content)
			continue
		}
		if !ValidKind(c.Kind) {
			c.Kind = KindFact
		}
		accepted = append(accepted, c)
	}
	return accepted
}

// parseCandidates pulls the first JSON array out of the model output.
// Models wrap JSON in prose or code fences often enough that a plain
// Unmarshal of the whole string is not reliable.
func parseCandidates(out string) []CandidateFact {
	start := strings.Index(out, "[")
	end := strings.LastIndex(out, "]")
	if start == -1 || end <= start {
		return nil
	}
	var candidates []CandidateFact
	if err := json.Unmarshal([]byte(out[start:end+1]), &candidates); err != nil {
		return nil
	}
	return candidates
}

// reject returns a non-empty reason when the candidate fails the
// quality gate.
func (d *Distiller) reject(c CandidateFact) string {
	content := strings.TrimSpace(c.Content)
	if len(content) < d.cfg.FactMinLength {
		return "too short"
	}
	if len(content) > MaxContentLength {
		return "too long"
	}
	if c.Salience < d.cfg.FactMinSalience {
		return "low salience"
	}
	for _, re := range d.transience {
		if re.MatchString(content) {
			return "transient phrasing"
		}
	}
	for _, re := range d.noise {
		if re.MatchString(content) {
			return "noisy phrasing"
		}
	}
	return ""
}
