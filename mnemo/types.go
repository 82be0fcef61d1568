package mnemo

import (
	"time"
)

// Memory kinds form a closed tag set.
const (
	KindProfile    = "profile"
	KindPreference = "preference"
	KindProject    = "project"
	KindFact       = "fact"
	KindTask       = "task"
	KindContact    = "contact"
	KindCustom     = "custom"
)

func ValidKind(kind string) bool {
	switch kind {
	case KindProfile, KindPreference, KindProject, KindFact, KindTask, KindContact, KindCustom:
		return true
	}
	return false
}

// Source origins.
const (
	SourceConversation = "conversation"
	SourceManual       = "manual"
)

// Turn is one role-tagged message of a conversation.
type Turn struct {
	Role    string
	Content string
}

// CandidateFact is a distilled fact before the quality gate. It comes
// back from a generative model and is treated as untrusted input.
type CandidateFact struct {
	Kind     string   `json:"kind"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags"`
	Salience float64  `json:"salience"`
}

// Memory is the retrieval-time view of a stored record.
type Memory struct {
	ID         string
	Kind       string
	Content    string
	Salience   float64
	Similarity float64
	Tags       []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RecallResult is what a retrieval returns: the selected memories and a
// token-bounded context block ready for prompt injection.
type RecallResult struct {
	Context  string
	Memories []Memory
}
