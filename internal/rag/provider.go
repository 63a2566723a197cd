package rag

import (
	"context"

	"github.com/xaenox/rag-backend/internal/models"
)

// Passage is one retrieved chunk of indexed text. Score is nil when
// the provider did not report a relevance score for it.
type Passage struct {
	Text     string
	Score    *float64
	Metadata map[string]string
}

// SearchResult is the provider's response for one query: the passages
// it matched plus its own answer synthesized from them. Answer may be
// empty when the provider found nothing to ground an answer on.
type SearchResult struct {
	Answer   string
	Passages []Passage
}

// Document is a unit of text to index.
type Document struct {
	Text     string
	Metadata map[string]string
}

// SearchProvider is the similarity-search collaborator.
type SearchProvider interface {
	Search(ctx context.Context, query string, topK int) (*SearchResult, error)
	Insert(ctx context.Context, doc Document) error
}

// ChatMessage is a role-tagged message for the generative provider.
type ChatMessage struct {
	Role    models.MessageRole
	Content string
}

// Generator is the generative-language-model collaborator.
type Generator interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}
