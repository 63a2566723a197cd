package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/rag-backend/internal/models"
	"go.uber.org/zap"
)

const (
	// EmptyQueryReply is returned for blank questions without touching
	// any provider.
	EmptyQueryReply = "Please provide a valid question."

	// ApologyReply substitutes a blank generative response so the
	// caller always gets a non-empty answer.
	ApologyReply = "I apologize, but I'm unable to generate a response at this time."

	// emptyAnswerSentinel is the provider's way of saying it had no
	// grounded answer despite returning passages.
	emptyAnswerSentinel = "Empty Response"

	// fallbackSource marks Q&A pairs written back into the index after
	// a fallback, so retrieved provenance stays visible.
	fallbackSource = "LLM Response"
)

// Router decides between a retrieval-grounded answer and a direct
// generative fallback based on retrieval confidence, the mean
// relevance score over retrieved passages.
type Router struct {
	search    SearchProvider
	generator Generator
	threshold float64
	topK      int
	logger    *zap.Logger
}

func NewRouter(search SearchProvider, generator Generator, threshold float64, topK int, logger *zap.Logger) *Router {
	return &Router{
		search:    search,
		generator: generator,
		threshold: threshold,
		topK:      topK,
		logger:    logger,
	}
}

// Answer resolves a question to a non-empty answer string. Blank
// questions get a fixed rejection; otherwise retrieval is tried first
// and the generative provider is the fallback. A provider transport
// failure is the only error surfaced.
func (r *Router) Answer(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		r.logger.Warn("Empty query received")
		return EmptyQueryReply, nil
	}

	result, err := r.search.Search(ctx, question, r.topK)
	if err != nil {
		return "", fmt.Errorf("similarity search failed: %w", err)
	}

	confidence := meanScore(result.Passages)
	useRAG := confidence >= r.threshold
	r.logger.Info("Routing decision",
		zap.Float64("confidence", confidence),
		zap.Float64("threshold", r.threshold),
		zap.Int("passages", len(result.Passages)),
		zap.Bool("use_rag", useRAG))

	if useRAG {
		answer := strings.TrimSpace(result.Answer)
		if answer != "" && answer != emptyAnswerSentinel {
			return answer, nil
		}
		r.logger.Warn("High confidence but empty retrieval answer, falling back")
	}

	return r.fallback(ctx, question)
}

// fallback sends the raw question to the generative provider and, when
// that succeeds, stores the Q&A pair back into the index so future
// queries can retrieve it. The store is best-effort.
func (r *Router) fallback(ctx context.Context, question string) (string, error) {
	answer, err := r.generator.Complete(ctx, []ChatMessage{
		{Role: models.RoleUser, Content: question},
	})
	if err != nil {
		return "", fmt.Errorf("generative fallback failed: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		r.logger.Error("Generative fallback produced an empty response")
		return ApologyReply, nil
	}

	doc := Document{
		Text: fmt.Sprintf("Q: %s\nA: %s", question, answer),
		Metadata: map[string]string{
			"source": fallbackSource,
			"query":  question,
		},
	}
	if err := r.search.Insert(ctx, doc); err != nil {
		r.logger.Warn("Failed to store fallback answer in index", zap.Error(err))
	}

	return answer, nil
}

// meanScore averages the scores of passages that carry one; passages
// without a score are excluded. No scored passage at all means zero
// confidence, which forces the fallback.
func meanScore(passages []Passage) float64 {
	var sum float64
	var count int
	for _, passage := range passages {
		if passage.Score != nil {
			sum += *passage.Score
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
