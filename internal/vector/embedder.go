package vector

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
)

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// Embedder turns text into a query/storage vector via the OpenAI
// embeddings API.
type Embedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

func NewEmbedder(apiKey, model string) *Embedder {
	if model == "" {
		model = "text-embedding-3-small"
	}
	dims, ok := embeddingDimensions[model]
	if !ok {
		dims = 1536
	}
	return &Embedder{
		client:     openai.NewClient(apiKey),
		model:      model,
		dimensions: dims,
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is empty")
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response empty")
	}

	embedding := make([]float32, len(resp.Data[0].Embedding))
	copy(embedding, resp.Data[0].Embedding)
	return embedding, nil
}

func (e *Embedder) Dimensions() int {
	return e.dimensions
}
