package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/xaenox/rag-backend/internal/models"
	"github.com/xaenox/rag-backend/internal/rag"
	"go.uber.org/zap"
)

// MilvusOptions configures the Milvus-backed search provider.
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	VectorSize int
}

// MilvusProvider implements rag.SearchProvider over a Milvus
// collection. Queries are embedded, matched by cosine similarity, and
// the matched passages are handed to the generator to synthesize the
// provider's answer, the same way the index-side query engine works.
type MilvusProvider struct {
	milvusClient client.Client
	embedder     *Embedder
	synthesizer  rag.Generator
	collection   string
	vectorSize   int
	logger       *zap.Logger
}

func NewMilvusProvider(opts MilvusOptions, embedder *Embedder, synthesizer rag.Generator, logger *zap.Logger) (*MilvusProvider, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "rag_documents"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = embedder.Dimensions()
	}

	milvusClient, err := client.NewClient(context.Background(), client.Config{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	provider := &MilvusProvider{
		milvusClient: milvusClient,
		embedder:     embedder,
		synthesizer:  synthesizer,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
		logger:       logger,
	}

	if err := provider.ensureCollection(context.Background()); err != nil {
		return nil, err
	}
	return provider, nil
}

func (p *MilvusProvider) ensureCollection(ctx context.Context) error {
	hasCollection, err := p.milvusClient.HasCollection(ctx, p.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !hasCollection {
		schema := &entity.Schema{
			CollectionName: p.collection,
			Description:    "RAG document chunks",
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeInt64,
					PrimaryKey: true,
					AutoID:     true,
				},
				{
					Name:     "content",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "65535",
					},
				},
				{
					Name:     "source",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "1024",
					},
				},
				{
					Name:     "vector",
					DataType: entity.FieldTypeFloatVector,
					TypeParams: map[string]string{
						"dim": fmt.Sprintf("%d", p.vectorSize),
					},
				},
			},
		}
		if err := p.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		index, err := entity.NewIndexHNSW(entity.COSINE, 8, 64)
		if err != nil {
			return fmt.Errorf("failed to build index definition: %w", err)
		}
		if err := p.milvusClient.CreateIndex(ctx, p.collection, "vector", index, false); err != nil {
			p.logger.Warn("Failed to create vector index",
				zap.Error(err),
				zap.String("collection", p.collection))
		}
	}

	if err := p.milvusClient.LoadCollection(ctx, p.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (p *MilvusProvider) Search(ctx context.Context, query string, topK int) (*rag.SearchResult, error) {
	embedding, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	searchResults, err := p.milvusClient.Search(
		ctx,
		p.collection,
		[]string{},
		"",
		[]string{"content", "source"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"vector",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	passages := collectPassages(searchResults)
	if len(passages) == 0 {
		p.logger.Warn("No passages matched query")
		return &rag.SearchResult{Passages: passages}, nil
	}

	// Synthesis failure is not fatal: the router falls back to the
	// generative path when the answer comes back empty.
	answer, err := p.synthesize(ctx, query, passages)
	if err != nil {
		p.logger.Warn("Failed to synthesize answer from passages", zap.Error(err))
		answer = ""
	}

	return &rag.SearchResult{Answer: answer, Passages: passages}, nil
}

func collectPassages(searchResults []client.SearchResult) []rag.Passage {
	passages := make([]rag.Passage, 0)
	for _, result := range searchResults {
		if result.Err != nil || result.ResultCount == 0 {
			continue
		}

		var contents, sources []string
		for _, field := range result.Fields {
			column, ok := field.(*entity.ColumnVarChar)
			if !ok {
				continue
			}
			switch field.Name() {
			case "content":
				contents = column.Data()
			case "source":
				sources = column.Data()
			}
		}

		for i := 0; i < result.ResultCount && i < len(contents); i++ {
			score := float64(result.Scores[i])
			metadata := map[string]string{}
			if i < len(sources) {
				metadata["source"] = sources[i]
			}
			passages = append(passages, rag.Passage{
				Text:     contents[i],
				Score:    &score,
				Metadata: metadata,
			})
		}
	}
	return passages
}

const synthesisPrompt = `Context information is below.
---------------------
%s
---------------------
Given the context information and not prior knowledge, answer the query.
If the context does not contain the answer, reply with exactly: Empty Response
Query: %s
Answer:`

func (p *MilvusProvider) synthesize(ctx context.Context, query string, passages []rag.Passage) (string, error) {
	var contextText strings.Builder
	for _, passage := range passages {
		contextText.WriteString(passage.Text)
		contextText.WriteString("\n\n")
	}

	return p.synthesizer.Complete(ctx, []rag.ChatMessage{
		{
			Role:    models.RoleUser,
			Content: fmt.Sprintf(synthesisPrompt, strings.TrimSpace(contextText.String()), query),
		},
	})
}

func (p *MilvusProvider) Insert(ctx context.Context, doc rag.Document) error {
	embedding, err := p.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return fmt.Errorf("failed to embed document: %w", err)
	}
	if len(embedding) != p.vectorSize {
		padded := make([]float32, p.vectorSize)
		copy(padded, embedding)
		embedding = padded
	}

	contentColumn := entity.NewColumnVarChar("content", []string{doc.Text})
	sourceColumn := entity.NewColumnVarChar("source", []string{doc.Metadata["source"]})
	vectorColumn := entity.NewColumnFloatVector("vector", p.vectorSize, [][]float32{embedding})

	if _, err := p.milvusClient.Insert(ctx, p.collection, "", contentColumn, sourceColumn, vectorColumn); err != nil {
		return fmt.Errorf("milvus insert failed: %w", err)
	}

	if err := p.milvusClient.Flush(ctx, p.collection, false); err != nil {
		p.logger.Warn("Failed to flush collection",
			zap.Error(err),
			zap.String("collection", p.collection))
	}
	return nil
}

// Ready reports whether the Milvus connection is usable.
func (p *MilvusProvider) Ready(ctx context.Context) bool {
	_, err := p.milvusClient.ListCollections(ctx)
	return err == nil
}

func (p *MilvusProvider) Close() error {
	return p.milvusClient.Close()
}
