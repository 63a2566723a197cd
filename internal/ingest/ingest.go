package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xaenox/rag-backend/internal/rag"
	"go.uber.org/zap"
)

// maxChunkSize bounds the size of one indexed passage so embeddings
// stay within model limits.
const maxChunkSize = 2000

// Service reads plain-text documents from a directory and indexes
// them in the similarity-search provider.
type Service struct {
	provider rag.SearchProvider
	logger   *zap.Logger
}

func NewService(provider rag.SearchProvider, logger *zap.Logger) *Service {
	return &Service{provider: provider, logger: logger}
}

// IngestDirectory indexes every .txt and .md file under folderPath and
// returns the number of chunks stored.
func (s *Service) IngestDirectory(ctx context.Context, folderPath string) (int, error) {
	info, err := os.Stat(folderPath)
	if err != nil {
		return 0, fmt.Errorf("document folder not found: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("path is not a directory: %s", folderPath)
	}

	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read document folder: %w", err)
	}

	chunks := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".txt" && ext != ".md" {
			continue
		}

		path := filepath.Join(folderPath, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("Skipping unreadable document",
				zap.Error(err),
				zap.String("path", path))
			continue
		}

		for _, chunk := range splitChunks(string(content)) {
			doc := rag.Document{
				Text: chunk,
				Metadata: map[string]string{
					"source": entry.Name(),
				},
			}
			if err := s.provider.Insert(ctx, doc); err != nil {
				return chunks, fmt.Errorf("failed to index %s: %w", entry.Name(), err)
			}
			chunks++
		}

		s.logger.Info("Ingested document", zap.String("path", path))
	}

	if chunks == 0 {
		s.logger.Warn("No documents found", zap.String("path", folderPath))
	}
	return chunks, nil
}

// splitChunks groups paragraphs into chunks of at most maxChunkSize
// characters, splitting oversized paragraphs on the hard limit.
func splitChunks(text string) []string {
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var current strings.Builder
	flush := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		current.Reset()
	}

	for _, paragraph := range paragraphs {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		for len(paragraph) > maxChunkSize {
			flush()
			chunks = append(chunks, paragraph[:maxChunkSize])
			paragraph = paragraph[maxChunkSize:]
		}

		if current.Len()+len(paragraph)+2 > maxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}
	flush()

	return chunks
}
