package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/xaenox/rag-backend/internal/models"
	"go.uber.org/zap"
)

type memoryRecord struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryStorage keeps chat state in process memory. It goes through
// the same JSON round-trip as the Redis backend so TTL and corrupt
// payload behavior stay identical, which makes it the backend of
// choice for tests and local development.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	ttl     time.Duration
	logger  *zap.Logger
}

func NewMemoryStorage(ttl time.Duration, logger *zap.Logger) *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]memoryRecord),
		ttl:     ttl,
		logger:  logger,
	}
}

func (s *MemoryStorage) Read(ctx context.Context, userID string) (*models.UserChatData, error) {
	s.mu.RLock()
	record, exists := s.records[userID]
	s.mu.RUnlock()

	if !exists || time.Now().After(record.expiresAt) {
		return emptyState(), nil
	}

	var data models.UserChatData
	if err := json.Unmarshal(record.payload, &data); err != nil {
		s.logger.Error("Corrupt chat state, substituting empty state",
			zap.Error(err),
			zap.String("user_id", userID))
		return emptyState(), nil
	}
	if data.Threads == nil {
		data.Threads = []models.Thread{}
	}

	return &data, nil
}

func (s *MemoryStorage) Write(ctx context.Context, userID string, data *models.UserChatData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode chat state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[userID] = memoryRecord{
		payload:   payload,
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
