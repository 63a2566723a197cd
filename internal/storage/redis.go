package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xaenox/rag-backend/internal/models"
	"go.uber.org/zap"
)

const userKeyPrefix = "chat:user:"

type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStorage(addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func userKey(userID string) string {
	return userKeyPrefix + userID
}

func (s *RedisStorage) Read(ctx context.Context, userID string) (*models.UserChatData, error) {
	raw, err := s.client.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return emptyState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chat state: %w", err)
	}

	var data models.UserChatData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
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

func (s *RedisStorage) Write(ctx context.Context, userID string, data *models.UserChatData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode chat state: %w", err)
	}

	if err := s.client.Set(ctx, userKey(userID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write chat state: %w", err)
	}
	return nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
