package main

import (
	"github.com/xaenox/rag-backend/internal/bot"
	"github.com/xaenox/rag-backend/internal/chat"
	"github.com/xaenox/rag-backend/internal/query"
	"github.com/xaenox/rag-backend/internal/rag"
	"github.com/xaenox/rag-backend/internal/storage"
	"github.com/xaenox/rag-backend/internal/vector"
	"github.com/xaenox/rag-backend/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize chat-state storage
	store, err := newStorage(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	// Initialize the retrieval pipeline
	generator := rag.NewOpenAIGenerator(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		logger,
	)
	embedder := vector.NewEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel)
	provider, err := vector.NewMilvusProvider(vector.MilvusOptions{
		Address:    cfg.Milvus.Address,
		Username:   cfg.Milvus.Username,
		Password:   cfg.Milvus.Password,
		Collection: cfg.Milvus.Collection,
		VectorSize: cfg.Milvus.VectorSize,
	}, embedder, generator, logger)
	if err != nil {
		logger.Fatal("Failed to connect to vector store", zap.Error(err))
	}
	defer provider.Close()

	router := rag.NewRouter(provider, generator, cfg.RAG.ConfidenceThreshold, cfg.RAG.TopK, logger)

	chatService := chat.NewService(store, cfg.Quota.MaxRequests, logger)
	queryService := query.NewService(chatService, router, cfg.RAG.MaxQuestionLength, cfg.RAG.ProviderTimeout, logger)

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, queryService, chatService, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Start the bot
	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}

func newStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "memory":
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(cfg.Storage.TTL, logger), nil
	case "postgres":
		logger.Info("Using PostgreSQL storage")
		return storage.NewPostgresStorage(storage.PostgresConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			DBName:   cfg.Postgres.DBName,
			SSLMode:  cfg.Postgres.SSLMode,
		}, cfg.Storage.TTL, logger)
	default:
		logger.Info("Using Redis storage", zap.String("addr", cfg.Redis.Addr))
		return storage.NewRedisStorage(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Storage.TTL, logger)
	}
}
