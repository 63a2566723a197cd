package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Milvus   MilvusConfig   `mapstructure:"milvus"`
	RAG      RAGConfig      `mapstructure:"rag"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// StorageConfig selects the chat-state backend. Backend is one of
// "redis", "postgres" or "memory"; TTL applies to the whole per-user
// record regardless of backend.
type StorageConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type OpenAIConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
}

type MilvusConfig struct {
	Address    string `mapstructure:"address"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Collection string `mapstructure:"collection"`
	VectorSize int    `mapstructure:"vector_size"`
}

type RAGConfig struct {
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	TopK                int           `mapstructure:"top_k"`
	MaxQuestionLength   int           `mapstructure:"max_question_length"`
	ProviderTimeout     time.Duration `mapstructure:"provider_timeout"`
}

type QuotaConfig struct {
	MaxRequests int `mapstructure:"max_requests"`
}

type AuthConfig struct {
	GoogleClientID string        `mapstructure:"google_client_id"`
	CertsURL       string        `mapstructure:"certs_url"`
	KeyCacheTTL    time.Duration `mapstructure:"key_cache_ttl"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.port", 8000)
	v.SetDefault("storage.backend", "redis")
	v.SetDefault("storage.ttl", 30*24*time.Hour)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.max_tokens", 1024)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("milvus.address", "localhost:19530")
	v.SetDefault("milvus.collection", "rag_documents")
	v.SetDefault("milvus.vector_size", 1536)
	v.SetDefault("rag.confidence_threshold", 0.3)
	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.max_question_length", 1000)
	v.SetDefault("rag.provider_timeout", 30*time.Second)
	v.SetDefault("quota.max_requests", 30)
	v.SetDefault("auth.certs_url", "https://www.googleapis.com/oauth2/v3/certs")
	v.SetDefault("auth.key_cache_ttl", time.Hour)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Secrets come from the environment when set
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if clientID := v.GetString("GOOGLE_CLIENT_ID"); clientID != "" {
		config.Auth.GoogleClientID = clientID
	}
	if pass := v.GetString("REDIS_PASSWORD"); pass != "" {
		config.Redis.Password = pass
	}
	if pass := v.GetString("POSTGRES_PASSWORD"); pass != "" {
		config.Postgres.Password = pass
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "redis", "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.Quota.MaxRequests <= 0 {
		return fmt.Errorf("quota.max_requests must be positive, got %d", c.Quota.MaxRequests)
	}
	return nil
}
