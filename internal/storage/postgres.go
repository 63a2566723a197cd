package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/xaenox/rag-backend/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresStorage is a durable alternative to the Redis backend. The
// whole per-user record is stored as a single JSON value with an
// explicit expires_at column; expiry is enforced lazily on read.
type PostgresStorage struct {
	db     *sql.DB
	ttl    time.Duration
	logger *zap.Logger
}

func NewPostgresStorage(config PostgresConfig, ttl time.Duration, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, ttl: ttl, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) Read(ctx context.Context, userID string) (*models.UserChatData, error) {
	query := `
		SELECT data
		FROM chat_state
		WHERE user_id = $1 AND expires_at > now()`

	var payload []byte
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return emptyState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading chat state: %w", err)
	}

	var data models.UserChatData
	if err := json.Unmarshal(payload, &data); err != nil {
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

func (s *PostgresStorage) Write(ctx context.Context, userID string, data *models.UserChatData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode chat state: %w", err)
	}

	query := `
		INSERT INTO chat_state (user_id, data, expires_at)
		VALUES ($1, $2, now() + $3 * interval '1 second')
		ON CONFLICT (user_id)
		DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`

	if _, err := s.db.ExecContext(ctx, query, userID, payload, int64(s.ttl.Seconds())); err != nil {
		return fmt.Errorf("error writing chat state: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
