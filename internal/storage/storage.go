package storage

import (
	"context"

	"github.com/xaenox/rag-backend/internal/models"
)

// Storage persists one whole UserChatData record per user under a
// renewed expiry window: every Write resets the TTL, so active users
// never expire while idle ones do. There is no partial update; every
// mutation is read-modify-write of the full record, which means two
// concurrent requests for the same user can race and the later write
// wins. That lost-update hazard is an accepted trade-off of the
// whole-record scheme.
type Storage interface {
	// Read returns the user's chat state, or an empty default state if
	// the record is absent or cannot be parsed. Corrupt payloads are
	// logged and swallowed, never surfaced to the caller.
	Read(ctx context.Context, userID string) (*models.UserChatData, error)

	// Write persists the full state and renews the expiry window.
	Write(ctx context.Context, userID string, data *models.UserChatData) error

	Close() error
}

func emptyState() *models.UserChatData {
	return &models.UserChatData{Threads: []models.Thread{}}
}
