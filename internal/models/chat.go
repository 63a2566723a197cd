package models

import "time"

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is a single entry in a thread. Messages are append-only and
// never mutated after creation.
type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// Thread is a conversation owned by exactly one user. Title is set from
// the first question at creation and never changes; UpdatedAt is bumped
// on every message append.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// ThreadSummary is a thread without its messages, used in listings.
type ThreadSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// UserChatData is the whole per-user record persisted as one value.
// RequestsAvailable is a pointer so records written before quota
// tracking existed can be told apart from an exhausted quota: a nil
// value means "full quota" and is migrated lazily on read.
type UserChatData struct {
	Threads           []Thread `json:"threads"`
	RequestsAvailable *int     `json:"requests_available,omitempty"`
}

// UsageLimits reports a user's request quota state.
type UsageLimits struct {
	RequestsAvailable int `json:"requests_available"`
	MaxRequests       int `json:"max_requests"`
	RequestsUsed      int `json:"requests_used"`
}
