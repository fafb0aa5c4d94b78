package port

import (
	"context"
	"time"
)

// ChatMessage is one turn of a session's conversation.
type ChatMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// ChatStore persists per-session conversation history.
type ChatStore interface {
	SaveMessage(ctx context.Context, sessionID, role, content string) error
	// History returns the most recent messages in chronological order.
	History(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error)
	// FullHistory returns every message of the session in chronological order.
	FullHistory(ctx context.Context, sessionID string) ([]ChatMessage, error)
	ClearHistory(ctx context.Context, sessionID string) error
}

// MemoryStore persists the hybrid memory layers: a rolling per-session
// summary and long-term per-user memory.
type MemoryStore interface {
	SessionSummary(ctx context.Context, sessionID string, userID int64) (string, error)
	UpsertSessionSummary(ctx context.Context, sessionID string, userID int64, summary string) error
	UserMemory(ctx context.Context, userID int64) (string, error)
	UpsertUserMemory(ctx context.Context, userID int64, memory string) error
}

// QueryLogEntry records one natural-language request end to end, including
// rejected candidates (which are logged but never executed).
type QueryLogEntry struct {
	SessionID        string
	UserQuery        string
	GeneratedSQL     string
	ValidationStatus string // "valid", or the rejection reason
	ExecutionStatus  string // "success" or "failed"
	ErrorMessage     string
	RowCount         int
	ExecutionTimeMS  int64
}

// QueryLogStore persists query log entries.
type QueryLogStore interface {
	LogQuery(ctx context.Context, entry QueryLogEntry) error
}

// User is an authenticated account.
type User struct {
	ID            int64
	DisplayName   string
	Email         string
	PasswordHash  string
	LastSessionID string
	CreatedAt     time.Time
}

// UserStore persists user accounts and their last active session.
type UserStore interface {
	CreateUser(ctx context.Context, displayName, email, passwordHash string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)
	SetLastSessionID(ctx context.Context, userID int64, sessionID string) error
}
