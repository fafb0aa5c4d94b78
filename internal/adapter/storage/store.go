package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/tellusko/tellusko/internal/core/domain"
	"github.com/tellusko/tellusko/internal/core/port"
)

// Store persists application state: conversation history, hybrid memory,
// query logs, and user accounts. It deliberately uses a separate database/sql
// connection from the query executor's pgx pool, so a slow analytical query
// never starves bookkeeping writes.
type Store struct {
	db     *sql.DB
	schema string
}

func NewStore(db *sql.DB, schema string) *Store {
	if schema == "" {
		schema = "public"
	}
	return &Store{db: db, schema: schema}
}

// Open connects via lib/pq and verifies the connection.
func Open(dsn, schema string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewStore(db, schema), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- ChatStore ---

func (s *Store) SaveMessage(ctx context.Context, sessionID, role, content string) error {
	query := fmt.Sprintf(
		`INSERT INTO %s.chat_history (session_id, role, content) VALUES ($1, $2, $3)`,
		s.schema)
	if _, err := s.db.ExecContext(ctx, query, sessionID, role, content); err != nil {
		return fmt.Errorf("saving chat message: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]port.ChatMessage, error) {
	// Newest N, then reversed so callers always see chronological order.
	query := fmt.Sprintf(`
		SELECT role, content, created_at
		FROM %s.chat_history
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, s.schema)

	messages, err := s.queryMessages(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *Store) FullHistory(ctx context.Context, sessionID string) ([]port.ChatMessage, error) {
	query := fmt.Sprintf(`
		SELECT role, content, created_at
		FROM %s.chat_history
		WHERE session_id = $1
		ORDER BY created_at ASC`, s.schema)

	return s.queryMessages(ctx, query, sessionID)
}

func (s *Store) ClearHistory(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`DELETE FROM %s.chat_history WHERE session_id = $1`, s.schema)
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("clearing chat history: %w", err)
	}
	return nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]port.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chat history: %w", err)
	}
	defer rows.Close()

	var messages []port.ChatMessage
	for rows.Next() {
		var m port.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat messages: %w", err)
	}
	return messages, nil
}

// --- MemoryStore ---

func (s *Store) SessionSummary(ctx context.Context, sessionID string, userID int64) (string, error) {
	query := fmt.Sprintf(`
		SELECT summary FROM %s.session_summaries
		WHERE session_id = $1 AND user_id = $2`, s.schema)

	var summary sql.NullString
	err := s.db.QueryRowContext(ctx, query, sessionID, userID).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying session summary: %w", err)
	}
	return summary.String, nil
}

func (s *Store) UpsertSessionSummary(ctx context.Context, sessionID string, userID int64, summary string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.session_summaries (session_id, user_id, summary, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_id, user_id)
		DO UPDATE SET summary = EXCLUDED.summary, updated_at = now()`, s.schema)

	if _, err := s.db.ExecContext(ctx, query, sessionID, userID, summary); err != nil {
		return fmt.Errorf("upserting session summary: %w", err)
	}
	return nil
}

func (s *Store) UserMemory(ctx context.Context, userID int64) (string, error) {
	query := fmt.Sprintf(`
		SELECT memory_summary FROM %s.user_memory WHERE user_id = $1`, s.schema)

	var memory sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&memory)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying user memory: %w", err)
	}
	return memory.String, nil
}

func (s *Store) UpsertUserMemory(ctx context.Context, userID int64, memory string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.user_memory (user_id, memory_summary, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id)
		DO UPDATE SET memory_summary = EXCLUDED.memory_summary, updated_at = now()`, s.schema)

	if _, err := s.db.ExecContext(ctx, query, userID, memory); err != nil {
		return fmt.Errorf("upserting user memory: %w", err)
	}
	return nil
}

// --- QueryLogStore ---

func (s *Store) LogQuery(ctx context.Context, entry port.QueryLogEntry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.query_logs
			(session_id, user_query, generated_sql, validation_status,
			 execution_status, error_message, row_count, execution_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.schema)

	_, err := s.db.ExecContext(ctx, query,
		entry.SessionID, entry.UserQuery, entry.GeneratedSQL, entry.ValidationStatus,
		entry.ExecutionStatus, entry.ErrorMessage, entry.RowCount, entry.ExecutionTimeMS)
	if err != nil {
		return fmt.Errorf("inserting query log: %w", err)
	}
	return nil
}

// --- UserStore ---

const uniqueViolation = "23505"

func (s *Store) CreateUser(ctx context.Context, displayName, email, passwordHash string) (*port.User, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s.users (display_name, email, password)
		VALUES ($1, $2, $3)
		RETURNING id, display_name, email, password, COALESCE(last_session_id, ''), created_at`, s.schema)

	var u port.User
	err := s.db.QueryRowContext(ctx, query, displayName, email, passwordHash).Scan(
		&u.ID, &u.DisplayName, &u.Email, &u.PasswordHash, &u.LastSessionID, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: email %s already registered", domain.ErrDuplicate, email)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return &u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*port.User, error) {
	query := fmt.Sprintf(`
		SELECT id, display_name, email, password, COALESCE(last_session_id, ''), created_at
		FROM %s.users WHERE email = $1`, s.schema)
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *Store) UserByID(ctx context.Context, id int64) (*port.User, error) {
	query := fmt.Sprintf(`
		SELECT id, display_name, email, password, COALESCE(last_session_id, ''), created_at
		FROM %s.users WHERE id = $1`, s.schema)
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) SetLastSessionID(ctx context.Context, userID int64, sessionID string) error {
	query := fmt.Sprintf(`UPDATE %s.users SET last_session_id = $1 WHERE id = $2`, s.schema)
	result, err := s.db.ExecContext(ctx, query, sessionID, userID)
	if err != nil {
		return fmt.Errorf("updating last session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) scanUser(row *sql.Row) (*port.User, error) {
	var u port.User
	err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.PasswordHash, &u.LastSessionID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}
