package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tellusko/tellusko/internal/core/domain"
	"github.com/tellusko/tellusko/internal/core/port"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, "public"), mock
}

func TestSaveMessage(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO public.chat_history").
		WithArgs("s1", "user", "hello").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.SaveMessage(context.Background(), "s1", "user", "hello")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory_ReversesToChronological(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()

	// The query fetches newest first; History must hand back oldest first.
	mock.ExpectQuery("SELECT role, content, created_at").
		WithArgs("s1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"role", "content", "created_at"}).
			AddRow("assistant", "second", now).
			AddRow("user", "first", now.Add(-time.Minute)))

	messages, err := store.History(context.Background(), "s1", 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearHistory(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM public.chat_history").
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, store.ClearHistory(context.Background(), "s1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionSummary_NoRowIsEmpty(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT summary FROM public.session_summaries").
		WithArgs("s1", int64(7)).
		WillReturnError(sql.ErrNoRows)

	summary, err := store.SessionSummary(context.Background(), "s1", 7)
	require.NoError(t, err)
	assert.Empty(t, summary)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSessionSummary(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO public.session_summaries").
		WithArgs("s1", int64(7), "talked about Acme").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.UpsertSessionSummary(context.Background(), "s1", 7, "talked about Acme")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUserMemory(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO public.user_memory").
		WithArgs(int64(7), "prefers weight in carats").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.UpsertUserMemory(context.Background(), 7, "prefers weight in carats")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogQuery(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO public.query_logs").
		WithArgs("s1", "how many items?", "SELECT count(*) FROM dev_diamond2 LIMIT 200;",
			"valid", "success", "", 1, int64(12)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.LogQuery(context.Background(), port.QueryLogEntry{
		SessionID:        "s1",
		UserQuery:        "how many items?",
		GeneratedSQL:     "SELECT count(*) FROM dev_diamond2 LIMIT 200;",
		ValidationStatus: "valid",
		ExecutionStatus:  "success",
		RowCount:         1,
		ExecutionTimeMS:  12,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO public.users").
		WithArgs("Ada", "ada@example.com", "hash").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "display_name", "email", "password", "last_session_id", "created_at"}).
			AddRow(int64(1), "Ada", "ada@example.com", "hash", "", now))

	user, err := store.CreateUser(context.Background(), "Ada", "ada@example.com", "hash")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserByEmail_NotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT id, display_name, email, password").
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.UserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetLastSessionID_NotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("UPDATE public.users SET last_session_id").
		WithArgs("s1", int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SetLastSessionID(context.Background(), 99, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
