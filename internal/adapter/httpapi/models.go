package httpapi

import "github.com/tellusko/tellusko/internal/core/port"

// queryRequest is the body of POST /api/v1/query. SessionID "new" starts a
// fresh session; an empty SessionID falls back to the caller's resumed or
// guest session. Token mirrors the Authorization header for clients that
// cannot set custom headers.
type queryRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit"`
	Token     string `json:"token"`
}

type queryResponse struct {
	Success         bool     `json:"success"`
	SessionID       string   `json:"session_id"`
	SQL             string   `json:"sql"`
	Columns         []string `json:"columns"`
	Rows            [][]any  `json:"rows"`
	Summary         string   `json:"summary"`
	RowCount        int      `json:"row_count"`
	ExecutionTimeMS int64    `json:"execution_time_ms"`
	Error           string   `json:"error,omitempty"`
	Reason          string   `json:"reason,omitempty"`
}

type schemaResponse struct {
	TableName  string            `json:"table_name"`
	Schema     string            `json:"db_schema"`
	Columns    []port.ColumnInfo `json:"columns"`
	SampleRows []map[string]any  `json:"sample_rows"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Table    string `json:"table"`
}

type historyResponse struct {
	SessionID string             `json:"session_id"`
	History   []port.ChatMessage `json:"history"`
}

type signupRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
