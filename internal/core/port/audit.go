package port

import "context"

// AuditEntry represents a single auditable query event. Rejected candidates
// are recorded with their reason and the unexecuted SQL so operators can
// audit generator behaviour without ever running the statement.
type AuditEntry struct {
	SessionID    string
	Question     string
	SQL          string
	Reason       string // empty for accepted statements
	RowsReturned int
	DurationMS   int64
	Err          error
}

// QueryAuditor records query audit events.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}
