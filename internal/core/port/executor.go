package port

import "context"

// QueryResult holds executed query output as positional rows aligned with
// the columns slice.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// QueryExecutor runs an executable statement against the database. It is the
// single choke point between validated SQL and a live connection; callers
// must never hand it anything that has not passed the validator.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) (*QueryResult, error)
}
