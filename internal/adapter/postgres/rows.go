package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tellusko/tellusko/internal/core/port"
)

// collectRows drains pgx.Rows into a column list plus positional row values.
func collectRows(rows pgx.Rows) (*port.QueryResult, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	result := &port.QueryResult{Columns: columns}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make([]any, len(vals))
		copy(row, vals)
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}
