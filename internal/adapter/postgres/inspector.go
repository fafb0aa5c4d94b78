package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tellusko/tellusko/internal/core/port"
)

const sampleRowCount = 3

const queryTableColumns = `
SELECT column_name, data_type, character_maximum_length
FROM information_schema.columns
WHERE table_schema = $1
  AND table_name = $2
ORDER BY ordinal_position`

// Inspector describes the single allowed table. Column metadata is cached
// after the first lookup since the table shape does not change at runtime.
// Extra column descriptions from the data dictionary, when present, are
// folded into the prompt text.
type Inspector struct {
	pool         *pgxpool.Pool
	schema       string
	table        string
	descriptions map[string]string

	mu     sync.Mutex
	cached *port.TableSchema
}

func NewInspector(pool *pgxpool.Pool, schema, table string, descriptions map[string]string) *Inspector {
	return &Inspector{
		pool:         pool,
		schema:       schema,
		table:        table,
		descriptions: descriptions,
	}
}

func (i *Inspector) TableSchema(ctx context.Context) (*port.TableSchema, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cached != nil {
		return i.cached, nil
	}

	columns, err := i.fetchColumns(ctx)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s.%s has no columns or does not exist", i.schema, i.table)
	}

	ts := &port.TableSchema{
		Schema:  i.schema,
		Table:   i.table,
		Columns: columns,
	}

	// Sample rows are enrichment for the prompt, not essential.
	samples, err := i.fetchSampleRows(ctx, columns)
	if err == nil {
		ts.SampleRows = samples
	}

	i.cached = ts
	return ts, nil
}

func (i *Inspector) Description(ctx context.Context) (string, error) {
	ts, err := i.TableSchema(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s.%s\n\nColumns:\n", ts.Schema, ts.Table)
	for _, col := range ts.Columns {
		if desc, ok := i.descriptions[col.Name]; ok && desc != "" {
			fmt.Fprintf(&b, "  - %s (%s): %s\n", col.Name, col.DataType, desc)
		} else {
			fmt.Fprintf(&b, "  - %s (%s)\n", col.Name, col.DataType)
		}
	}

	if len(ts.SampleRows) > 0 {
		fmt.Fprintf(&b, "\nSample data (first %d rows):\n", len(ts.SampleRows))
		for n, row := range ts.SampleRows {
			fmt.Fprintf(&b, "  Row %d: %v\n", n+1, row)
		}
	}

	return b.String(), nil
}

func (i *Inspector) fetchColumns(ctx context.Context) ([]port.ColumnInfo, error) {
	rows, err := i.pool.Query(ctx, queryTableColumns, i.schema, i.table)
	if err != nil {
		return nil, fmt.Errorf("fetching columns: %w", err)
	}
	defer rows.Close()

	var columns []port.ColumnInfo
	for rows.Next() {
		var name, dataType string
		var maxLength *int
		if err := rows.Scan(&name, &dataType, &maxLength); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		if maxLength != nil {
			dataType = fmt.Sprintf("%s(%d)", dataType, *maxLength)
		}
		columns = append(columns, port.ColumnInfo{Name: name, DataType: dataType})
	}
	return columns, rows.Err()
}

func (i *Inspector) fetchSampleRows(ctx context.Context, columns []port.ColumnInfo) ([]map[string]any, error) {
	// Identifiers come from config, not user input, but quote them anyway.
	query := fmt.Sprintf("SELECT * FROM %s.%s LIMIT %d",
		quoteIdent(i.schema), quoteIdent(i.table), sampleRowCount)

	rows, err := i.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetching sample rows: %w", err)
	}
	defer rows.Close()

	var samples []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading sample row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for n := range vals {
			if n < len(columns) {
				row[columns[n].Name] = vals[n]
			}
		}
		samples = append(samples, row)
	}
	return samples, rows.Err()
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
