package port

import "context"

// ColumnInfo describes one column of the allowed table.
type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// TableSchema is the allowed table's structure plus a few sample rows,
// rendered into the LLM prompt so the generator knows what it may query.
type TableSchema struct {
	Schema     string           `json:"schema"`
	Table      string           `json:"table"`
	Columns    []ColumnInfo     `json:"columns"`
	SampleRows []map[string]any `json:"sample_rows,omitempty"`
}

// SchemaInspector describes the single allowed table.
type SchemaInspector interface {
	TableSchema(ctx context.Context) (*TableSchema, error)
	// Description renders the schema as prompt-ready text.
	Description(ctx context.Context) (string, error)
}
