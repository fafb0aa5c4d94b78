package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tellusko/tellusko/internal/adapter/postgres"
	"github.com/tellusko/tellusko/internal/audit"
	"github.com/tellusko/tellusko/internal/core/domain"
	"github.com/tellusko/tellusko/internal/core/service"
)

const e2eSchema = `
	CREATE TABLE dev_diamond2 (
		id            SERIAL PRIMARY KEY,
		item_no       VARCHAR(50) NOT NULL,
		company       TEXT NOT NULL,
		customer_name TEXT,
		weight        NUMERIC(8,2),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	INSERT INTO dev_diamond2 (item_no, company, customer_name, weight, created_at)
	SELECT
		'D-' || (1000 + i),
		CASE (i % 3) WHEN 0 THEN 'Acme' WHEN 1 THEN 'Globex' ELSE 'Initech' END,
		'Customer ' || i,
		(random() * 5)::numeric(8,2),
		now() - (i || ' days')::interval
	FROM generate_series(1, 50) AS i;
`

// setupE2E starts a Postgres testcontainer, applies the schema, and returns
// a fully wired MCP server backed by real database adapters and a scripted
// generator.
func setupE2E(t *testing.T, generator *mockGenerator) *server.MCPServer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	_, err = pool.Exec(ctx, e2eSchema)
	require.NoError(t, err)

	// Real adapters.
	executor := postgres.NewExecutor(pool, 10*time.Second)
	inspector := postgres.NewInspector(pool, "public", "dev_diamond2", nil)

	// Real service with a scripted generator.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pol := testPolicy()
	querySvc := service.NewQueryService(service.Deps{
		Policy:    pol,
		Validator: domain.NewSQLValidator(pol),
		Executor:  executor,
		Generator: generator,
		Inspector: inspector,
		Chats:     nullChats{},
		Memory:    nullMemory{},
		QueryLogs: nullQueryLogs{},
		Auditor:   audit.NoopAuditor{},
		Logger:    logger,
	})

	s := server.NewMCPServer("test-e2e", "0.0.1", server.WithToolCapabilities(true))
	RegisterTools(s, querySvc, inspector)
	return s
}

func TestE2E_MCPTools(t *testing.T) {
	generator := &mockGenerator{responses: []string{
		"```sql\nSELECT company, COUNT(*) AS items FROM dev_diamond2 GROUP BY company LIMIT 200;\n```",
		"Three companies hold the inventory.",
	}}
	s := setupE2E(t, generator)

	t.Run("describe_table", func(t *testing.T) {
		result := callToolE2E(t, s, "describe_table", nil)
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var schema struct {
			Schema  string `json:"schema"`
			Table   string `json:"table"`
			Columns []struct {
				Name     string `json:"name"`
				DataType string `json:"data_type"`
			} `json:"columns"`
			SampleRows []map[string]any `json:"sample_rows"`
		}
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &schema))

		assert.Equal(t, "public", schema.Schema)
		assert.Equal(t, "dev_diamond2", schema.Table)
		require.Len(t, schema.Columns, 6)

		colTypes := make(map[string]string)
		for _, c := range schema.Columns {
			colTypes[c.Name] = c.DataType
		}
		assert.Equal(t, "character varying(50)", colTypes["item_no"])
		assert.Contains(t, colTypes, "weight")
		assert.NotEmpty(t, schema.SampleRows)
	})

	t.Run("query", func(t *testing.T) {
		result := callToolE2E(t, s, "query", map[string]any{
			"sql": "SELECT item_no, company FROM dev_diamond2 ORDER BY item_no LIMIT 3",
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var res struct {
			Columns []string `json:"columns"`
			Rows    [][]any  `json:"rows"`
		}
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &res))
		assert.Equal(t, []string{"item_no", "company"}, res.Columns)
		require.Len(t, res.Rows, 3)
		assert.Equal(t, "D-1001", res.Rows[0][0])
	})

	t.Run("query/enforces_limit", func(t *testing.T) {
		result := callToolE2E(t, s, "query", map[string]any{
			"sql": "SELECT item_no FROM dev_diamond2",
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var res struct {
			Rows [][]any `json:"rows"`
		}
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &res))
		assert.Len(t, res.Rows, 50, "all seeded rows fit under the default limit")
	})

	t.Run("query/rejects_insert", func(t *testing.T) {
		result := callToolE2E(t, s, "query", map[string]any{
			"sql": "INSERT INTO dev_diamond2 (item_no, company) VALUES ('X', 'Evil')",
		})
		assert.True(t, result.IsError)
		assert.Contains(t, toolText(result), "forbidden keyword")
	})

	t.Run("query/rejects_other_tables", func(t *testing.T) {
		result := callToolE2E(t, s, "query", map[string]any{
			"sql": "SELECT usename FROM pg_user",
		})
		assert.True(t, result.IsError)
		assert.Contains(t, toolText(result), "allowed table")
	})

	t.Run("ask", func(t *testing.T) {
		result := callToolE2E(t, s, "ask", map[string]any{
			"question": "how many items does each company have?",
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &payload))
		assert.Equal(t, true, payload["success"])
		assert.Equal(t, float64(3), payload["row_count"])
		assert.Equal(t, "Three companies hold the inventory.", payload["summary"])
	})
}

var e2eSessionCounter atomic.Int64

// callToolE2E is like callTool but uses a unique session ID per call,
// allowing multiple calls against the same MCP server without "session already exists" errors.
func callToolE2E(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	sessionID := fmt.Sprintf("e2e-%d", e2eSessionCounter.Add(1))
	session := server.NewInProcessSession(sessionID, nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test-e2e", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	// Call tool.
	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result *mcp.CallToolResult       `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	require.Nil(t, rpc.Error, "unexpected RPC error: %v", rpc.Error)
	require.NotNil(t, rpc.Result)
	return rpc.Result
}
