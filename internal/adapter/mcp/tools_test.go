package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tellusko/tellusko/internal/audit"
	"github.com/tellusko/tellusko/internal/core/domain"
	"github.com/tellusko/tellusko/internal/core/port"
	"github.com/tellusko/tellusko/internal/core/service"
)

// --- mocks ---

type mockExecutor struct {
	result  *port.QueryResult
	err     error
	lastSQL string
}

func (m *mockExecutor) Execute(_ context.Context, sql string) (*port.QueryResult, error) {
	m.lastSQL = sql
	return m.result, m.err
}

type mockGenerator struct {
	responses []string
	calls     int
}

func (m *mockGenerator) Complete(_ context.Context, _, _ string) (string, error) {
	if m.calls >= len(m.responses) {
		return "", fmt.Errorf("unexpected generator call %d", m.calls)
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

type mockInspector struct {
	schema *port.TableSchema
	err    error
}

func (m *mockInspector) TableSchema(context.Context) (*port.TableSchema, error) {
	return m.schema, m.err
}

func (m *mockInspector) Description(context.Context) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "Table: public.dev_diamond2", nil
}

type nullChats struct{}

func (nullChats) SaveMessage(context.Context, string, string, string) error { return nil }
func (nullChats) History(context.Context, string, int) ([]port.ChatMessage, error) {
	return nil, nil
}
func (nullChats) FullHistory(context.Context, string) ([]port.ChatMessage, error) { return nil, nil }
func (nullChats) ClearHistory(context.Context, string) error                      { return nil }

type nullMemory struct{}

func (nullMemory) SessionSummary(context.Context, string, int64) (string, error)      { return "", nil }
func (nullMemory) UpsertSessionSummary(context.Context, string, int64, string) error  { return nil }
func (nullMemory) UserMemory(context.Context, int64) (string, error)                  { return "", nil }
func (nullMemory) UpsertUserMemory(context.Context, int64, string) error              { return nil }

type nullQueryLogs struct{}

func (nullQueryLogs) LogQuery(context.Context, port.QueryLogEntry) error { return nil }

// --- helpers ---

func callTool(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	session := server.NewInProcessSession("test", nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
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

func toolText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

func testPolicy() domain.Policy {
	return domain.Policy{
		Schema:         "public",
		Table:          "dev_diamond2",
		DefaultLimit:   200,
		MaxLimit:       1000,
		MaxQueryLength: 8192,
	}
}

func setupServer(executor *mockExecutor, generator *mockGenerator, inspector *mockInspector) *server.MCPServer {
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

	s := server.NewMCPServer("test", "0.1.0", server.WithToolCapabilities(true))
	RegisterTools(s, querySvc, inspector)
	return s
}

const sampleSchema = "Table: public.dev_diamond2"

// --- tests ---

func TestAsk_HappyPath(t *testing.T) {
	executor := &mockExecutor{result: &port.QueryResult{
		Columns: []string{"item_no", "company"},
		Rows:    [][]any{{"D-1001", "Acme"}},
	}}
	generator := &mockGenerator{responses: []string{
		"```sql\nSELECT item_no, company FROM dev_diamond2 LIMIT 200;\n```",
		"One item from Acme.",
		"User asked about items.",
	}}
	s := setupServer(executor, generator, &mockInspector{})

	result := callTool(t, s, "ask", map[string]any{"question": "what items do we have?"})
	require.False(t, result.IsError, toolText(result))

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &payload))
	assert.Equal(t, true, payload["success"])
	assert.NotEmpty(t, payload["session_id"])
	assert.Equal(t, "SELECT item_no, company FROM dev_diamond2 LIMIT 200;", payload["sql"])
	assert.Equal(t, float64(1), payload["row_count"])
}

func TestAsk_KeepsSessionID(t *testing.T) {
	executor := &mockExecutor{result: &port.QueryResult{Columns: []string{"company"}, Rows: [][]any{{"Acme"}}}}
	generator := &mockGenerator{responses: []string{
		"SELECT company FROM dev_diamond2 LIMIT 200;",
		"Just Acme.",
		"Companies discussed.",
	}}
	s := setupServer(executor, generator, &mockInspector{})

	result := callTool(t, s, "ask", map[string]any{
		"question":   "which companies?",
		"session_id": "mcp-abc",
	})
	require.False(t, result.IsError, toolText(result))

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &payload))
	assert.Equal(t, "mcp-abc", payload["session_id"])
}

func TestAsk_RejectedCandidate(t *testing.T) {
	executor := &mockExecutor{}
	generator := &mockGenerator{responses: []string{"DROP TABLE dev_diamond2"}}
	s := setupServer(executor, generator, &mockInspector{})

	result := callTool(t, s, "ask", map[string]any{"question": "drop everything"})
	require.False(t, result.IsError, toolText(result))

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &payload))
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, "forbidden_keyword", payload["reason"])
	assert.Empty(t, executor.lastSQL)
}

func TestAsk_MissingQuestion(t *testing.T) {
	s := setupServer(&mockExecutor{}, &mockGenerator{}, &mockInspector{})

	result := callTool(t, s, "ask", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "question is required")
}

func TestQuery_HappyPath(t *testing.T) {
	executor := &mockExecutor{result: &port.QueryResult{
		Columns: []string{"item_no"},
		Rows:    [][]any{{"D-1001"}},
	}}
	s := setupServer(executor, &mockGenerator{}, &mockInspector{})

	result := callTool(t, s, "query", map[string]any{
		"sql": "SELECT item_no FROM dev_diamond2 LIMIT 10",
	})
	require.False(t, result.IsError, toolText(result))

	var res port.QueryResult
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &res))
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "D-1001", res.Rows[0][0])
}

func TestQuery_EnforcesDefaultLimit(t *testing.T) {
	executor := &mockExecutor{result: &port.QueryResult{}}
	s := setupServer(executor, &mockGenerator{}, &mockInspector{})

	result := callTool(t, s, "query", map[string]any{
		"sql": "SELECT item_no FROM dev_diamond2",
	})
	require.False(t, result.IsError, toolText(result))
	assert.Contains(t, executor.lastSQL, "LIMIT 200")
}

func TestQuery_MissingSQL(t *testing.T) {
	s := setupServer(&mockExecutor{}, &mockGenerator{}, &mockInspector{})

	result := callTool(t, s, "query", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "sql is required")
}

func TestQuery_RejectsForbiddenSQL(t *testing.T) {
	executor := &mockExecutor{}
	s := setupServer(executor, &mockGenerator{}, &mockInspector{})

	result := callTool(t, s, "query", map[string]any{"sql": "DELETE FROM dev_diamond2"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "forbidden keyword")
	assert.Empty(t, executor.lastSQL)
}

func TestQuery_RejectsWrongTable(t *testing.T) {
	s := setupServer(&mockExecutor{}, &mockGenerator{}, &mockInspector{})

	result := callTool(t, s, "query", map[string]any{"sql": "SELECT * FROM pg_shadow"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "allowed table")
}

func TestQuery_ExecutorError(t *testing.T) {
	executor := &mockExecutor{err: fmt.Errorf("connection timeout")}
	s := setupServer(executor, &mockGenerator{}, &mockInspector{})

	result := callTool(t, s, "query", map[string]any{
		"sql": "SELECT item_no FROM dev_diamond2 LIMIT 10",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "query failed")
}

func TestDescribeTable(t *testing.T) {
	inspector := &mockInspector{schema: &port.TableSchema{
		Schema: "public",
		Table:  "dev_diamond2",
		Columns: []port.ColumnInfo{
			{Name: "item_no", DataType: "varchar(50)"},
			{Name: "weight", DataType: "numeric"},
		},
		SampleRows: []map[string]any{{"item_no": "D-1001", "weight": 1.5}},
	}}
	s := setupServer(&mockExecutor{}, &mockGenerator{}, inspector)

	result := callTool(t, s, "describe_table", nil)
	require.False(t, result.IsError, toolText(result))

	var schema port.TableSchema
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &schema))
	assert.Equal(t, "dev_diamond2", schema.Table)
	require.Len(t, schema.Columns, 2)
	assert.Equal(t, "item_no", schema.Columns[0].Name)
	require.Len(t, schema.SampleRows, 1)
}

func TestDescribeTable_Error(t *testing.T) {
	inspector := &mockInspector{err: fmt.Errorf("table public.dev_diamond2 has no columns or does not exist")}
	s := setupServer(&mockExecutor{}, &mockGenerator{}, inspector)

	result := callTool(t, s, "describe_table", nil)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "failed to describe table")
}
