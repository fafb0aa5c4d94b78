package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tellusko/tellusko/internal/core/port"
	"github.com/tellusko/tellusko/internal/core/service"
)

// Server metadata
const serverName = "tellusko"

// Tool descriptions
const (
	descAsk = "Ask a question about the data in natural language. " +
		"The question is translated to a single bounded SELECT against the allowed table, " +
		"validated, executed, and summarized. " +
		"Pass the session_id returned by a previous call to keep conversation context."

	descAskParam        = "Natural language question about the data"
	descAskSessionParam = "Session ID for conversation context (optional, a new session is created if omitted)"
	descAskLimitParam   = "Maximum number of rows to return (optional, capped server-side)"

	descQuery = "Execute a read-only SQL query against the allowed table and return columns and rows as JSON. " +
		"Only single SELECT statements referencing the allowed table are accepted; " +
		"a server-side row limit and query timeout are enforced. " +
		"Always use specific column names instead of SELECT *."

	descQueryParam = "SQL query to execute (SELECT statements only)"

	descDescribeTable = "Describe the allowed table: columns with types and a few sample rows. " +
		"Use this to understand the table before writing queries."
)

func RegisterTools(s *server.MCPServer, query *service.QueryService, inspector port.SchemaInspector) {
	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription(descAsk),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description(descAskParam),
			),
			mcp.WithString("session_id",
				mcp.Description(descAskSessionParam),
			),
			mcp.WithNumber("limit",
				mcp.Description(descAskLimitParam),
			),
		),
		askHandler(query),
	)

	s.AddTool(
		mcp.NewTool("query",
			mcp.WithDescription(descQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descQueryParam),
			),
		),
		queryHandler(query),
	)

	s.AddTool(
		mcp.NewTool("describe_table",
			mcp.WithDescription(descDescribeTable),
		),
		describeTableHandler(inspector),
	)
}

func askHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, ok := request.GetArguments()["question"].(string)
		if !ok || question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}

		sessionID, _ := request.GetArguments()["session_id"].(string)
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		limit := 0
		if v, ok := request.GetArguments()["limit"].(float64); ok {
			limit = int(v)
		}

		outcome, err := query.Process(ctx, sessionID, 0, question, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		payload := map[string]any{
			"success":    outcome.Success,
			"session_id": sessionID,
			"sql":        outcome.SQL,
			"columns":    outcome.Columns,
			"rows":       outcome.Rows,
			"summary":    outcome.Summary,
			"row_count":  outcome.RowCount,
		}
		if !outcome.Success {
			payload["error"] = outcome.Error
			payload["reason"] = outcome.Reason
		}

		data, err := json.Marshal(payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func queryHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		result, err := query.ExecuteSQL(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}

		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func describeTableHandler(inspector port.SchemaInspector) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema, err := inspector.TableSchema(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to describe table: %v", err)), nil
		}

		data, err := json.Marshal(schema)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}
