package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"github.com/tellusko/tellusko/internal/core/port"
	"github.com/tellusko/tellusko/internal/core/service"
	"go.opentelemetry.io/otel/trace"
)

// NewServer creates an MCPServer with tools and logging hooks.
func NewServer(version string, query *service.QueryService, inspector port.SchemaInspector, logger *slog.Logger, tracer trace.Tracer) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithHooks(ToolCallHooks(logger, tracer)),
	)

	RegisterTools(s, query, inspector)

	return s
}
