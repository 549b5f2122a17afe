// Package mcpserver exposes the query router as an MCP tool so agents can
// read site content without going through HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/agentic-research/kiln/internal/query"
)

// Querier is the router surface the tool needs.
type Querier interface {
	Query(ctx context.Context, ns, slug string, opts query.Options) (query.Result, error)
	Namespaces() []string
}

// New builds a server with the query tool registered.
func New(router Querier, version string, logger *zap.Logger) *server.MCPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := server.NewMCPServer(
		"kiln",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTool(QueryTool(router.Namespaces()), QueryHandler(router, logger))
	return s
}

// QueryTool describes the query tool. namespaces populates the enum.
func QueryTool(namespaces []string) mcp.Tool {
	return mcp.NewTool("query",
		mcp.WithDescription("Look up a slug in a content namespace and return its JSON payload."),
		mcp.WithString("namespace",
			mcp.Required(),
			mcp.Description("Namespace to query, e.g. data or references."),
			mcp.Enum(namespaces...),
		),
		mcp.WithString("slug",
			mcp.Description("Slug inside the namespace. Empty selects the namespace root."),
		),
		mcp.WithObject("options",
			mcp.Description("Handler options; string values or arrays of strings."),
		),
	)
}

// QueryHandler answers tool calls. Misses are reported as tool errors so the
// caller sees them; router faults are returned as errors.
func QueryHandler(router Querier, logger *zap.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ns, err := req.RequireString("namespace")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		slug := req.GetString("slug", "")

		var opts query.Options
		if raw, ok := req.GetArguments()["options"].(map[string]any); ok {
			opts = query.FromMap(raw)
		}

		res, err := router.Query(ctx, ns, slug, opts)
		if err != nil {
			logger.Error("query tool failed", zap.String("namespace", ns), zap.String("slug", slug), zap.Error(err))
			return nil, fmt.Errorf("query %s/%s: %w", ns, slug, err)
		}
		if !res.Found {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s/%s", ns, slug)), nil
		}
		body, err := json.Marshal(res.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}
