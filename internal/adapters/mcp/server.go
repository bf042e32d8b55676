package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/kt-search/internal/core/ports"
)

const (
	serverName = "kt-search"

	toolSearch      = "search"
	toolListClients = "list_clients"
	toolSearchLogs  = "recent_searches"

	defaultLogsLimit = 20
)

// Server exposes the search pipeline as MCP tools over streamable HTTP.
type Server struct {
	search  ports.SearchService
	clients ports.ClientDirectory
	logs    ports.SearchLogReader
	mcp     *server.MCPServer
}

// New registers the tools. clients and logs may be nil; their tools are
// then not advertised.
func New(version string, search ports.SearchService, clients ports.ClientDirectory, logs ports.SearchLogReader) *Server {
	s := &Server{
		search:  search,
		clients: clients,
		logs:    logs,
		mcp:     server.NewMCPServer(serverName, version, server.WithToolCapabilities(false), server.WithRecovery()),
	}

	s.mcp.AddTool(mcp.NewTool(toolSearch,
		mcp.WithDescription("Search meeting transcriptions and answer a natural-language question about clients."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Question in natural language, at most 500 characters."),
		),
	), s.handleSearch)

	if clients != nil {
		s.mcp.AddTool(mcp.NewTool(toolListClients,
			mcp.WithDescription("List clients discovered in the transcription store."),
		), s.handleListClients)
	}
	if logs != nil {
		s.mcp.AddTool(mcp.NewTool(toolSearchLogs,
			mcp.WithDescription("Show the most recent search executions."),
			mcp.WithNumber("limit", mcp.Description("Maximum entries to return.")),
		), s.handleSearchLogs)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp := s.search.Search(ctx, query)
	if !resp.Success {
		slog.Warn("mcp_search_failed", "query_type", resp.QueryType, "error", resp.Error)
	}
	return structured(resp, resp.Answer.Text, !resp.Success)
}

func (s *Server) handleListClients(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clients, err := s.clients.Clients(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list clients: %v", err)), nil
	}
	return structured(map[string]any{"clients": clients, "count": len(clients)}, fmt.Sprintf("%d clients", len(clients)), false)
}

func (s *Server) handleSearchLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultLogsLimit)
	if limit <= 0 {
		limit = defaultLogsLimit
	}
	entries, err := s.logs.Recent(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recent searches: %v", err)), nil
	}
	return structured(map[string]any{"entries": entries, "count": len(entries)}, fmt.Sprintf("%d searches", len(entries)), false)
}

// structured returns the payload as JSON text so clients without structured
// content support still get the full object.
func structured(payload any, summary string, isError bool) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	result := mcp.NewToolResultStructured(payload, string(raw))
	if summary != "" {
		result.Content = append(result.Content, mcp.NewTextContent(summary))
	}
	result.IsError = isError
	return result, nil
}
