package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/docindex-mcp/internal/app"
	"github.com/dshills/docindex-mcp/internal/logger"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp *server.MCPServer
	app *app.App
}

// NewServer creates a new MCP server backed by a. The caller owns a and
// closes it after Serve returns.
func NewServer(a *app.App) *Server {
	mcpServer := server.NewMCPServer(
		app.Name,
		app.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp: mcpServer,
		app: a,
	}
	s.registerTools()
	return s
}

// MCPServer exposes the underlying protocol server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve starts the MCP server on stdio and blocks until ctx is cancelled or
// stdin is closed
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	// stdout carries the protocol, so transport errors go through the logger
	stdio.SetErrorLogger(slog.NewLogLogger(logger.L().Handler(), slog.LevelError))

	logger.Info("MCP server listening on stdio", "name", app.Name, "version", app.Version)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexDocumentTool(), s.handleIndexDocument)
	s.mcp.AddTool(scanKnowledgeBaseTool(), s.handleScanKnowledgeBase)
	s.mcp.AddTool(searchKnowledgeBaseTool(), s.handleSearchKnowledgeBase)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(listKnowledgeBasesTool(), s.handleListKnowledgeBases)
}
