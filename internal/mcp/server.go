package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/jobsearch-mcp/internal/app"
	"github.com/dshills/jobsearch-mcp/internal/config"
)

const (
	// ServerName is the MCP server name
	ServerName = "jobsearch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server exposes the ranking engine and job index as MCP tools
type Server struct {
	mcp    *server.MCPServer
	app    *app.App
	logger *zap.Logger
	owned  bool // app was opened by NewServer and is closed by Serve
}

// NewServer opens every component from cfg and registers the tools.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s := New(a)
	s.owned = true
	return s, nil
}

// New creates a server around an already wired App.
func New(a *app.App) *Server {
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		app:    a,
		logger: a.Logger.Named("mcp"),
	}
	s.registerTools()
	return s
}

// Serve runs the MCP protocol on stdio until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	if s.owned {
		defer func() { _ = s.app.Close() }()
	}

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))

	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(rankJobsTool(), s.handleRankJobs)
	s.mcp.AddTool(filterJobsTool(), s.handleFilterJobs)
	s.mcp.AddTool(findJobsTool(), s.handleFindJobs)
	s.mcp.AddTool(getJobTool(), s.handleGetJob)
	s.mcp.AddTool(indexJobsTool(), s.handleIndexJobs)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
