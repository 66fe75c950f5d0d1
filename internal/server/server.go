// Package server wires the MCP surface over the forest service. No
// business logic lives here; every tool delegates to the service and
// renders the result.
package server

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/BretMeraki/Forest7-15-sub001/internal/config"
	"github.com/BretMeraki/Forest7-15-sub001/internal/forest"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with all tools registered.
func New(svc *forest.Service, cfg config.Config) *server.MCPServer {
	s := server.NewMCPServer(
		"forest",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	buildTool := NewBuildTool(svc, cfg)
	s.AddTool(buildTool.Definition(), buildTool.Handle)

	expandTool := NewExpandTool(svc)
	s.AddTool(expandTool.Definition(), expandTool.Handle)

	completeTool := NewCompleteTool(svc)
	s.AddTool(completeTool.Definition(), completeTool.Handle)

	nextTool := NewNextTool(svc, cfg)
	s.AddTool(nextTool.Definition(), nextTool.Handle)

	statusTool := NewStatusTool(svc)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	return s
}

// Serve runs the server over stdio until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
