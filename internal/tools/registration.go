// Package tools provides shared types and helpers for exposing read-only
// MCP tools over the exporter's state.
package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Registration pairs an MCP tool definition with its handler function.
type Registration struct {
	Tool    mcp.Tool
	Handler server.ToolHandlerFunc
}

// NewServer builds an MCP server advertising tool capabilities and
// registers every entry in registrations on it.
func NewServer(name, version string, registrations []Registration) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	for _, r := range registrations {
		s.AddTool(r.Tool, r.Handler)
	}
	return s
}
