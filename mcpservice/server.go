// Package mcpservice provides the server-side capability surface consumed by
// the transport layer: typed tool construction, static resources, and the
// aggregate Server descriptor handed to each new session.
package mcpservice

import (
	"github.com/MCPJam/ext-apps/mcp"
)

// Server aggregates the capabilities advertised during initialize and
// dispatched to afterwards. A nil container means the capability is absent.
type Server struct {
	info         mcp.ImplementationInfo
	instructions string
	tools        *ToolsContainer
	resources    *ResourcesContainer
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerInfo sets the implementation info returned from initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *Server) { s.info = info }
}

// WithInstructions sets the human-readable instructions returned from
// initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *Server) { s.instructions = instr }
}

// WithToolsContainer wires the tools capability.
func WithToolsContainer(tc *ToolsContainer) ServerOption {
	return func(s *Server) { s.tools = tc }
}

// WithResourcesContainer wires the resources capability.
func WithResourcesContainer(rc *ResourcesContainer) ServerOption {
	return func(s *Server) { s.resources = rc }
}

// NewServer builds a Server from functional options.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Info returns the implementation info.
func (s *Server) Info() mcp.ImplementationInfo { return s.info }

// Instructions returns the initialize instructions string.
func (s *Server) Instructions() string { return s.instructions }

// Tools returns the tools container, or nil when the capability is absent.
func (s *Server) Tools() *ToolsContainer { return s.tools }

// Resources returns the resources container, or nil when absent.
func (s *Server) Resources() *ResourcesContainer { return s.resources }

// Capabilities derives the advertised capability set from the wired
// containers.
func (s *Server) Capabilities() mcp.ServerCapabilities {
	var caps mcp.ServerCapabilities
	if s.tools != nil {
		caps.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{ListChanged: false}
	}
	if s.resources != nil {
		caps.Resources = &struct {
			ListChanged bool `json:"listChanged"`
			Subscribe   bool `json:"subscribe"`
		}{ListChanged: true, Subscribe: false}
	}
	return caps
}
