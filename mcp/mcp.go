// Package mcp defines the Model Context Protocol wire types exchanged by this
// server: the initialize handshake, the tools surface and the resources
// surface. Shapes follow the MCP schema for the protocol revision in
// LatestProtocolVersion.
package mcp

import "encoding/json"

// Method is an MCP method identifier used in JSON-RPC messages.
type Method string

const (
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"
	PingMethod                    Method = "ping"

	ToolsListMethod Method = "tools/list"
	ToolsCallMethod Method = "tools/call"

	ResourcesListMethod                    Method = "resources/list"
	ResourcesReadMethod                    Method = "resources/read"
	ResourcesListChangedNotificationMethod Method = "notifications/resources/list_changed"
)

// LatestProtocolVersion is the protocol revision this server negotiates.
const LatestProtocolVersion = "2025-06-18"

// ImplementationInfo identifies an MCP implementation by name and version.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitzero"`
}

// ClientCapabilities advertises client features. This server does not act on
// any of them but echoes structure faithfully.
type ClientCapabilities struct {
	Roots *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"roots,omitempty"`
	Sampling    *struct{} `json:"sampling,omitempty"`
	Elicitation *struct{} `json:"elicitation,omitempty"`
}

// ServerCapabilities advertises server features.
type ServerCapabilities struct {
	Tools *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"tools,omitempty"`
	Resources *struct {
		ListChanged bool `json:"listChanged"`
		Subscribe   bool `json:"subscribe"`
	} `json:"resources,omitempty"`
}

// InitializeRequest starts the MCP initialization handshake.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// InitializeResult returns negotiated capabilities and server info.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitzero"`
}

// Meta carries the optional `_meta` extension map used to bind widget
// templates and other host-defined metadata to descriptors and results.
type Meta struct {
	Meta map[string]any `json:"_meta,omitempty"`
}

// PaginatedRequest carries a cursor for paginated list requests.
type PaginatedRequest struct {
	Cursor string `json:"cursor,omitzero"`
}

// PaginatedResult carries a cursor for continuing pagination.
type PaginatedResult struct {
	NextCursor string `json:"nextCursor,omitzero"`
}

// Tool describes a callable tool and its input schema.
type Tool struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitzero"`
	Description string          `json:"description,omitempty"`
	InputSchema ToolInputSchema `json:"inputSchema"`
	Meta
}

// ToolInputSchema is a JSON-schema-like description of tool input.
type ToolInputSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]SchemaProperty `json:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties bool                      `json:"additionalProperties,omitzero"`
}

// SchemaProperty is a simplified schema node used in tool input schemas.
type SchemaProperty struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitzero"`
	Items       *SchemaProperty           `json:"items,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Enum        []any                     `json:"enum,omitempty"`
	Minimum     *float64                  `json:"minimum,omitempty"`
	Maximum     *float64                  `json:"maximum,omitempty"`
	Default     any                       `json:"default,omitempty"`
}

// ContentBlock is a typed content part of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitzero"`
}

// ListToolsRequest requests the set of available tools.
type ListToolsRequest struct {
	PaginatedRequest
}

// ListToolsResult returns the available tools.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
	PaginatedResult
}

// CallToolRequest is the server-received representation of a tool call.
type CallToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the outcome of a tool invocation. An error outcome is a
// normal result with IsError set; it never surfaces as a protocol failure.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitzero"`
	// StructuredContent carries the machine-readable payload, distinct from
	// the textual echo in Content.
	StructuredContent map[string]any `json:"structuredContent,omitempty"`
	Meta
}

// Resource represents an addressable resource such as a widget bundle.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitzero"`
	MimeType    string `json:"mimeType,omitzero"`
	Meta
}

// ResourceContents is the value of a resource read.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitzero"`
	Text     string `json:"text,omitzero"`
	Blob     string `json:"blob,omitzero"`
	Meta
}

// ListResourcesRequest requests a paginated list of resources.
type ListResourcesRequest struct {
	PaginatedRequest
}

// ListResourcesResult returns a page of resources.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
	PaginatedResult
}

// ReadResourceRequest requests the contents of a resource by URI.
type ReadResourceRequest struct {
	URI string `json:"uri"`
}

// ReadResourceResult returns resource contents.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// EmptyResult is returned for operations that do not return data.
type EmptyResult struct{}
