package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/MCPJam/ext-apps/mcp"
)

// ErrUnknownTool marks calls naming a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ToolHandler executes one tool invocation.
type ToolHandler func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// StaticTool pairs a tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolOption configures NewTool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	title       string
	description string
	meta        map[string]any
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolTitle sets the human-readable tool title.
func WithToolTitle(title string) ToolOption {
	return func(c *toolConfig) { c.title = title }
}

// WithToolMeta attaches a `_meta` entry to the tool descriptor. Hosts use
// these to bind widget templates and invocation affordances.
func WithToolMeta(key string, v any) ToolOption {
	return func(c *toolConfig) {
		if c.meta == nil {
			c.meta = make(map[string]any)
		}
		c.meta[key] = v
	}
}

// NewTool builds a StaticTool whose input schema is reflected from the typed
// argument struct A and whose handler decodes arguments strictly (unknown
// fields rejected) before invoking fn. Decoding failures become error-flagged
// results, not protocol errors.
func NewTool[A any](name string, fn func(ctx context.Context, w ToolResponseWriter, args A) error, opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	desc := mcp.Tool{
		Name:        name,
		Title:       cfg.title,
		Description: cfg.description,
		InputSchema: reflectInputSchema[A](),
	}
	if cfg.meta != nil {
		desc.Meta.Meta = cfg.meta
	}

	handler := func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args A
		if len(req.Arguments) > 0 {
			dec := json.NewDecoder(bytes.NewReader(req.Arguments))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&args); err != nil {
				return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
		}
		w := newToolResponseWriter(ctx)
		if err := fn(ctx, w, args); err != nil {
			return nil, err
		}
		return w.Result(), nil
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// reflectInputSchema reflects a Go struct type into the simplified MCP input
// schema, inlining definitions and carrying numeric bounds and defaults from
// jsonschema struct tags.
func reflectInputSchema[A any]() mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
		Default:     s.Default,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if v, ok := numberValue(s.Minimum); ok {
		p.Minimum = &v
	}
	if v, ok := numberValue(s.Maximum); ok {
		p.Maximum = &v
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toSchemaProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

func numberValue(n json.Number) (float64, bool) {
	if n == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ToolsContainer owns a fixed, threadsafe set of tool descriptors and
// handlers and dispatches calls by name.
type ToolsContainer struct {
	mu       sync.RWMutex
	tools    []mcp.Tool
	handlers map[string]ToolHandler
}

// NewToolsContainer constructs a container with the given tool definitions.
// Duplicate names resolve last-write-wins.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	tc := &ToolsContainer{handlers: make(map[string]ToolHandler, len(defs))}
	for _, d := range defs {
		tc.tools = append(tc.tools, d.Descriptor)
		if d.Handler != nil {
			tc.handlers[d.Descriptor.Name] = d.Handler
		}
	}
	return tc
}

// ListTools returns a copy of the current descriptors.
func (tc *ToolsContainer) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	out := make([]mcp.Tool, len(tc.tools))
	copy(out, tc.tools)
	return out, nil
}

// CallTool dispatches to the named tool.
func (tc *ToolsContainer) CallTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("invalid tool request: missing name")
	}
	tc.mu.RLock()
	h := tc.handlers[req.Name]
	tc.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, req.Name)
	}
	return h(ctx, req)
}

// TextResult builds a plain text CallToolResult.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: s}}}
}

// ErrorResult builds an error-flagged CallToolResult whose textual payload is
// a JSON object with a single "error" field.
func ErrorResult(message string) *mcp.CallToolResult {
	body, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		body = []byte(`{"error":"internal error"}`)
	}
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: string(body)}},
		IsError: true,
	}
}
