package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/MCPJam/ext-apps/mcp"
)

// ToolResponseWriter lets a tool handler compose a CallToolResult
// incrementally. Writes after finalization return ErrFinalized. All mutating
// methods observe context cancellation.
type ToolResponseWriter interface {
	AppendText(text string) error
	// SetStructured records the machine-readable payload and appends its JSON
	// serialization as the textual echo.
	SetStructured(v any) error
	SetError(isError bool)
	SetMeta(key string, v any)
	// Result finalizes and returns the accumulated result. Idempotent.
	Result() *mcp.CallToolResult
}

// ErrFinalized is returned when writing after Result() was called.
var ErrFinalized = errors.New("result already finalized")

type toolResponseWriter struct {
	ctx       context.Context
	mu        sync.Mutex
	finalized bool

	blocks     []mcp.ContentBlock
	structured map[string]any
	isError    bool
	meta       map[string]any
}

var _ ToolResponseWriter = (*toolResponseWriter)(nil)

func newToolResponseWriter(ctx context.Context) *toolResponseWriter {
	return &toolResponseWriter{ctx: ctx}
}

func (w *toolResponseWriter) AppendText(text string) error {
	if text == "" {
		return nil
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return ErrFinalized
	}
	w.blocks = append(w.blocks, mcp.ContentBlock{Type: "text", Text: text})
	return nil
}

func (w *toolResponseWriter) SetStructured(v any) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return ErrFinalized
	}
	w.structured = m
	w.blocks = append(w.blocks, mcp.ContentBlock{Type: "text", Text: string(b)})
	return nil
}

func (w *toolResponseWriter) SetError(isError bool) {
	w.mu.Lock()
	w.isError = isError
	w.mu.Unlock()
}

func (w *toolResponseWriter) SetMeta(key string, v any) {
	if key == "" {
		return
	}
	w.mu.Lock()
	if w.meta == nil {
		w.meta = make(map[string]any)
	}
	w.meta[key] = v
	w.mu.Unlock()
}

func (w *toolResponseWriter) Result() *mcp.CallToolResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalized = true
	res := &mcp.CallToolResult{
		Content:           append([]mcp.ContentBlock(nil), w.blocks...),
		IsError:           w.isError,
		StructuredContent: w.structured,
	}
	if len(w.meta) > 0 {
		m := make(map[string]any, len(w.meta))
		for k, v := range w.meta {
			m[k] = v
		}
		res.Meta.Meta = m
	}
	return res
}
