// Package streaminghttp exposes the session router over the MCP streamable
// HTTP transport: POST /mcp opens or continues a session, GET /mcp is the
// server-to-client SSE continuation stream, DELETE /mcp terminates. The
// endpoint is stateless per request; all continuity lives in the router's
// session table.
package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/MCPJam/ext-apps/internal/jsonrpc"
	"github.com/MCPJam/ext-apps/internal/logctx"
	"github.com/MCPJam/ext-apps/mcp"
	"github.com/MCPJam/ext-apps/sessions"
)

const (
	mcpSessionIDHeader = "Mcp-Session-Id"
	lastEventIDHeader  = "Last-Event-ID"
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// bodyKind classifies an inbound POST body before any routing decision.
type bodyKind int

const (
	bodyUnknown bodyKind = iota
	bodyInitialize
	bodyContinuation
)

// classifyBody decides whether a decoded message opens a session, continues
// one, or is unusable. Classification happens before the session table is
// consulted.
func classifyBody(msg *jsonrpc.Message) bodyKind {
	if msg == nil {
		return bodyUnknown
	}
	if req := msg.AsRequest(); req != nil && req.Method == string(mcp.InitializeMethod) && !req.IsNotification() {
		return bodyInitialize
	}
	return bodyContinuation
}

// Handler serves the /mcp endpoint backed by a session router.
type Handler struct {
	router *sessions.Router
	log    *slog.Logger
	mux    *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// New constructs a Handler for the given router.
func New(router *sessions.Router, opts ...Option) *Handler {
	h := &Handler{
		router: router,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp", h.handlePostMCP)
	mux.HandleFunc("GET /mcp", h.handleGetMCP)
	mux.HandleFunc("DELETE /mcp", h.handleDeleteMCP)
	mux.HandleFunc("OPTIONS /mcp", h.handleOptionsMCP)
	h.mux = mux
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Expose-Headers", mcpSessionIDHeader)

	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// trackingResponseWriter records whether any part of the response has been
// committed, so late failures can decide between a structured 500 and a bare
// log line.
type trackingResponseWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingResponseWriter) WriteHeader(status int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *trackingResponseWriter) Write(p []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(p)
}

func (t *trackingResponseWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// lockedWriteFlusher serializes concurrent SSE writes/flushes and refuses to
// write after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// writeRPCError writes a JSON-RPC error envelope as the HTTP response body.
// A nil id renders as "id":null.
func writeRPCError(w http.ResponseWriter, status int, id *jsonrpc.RequestID, code jsonrpc.ErrorCode, msg string) {
	res := jsonrpc.NewErrorResponse(id, code, msg, nil)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// The id field must be present even when null, which omitempty would
	// strip, so the envelope is assembled by hand here.
	idJSON, err := res.ID.MarshalJSON()
	if err != nil {
		idJSON = []byte("null")
	}
	errJSON, err := json.Marshal(res.Error)
	if err != nil {
		errJSON = []byte(`{"code":-32603,"message":"internal error"}`)
	}
	fmt.Fprintf(w, `{"jsonrpc":"2.0","error":%s,"id":%s}`, errJSON, idJSON)
}

func writeSSEEvent(wf *lockedWriteFlusher, eventID string, payload []byte) error {
	if eventID != "" {
		if _, err := fmt.Fprintf(wf, "id: %s\n", eventID); err != nil {
			return fmt.Errorf("write SSE event id: %w", err)
		}
	}
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("write SSE data prefix: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("write SSE payload: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("write SSE frame terminator: %w", err)
	}
	wf.Flush()
	return nil
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// acceptsEventStream reports whether the request's Accept header admits
// text/event-stream. An absent Accept header admits everything.
func acceptsEventStream(r *http.Request) bool {
	if r.Header.Get("Accept") == "" {
		return true
	}
	_, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes)
	return err == nil
}

func (h *Handler) handleOptionsMCP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Mcp-Session-Id, Last-Event-ID, Accept")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePostMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	tw := &trackingResponseWriter{ResponseWriter: w}
	defer func() {
		if rec := recover(); rec != nil {
			h.log.ErrorContext(ctx, "http.post.panic", slog.Any("panic", rec))
			if !tw.wrote {
				writeRPCError(tw, http.StatusInternalServerError, nil, jsonrpc.ErrorCodeInternalError, "internal server error")
			}
		}
	}()

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeRPCError(tw, http.StatusUnsupportedMediaType, nil, jsonrpc.ErrorCodeInvalidRequest, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeRPCError(tw, http.StatusBadRequest, nil, jsonrpc.ErrorCodeParseError, "invalid JSON body")
		h.log.WarnContext(ctx, "json.decode.fail", slog.String("err", err.Error()))
		return
	}
	if len(raw) > 0 && raw[0] == '[' {
		writeRPCError(tw, http.StatusBadRequest, nil, jsonrpc.ErrorCodeInvalidRequest, "JSON-RPC batch arrays are not supported")
		h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
		return
	}

	var msg jsonrpc.Message
	kind := bodyUnknown
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
	} else {
		kind = classifyBody(&msg)
	}

	sessID := r.Header.Get(mcpSessionIDHeader)

	if sessID == "" {
		if kind != bodyInitialize {
			writeRPCError(tw, http.StatusBadRequest, nil, jsonrpc.ErrorCodeSessionRequired,
				"no valid session; send an initialize request to open one")
			h.log.WarnContext(ctx, "session.required")
			return
		}
		h.handleInitialize(ctx, tw, r, msg.AsRequest(), start)
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessID})

	transport, err := h.router.Lookup(sessID)
	if err != nil {
		writeRPCError(tw, http.StatusBadRequest, nil, jsonrpc.ErrorCodeSessionRequired, "unknown session")
		h.log.InfoContext(ctx, "session.load.miss")
		return
	}

	if kind == bodyUnknown {
		writeRPCError(tw, http.StatusBadRequest, nil, jsonrpc.ErrorCodeInvalidRequest, "unrecognized JSON-RPC message")
		return
	}
	if kind == bodyInitialize {
		writeRPCError(tw, http.StatusConflict, msg.ID, jsonrpc.ErrorCodeInvalidRequest, "session already initialized")
		h.log.WarnContext(ctx, "session.initialize.redundant")
		return
	}

	if req := msg.AsRequest(); req != nil {
		ctx = logctx.WithRPCData(ctx, &logctx.RPCData{Method: req.Method, ID: req.ID.String(), Kind: msg.Kind()})

		if req.IsNotification() {
			if err := transport.HandleNotification(ctx, req); err != nil {
				h.writeUncaughtFailure(ctx, tw, nil, err)
				return
			}
			tw.WriteHeader(http.StatusAccepted)
			h.log.InfoContext(ctx, "notification.inbound.ok", slog.Duration("dur", time.Since(start)))
			return
		}

		h.respondToRequest(ctx, tw, r, transport, req)
		h.log.InfoContext(ctx, "http.post.ok", slog.Duration("dur", time.Since(start)))
		return
	}

	// Client-originated responses: this server never issues server-to-client
	// requests, so there is nothing to correlate. Accept and drop.
	tw.WriteHeader(http.StatusAccepted)
	h.log.InfoContext(ctx, "response.inbound.dropped", slog.Duration("dur", time.Since(start)))
}

// handleInitialize opens a new session: create the transport, insert the
// table entry once ready, and answer with the session identifier header plus
// the initialize result.
func (h *Handler) handleInitialize(ctx context.Context, tw *trackingResponseWriter, r *http.Request, req *jsonrpc.Request, start time.Time) {
	var initReq mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &initReq); err != nil {
			writeRPCError(tw, http.StatusBadRequest, req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid initialize parameters")
			h.log.WarnContext(ctx, "initialize.params.invalid", slog.String("err", err.Error()))
			return
		}
	}

	transport, initRes, err := h.router.CreateSession(ctx, &initReq)
	if err != nil {
		h.writeUncaughtFailure(ctx, tw, req.ID, err)
		return
	}

	res, err := jsonrpc.NewResultResponse(req.ID, initRes)
	if err != nil {
		h.writeUncaughtFailure(ctx, tw, req.ID, err)
		return
	}

	tw.Header().Set(mcpSessionIDHeader, transport.SessionID())
	h.writeResponse(ctx, tw, r, res)
	h.log.InfoContext(ctx, "http.initialize.ok",
		slog.String("session_id", transport.SessionID()),
		slog.Duration("dur", time.Since(start)))
}

// respondToRequest dispatches one continuation request and frames the
// response per the client's Accept header: an SSE stream when admitted,
// otherwise a plain JSON body.
func (h *Handler) respondToRequest(ctx context.Context, tw *trackingResponseWriter, r *http.Request, transport *sessions.Transport, req *jsonrpc.Request) {
	if !acceptsEventStream(r) {
		res, err := transport.HandleRequest(ctx, req)
		if err != nil {
			h.writeUncaughtFailure(ctx, tw, req.ID, err)
			return
		}
		h.writeJSON(ctx, tw, res)
		return
	}

	f, ok := tw.ResponseWriter.(http.Flusher)
	if !ok {
		h.writeUncaughtFailure(ctx, tw, req.ID, fmt.Errorf("response writer does not support flushing"))
		return
	}
	wf := &lockedWriteFlusher{Writer: tw, Flusher: f, ctx: ctx}

	setSSEHeaders(tw)
	tw.WriteHeader(http.StatusOK)
	wf.Flush()

	res, err := transport.HandleRequest(ctx, req)
	if err != nil {
		// Headers are committed; the failure travels inside the stream.
		h.log.ErrorContext(ctx, "rpc.inbound.fail", slog.String("err", err.Error()))
		res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal server error", nil)
	}
	b, err := json.Marshal(res)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
		return
	}
	if err := writeSSEEvent(wf, "", b); err != nil {
		h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
	}
}

// writeResponse frames a response for the initialize path using the same
// Accept-driven choice as respondToRequest.
func (h *Handler) writeResponse(ctx context.Context, tw *trackingResponseWriter, r *http.Request, res *jsonrpc.Response) {
	if !acceptsEventStream(r) {
		h.writeJSON(ctx, tw, res)
		return
	}
	f, ok := tw.ResponseWriter.(http.Flusher)
	if !ok {
		h.writeJSON(ctx, tw, res)
		return
	}
	wf := &lockedWriteFlusher{Writer: tw, Flusher: f, ctx: ctx}
	setSSEHeaders(tw)
	tw.WriteHeader(http.StatusOK)
	b, err := json.Marshal(res)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
		return
	}
	if err := writeSSEEvent(wf, "", b); err != nil {
		h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) writeJSON(ctx context.Context, tw *trackingResponseWriter, res *jsonrpc.Response) {
	b, err := json.Marshal(res)
	if err != nil {
		h.writeUncaughtFailure(ctx, tw, res.ID, err)
		return
	}
	tw.Header().Set("Content-Type", "application/json")
	tw.WriteHeader(http.StatusOK)
	if _, err := tw.Write(b); err != nil {
		h.log.WarnContext(ctx, "http.write.fail", slog.String("err", err.Error()))
	}
}

// writeUncaughtFailure reports a dispatch failure as a structured 500, but
// only when no response bytes have been committed; otherwise it logs only.
func (h *Handler) writeUncaughtFailure(ctx context.Context, tw *trackingResponseWriter, id *jsonrpc.RequestID, err error) {
	h.log.ErrorContext(ctx, "http.post.fail", slog.String("err", err.Error()))
	if tw.wrote {
		return
	}
	writeRPCError(tw, http.StatusInternalServerError, id, jsonrpc.ErrorCodeInternalError, "internal server error")
}

func (h *Handler) handleGetMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.get.start")

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		http.Error(w, "missing Mcp-Session-Id header", http.StatusBadRequest)
		h.log.WarnContext(ctx, "get.missing_session_id")
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessID})

	transport, err := h.router.Lookup(sessID)
	if err != nil {
		http.Error(w, "unknown session", http.StatusBadRequest)
		h.log.InfoContext(ctx, "session.load.miss")
		return
	}

	if !acceptsEventStream(r) {
		http.Error(w, "Accept must admit text/event-stream", http.StatusNotAcceptable)
		h.log.WarnContext(ctx, "accept.unsupported")
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "flusher.missing")
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
	wf.Flush()

	lastEventID := r.Header.Get(lastEventIDHeader)
	err = transport.Stream(ctx, lastEventID, func(ctx context.Context, eventID string, data []byte) error {
		return writeSSEEvent(wf, eventID, data)
	})
	if err != nil && ctx.Err() == nil {
		h.log.WarnContext(ctx, "http.get.stream.end", slog.String("err", err.Error()))
	}
	h.log.InfoContext(ctx, "http.get.ok", slog.Duration("dur", time.Since(start)))
}

func (h *Handler) handleDeleteMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.delete.start")

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		http.Error(w, "missing Mcp-Session-Id header", http.StatusBadRequest)
		h.log.WarnContext(ctx, "delete.missing_session_id")
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessID})

	if err := h.router.Terminate(ctx, sessID); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			http.Error(w, "unknown session", http.StatusBadRequest)
			h.log.InfoContext(ctx, "session.delete.miss")
			return
		}
		http.Error(w, "session termination failed", http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "session.delete.fail", slog.String("err", err.Error()))
		return
	}

	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "http.delete.ok", slog.Duration("dur", time.Since(start)))
}
