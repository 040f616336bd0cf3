// Package logctx enriches slog records with request, session and tool data
// carried in the context, so call sites never thread identifiers by hand.
package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates an slog.Handler, appending grouped attributes for any
// request/session/rpc/tool data found in the record's context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess", slog.String("id", sd.SessionID)))
	}
	if rm, ok := ctx.Value(rpcDataKey{}).(*RPCData); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", rm.Method),
			slog.String("id", rm.ID),
			slog.String("kind", rm.Kind),
		))
	}
	if td, ok := ctx.Value(toolDataKey{}).(*ToolData); ok {
		r.AddAttrs(slog.Group("tool", slog.String("name", td.ToolName)))
	}
	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

// RequestData identifies one inbound HTTP request.
type RequestData struct {
	RequestID  string
	Method     string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type sessionDataKey struct{}

// SessionData identifies the session a record pertains to.
type SessionData struct {
	SessionID string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type rpcDataKey struct{}

// RPCData identifies the JSON-RPC message being processed.
type RPCData struct {
	Method string
	ID     string
	Kind   string
}

func WithRPCData(ctx context.Context, data *RPCData) context.Context {
	return context.WithValue(ctx, rpcDataKey{}, data)
}

type toolDataKey struct{}

// ToolData identifies the tool being invoked.
type ToolData struct {
	ToolName string
}

func WithToolData(ctx context.Context, data *ToolData) context.Context {
	return context.WithValue(ctx, toolDataKey{}, data)
}
