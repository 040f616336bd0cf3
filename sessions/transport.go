package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/MCPJam/ext-apps/internal/jsonrpc"
	"github.com/MCPJam/ext-apps/internal/logctx"
	"github.com/MCPJam/ext-apps/mcp"
	"github.com/MCPJam/ext-apps/mcpservice"
)

// Transport binds one session to its invocation context (the capability
// server registered at creation) and to its ordered message log. Exactly one
// transport owns a session at a time; the router holds a non-owning lookup
// reference only.
type Transport struct {
	id     string
	server *mcpservice.Server
	host   Host
	log    *slog.Logger

	// lifetime of background work tied to this transport (resource
	// list_changed forwarding); canceled on Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	ready      bool
	closed     bool
	closeHooks []func()
}

func newTransport(id string, server *mcpservice.Server, host Host, log *slog.Logger) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		id:     id,
		server: server,
		host:   host,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SessionID returns the opaque session identifier owned by this transport.
func (t *Transport) SessionID() string { return t.id }

// Ready reports whether the transport confirmed session readiness.
func (t *Transport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

// OnClose registers a callback fired exactly once when the transport closes.
// Callbacks registered after close run immediately.
func (t *Transport) OnClose(fn func()) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		fn()
		return
	}
	t.closeHooks = append(t.closeHooks, fn)
	t.mu.Unlock()
}

// Initialize performs the session handshake: it computes the initialize
// result from the bound capability server and marks the transport ready.
// Only after this returns may the router publish the session in its table.
func (t *Transport) Initialize(ctx context.Context, req *mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	res := &mcp.InitializeResult{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities:    t.server.Capabilities(),
		ServerInfo:      t.server.Info(),
		Instructions:    t.server.Instructions(),
	}

	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()

	if rc := t.server.Resources(); rc != nil {
		go t.forwardResourceListChanges(rc)
	}

	t.log.InfoContext(ctx, "session.init.ok",
		slog.String("client", req.ClientInfo.Name),
		slog.String("client_version", req.ClientInfo.Version))
	return res, nil
}

// HandleRequest dispatches a JSON-RPC request against the bound capability
// server and returns the response to send. Unknown methods produce a
// method-not-found error response, never a Go error.
func (t *Transport) HandleRequest(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	switch req.Method {
	case string(mcp.PingMethod):
		return jsonrpc.NewResultResponse(req.ID, mcp.EmptyResult{})

	case string(mcp.ToolsListMethod):
		tc := t.server.Tools()
		if tc == nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported", nil), nil
		}
		tools, err := tc.ListTools(ctx)
		if err != nil {
			return nil, err
		}
		return jsonrpc.NewResultResponse(req.ID, &mcp.ListToolsResult{Tools: tools})

	case string(mcp.ToolsCallMethod):
		tc := t.server.Tools()
		if tc == nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported", nil), nil
		}
		var callReq mcp.CallToolRequest
		if err := json.Unmarshal(req.Params, &callReq); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid parameters", nil), nil
		}
		ctx := logctx.WithToolData(ctx, &logctx.ToolData{ToolName: callReq.Name})
		result, err := tc.CallTool(ctx, &callReq)
		if err != nil {
			if errors.Is(err, mcpservice.ErrUnknownTool) {
				return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error(), nil), nil
			}
			return nil, err
		}
		t.log.InfoContext(ctx, "tool.call.ok", slog.Bool("is_error", result.IsError))
		return jsonrpc.NewResultResponse(req.ID, result)

	case string(mcp.ResourcesListMethod):
		rc := t.server.Resources()
		if rc == nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "resources capability not supported", nil), nil
		}
		resources, err := rc.ListResources(ctx)
		if err != nil {
			return nil, err
		}
		return jsonrpc.NewResultResponse(req.ID, &mcp.ListResourcesResult{Resources: resources})

	case string(mcp.ResourcesReadMethod):
		rc := t.server.Resources()
		if rc == nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "resources capability not supported", nil), nil
		}
		var readReq mcp.ReadResourceRequest
		if err := json.Unmarshal(req.Params, &readReq); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid parameters", nil), nil
		}
		contents, err := rc.ReadResource(ctx, readReq.URI)
		if err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error(), nil), nil
		}
		return jsonrpc.NewResultResponse(req.ID, &mcp.ReadResourceResult{Contents: contents})
	}

	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found",
		map[string]string{"method": req.Method}), nil
}

// HandleNotification accepts client notifications. None require action in
// this server; they are logged and dropped.
func (t *Transport) HandleNotification(ctx context.Context, req *jsonrpc.Request) error {
	t.log.InfoContext(ctx, "notification.inbound", slog.String("method", req.Method))
	return nil
}

// Publish appends a server-to-client message to the session log for delivery
// over the GET continuation stream.
func (t *Transport) Publish(ctx context.Context, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = t.host.PublishSession(ctx, t.id, b)
	return err
}

// Stream follows the session's message log, replaying after lastEventID,
// until ctx ends or the session is cleaned up.
func (t *Transport) Stream(ctx context.Context, lastEventID string, handler MessageHandlerFunc) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()
	return t.host.SubscribeSession(ctx, t.id, lastEventID, handler)
}

// Close tears the transport down: background forwarding stops, the session
// log is discarded, and close callbacks (including the router's table
// removal) fire. Idempotent.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	hooks := t.closeHooks
	t.closeHooks = nil
	t.mu.Unlock()

	t.cancel()
	err := t.host.CleanupSession(ctx, t.id)

	for _, fn := range hooks {
		fn()
	}
	if err != nil {
		return err
	}
	return nil
}

// forwardResourceListChanges bridges the resource container's change ticks
// into notifications/resources/list_changed on the session log.
func (t *Transport) forwardResourceListChanges(rc *mcpservice.ResourcesContainer) {
	ch := rc.Subscriber()
	defer rc.Unsubscribe(ch)
	for {
		select {
		case <-t.ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			note := &jsonrpc.Request{
				Version: jsonrpc.Version,
				Method:  string(mcp.ResourcesListChangedNotificationMethod),
			}
			if err := t.Publish(t.ctx, note); err != nil {
				t.log.Warn("notify.list_changed.fail", slog.String("err", err.Error()))
			}
		}
	}
}
