package sessions_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/MCPJam/ext-apps/internal/jsonrpc"
	"github.com/MCPJam/ext-apps/mcp"
	"github.com/MCPJam/ext-apps/mcpservice"
	"github.com/MCPJam/ext-apps/sessions"
	"github.com/MCPJam/ext-apps/sessions/memoryhost"
)

func newRouter(t *testing.T) *sessions.Router {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := func(ctx context.Context) *mcpservice.Server {
		return mcpservice.NewServer(
			mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "test", Version: "0"}),
			mcpservice.WithToolsContainer(mcpservice.NewToolsContainer()),
		)
	}
	return sessions.NewRouter(factory, memoryhost.New(), log)
}

func initReq() *mcp.InitializeRequest {
	return &mcp.InitializeRequest{
		ProtocolVersion: mcp.LatestProtocolVersion,
		ClientInfo:      mcp.ImplementationInfo{Name: "test-client", Version: "1"},
	}
}

func TestCreateSessionInsertsReadyEntry(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)

	transport, res, err := r.CreateSession(ctx, initReq())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !transport.Ready() {
		t.Fatal("transport not ready after create")
	}
	if res.ProtocolVersion != mcp.LatestProtocolVersion {
		t.Fatalf("protocol version %q", res.ProtocolVersion)
	}
	if r.Len() != 1 {
		t.Fatalf("table entries: %d", r.Len())
	}
	got, err := r.Lookup(transport.SessionID())
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != transport {
		t.Fatal("lookup returned a different transport")
	}
}

func TestTerminateUnknownSession(t *testing.T) {
	r := newRouter(t)
	err := r.Terminate(context.Background(), "nope")
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestCloseIsIdempotentAndRemovesEntry(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	transport, _, err := r.CreateSession(ctx, initReq())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := transport.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := transport.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("table entries after close: %d", r.Len())
	}
	if _, err := r.Lookup(transport.SessionID()); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("lookup after close: %v", err)
	}
}

func TestShutdownSweepsAllSessions(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	for i := 0; i < 3; i++ {
		if _, _, err := r.CreateSession(ctx, initReq()); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if r.Len() != 3 {
		t.Fatalf("table entries: %d", r.Len())
	}
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("table entries after shutdown: %d", r.Len())
	}
}

func TestHandleRequestPingAndUnknownMethod(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	transport, _, err := r.CreateSession(ctx, initReq())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ping := &jsonrpc.Request{Version: jsonrpc.Version, Method: "ping", ID: jsonrpc.NewRequestID("1")}
	res, err := transport.HandleRequest(ctx, ping)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if res.Error != nil {
		t.Fatalf("ping error: %+v", res.Error)
	}

	bogus := &jsonrpc.Request{Version: jsonrpc.Version, Method: "no/such/method", ID: jsonrpc.NewRequestID("2")}
	res, err = transport.HandleRequest(ctx, bogus)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("want method-not-found, got %+v", res.Error)
	}
}

func TestPublishAndStreamRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	transport, _, err := r.CreateSession(ctx, initReq())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	got := make(chan []byte, 1)
	go func() {
		_ = transport.Stream(streamCtx, "", func(ctx context.Context, eventID string, data []byte) error {
			got <- data
			return nil
		})
	}()

	// Give the subscriber a moment to attach before publishing; an empty
	// resume point only sees events published after attachment.
	time.Sleep(20 * time.Millisecond)

	note := &jsonrpc.Request{Version: jsonrpc.Version, Method: "notifications/resources/list_changed"}
	if err := transport.Publish(ctx, note); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case data := <-got:
		var decoded jsonrpc.Request
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.Method != "notifications/resources/list_changed" {
			t.Fatalf("method %q", decoded.Method)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for streamed message")
	}
}

func TestRequestAfterCloseFails(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	transport, _, err := r.CreateSession(ctx, initReq())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := transport.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	ping := &jsonrpc.Request{Version: jsonrpc.Version, Method: "ping", ID: jsonrpc.NewRequestID("1")}
	if _, err := transport.HandleRequest(ctx, ping); !errors.Is(err, sessions.ErrTransportClosed) {
		t.Fatalf("err = %v, want ErrTransportClosed", err)
	}
}
