package sessions

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/MCPJam/ext-apps/mcp"
	"github.com/MCPJam/ext-apps/mcpservice"
)

// ServerFactory produces a fresh capability server for each new session.
type ServerFactory func(ctx context.Context) *mcpservice.Server

// Router owns the session table. Every continuation request resolves through
// Lookup; only CreateSession inserts, and only a transport's close callback
// removes.
type Router struct {
	factory ServerFactory
	host    Host
	log     *slog.Logger

	mu    sync.Mutex
	table map[string]*Transport
}

// NewRouter builds a router whose sessions are backed by host and whose
// capability servers come from factory.
func NewRouter(factory ServerFactory, host Host, log *slog.Logger) *Router {
	return &Router{
		factory: factory,
		host:    host,
		log:     log,
		table:   make(map[string]*Transport),
	}
}

// CreateSession mints a new session: a fresh identifier, a fresh capability
// server, and a transport that has completed the initialize handshake. The
// table entry is inserted only after the transport reports ready, so a lookup
// can never observe a half-initialized session.
func (r *Router) CreateSession(ctx context.Context, req *mcp.InitializeRequest) (*Transport, *mcp.InitializeResult, error) {
	id := uuid.NewString()
	t := newTransport(id, r.factory(ctx), r.host, r.log.With(slog.String("session_id", id)))

	res, err := t.Initialize(ctx, req)
	if err != nil {
		_ = t.Close(ctx)
		return nil, nil, err
	}

	r.mu.Lock()
	r.table[id] = t
	r.mu.Unlock()

	t.OnClose(func() {
		r.mu.Lock()
		delete(r.table, id)
		r.mu.Unlock()
	})

	r.log.InfoContext(ctx, "session.create", slog.String("session_id", id))
	return t, res, nil
}

// Lookup resolves a session identifier to its live transport.
func (r *Router) Lookup(sessionID string) (*Transport, error) {
	r.mu.Lock()
	t, ok := r.table[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return t, nil
}

// Terminate closes the named session. The transport's close callback removes
// the table entry.
func (r *Router) Terminate(ctx context.Context, sessionID string) error {
	t, err := r.Lookup(sessionID)
	if err != nil {
		return err
	}
	return t.Close(ctx)
}

// Len reports the number of live sessions.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table)
}

// Shutdown sweeps the table, closing every session independently. One
// session's close failure never blocks another's; failures are logged and
// the first error is returned.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	transports := make([]*Transport, 0, len(r.table))
	for _, t := range r.table {
		transports = append(transports, t)
	}
	r.mu.Unlock()

	var firstErr error
	for _, t := range transports {
		if err := t.Close(ctx); err != nil {
			r.log.ErrorContext(ctx, "session.shutdown.fail",
				slog.String("session_id", t.SessionID()),
				slog.String("err", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	r.log.InfoContext(ctx, "router.shutdown", slog.Int("sessions_closed", len(transports)))
	return firstErr
}
