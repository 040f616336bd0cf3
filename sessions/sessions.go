// Package sessions implements the session routing layer: an explicit table
// mapping opaque session identifiers to live transports, the per-session
// transport itself, and the Host contract supplying each session's ordered
// message log used by SSE continuation streams.
//
// Lifecycle discipline (the only invariant that matters here): a table entry
// is inserted only after its transport has confirmed readiness by producing
// the initialize result, and is removed only by the transport's own close
// callback. The DELETE surface never touches the table directly, keeping a
// single source of truth for "is this session alive".
package sessions

import (
	"context"
	"errors"
)

var (
	// ErrSessionNotFound marks lookups naming an unknown or closed session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTransportClosed marks operations against a closed transport.
	ErrTransportClosed = errors.New("transport closed")
)

// MessageHandlerFunc receives ordered messages from a session's log. A
// non-nil error terminates the subscription.
type MessageHandlerFunc func(ctx context.Context, eventID string, data []byte) error

// Host supplies the ordered per-session message log backing server-to-client
// delivery, with resume via lastEventID. Implementations must be safe for
// concurrent use; memoryhost serves a single process and redishost spans
// several.
type Host interface {
	// PublishSession appends data to the session's log and returns the
	// assigned event identifier.
	PublishSession(ctx context.Context, sessionID string, data []byte) (eventID string, err error)
	// SubscribeSession replays events after lastEventID (all buffered events
	// are skipped when lastEventID is empty) and then follows the live log
	// until ctx ends or the session is cleaned up.
	SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler MessageHandlerFunc) error
	// CleanupSession discards the session's log and ends live subscriptions.
	CleanupSession(ctx context.Context, sessionID string) error
}
