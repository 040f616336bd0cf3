// Package memoryhost provides an in-process sessions.Host. Each session owns
// an append-only event slice; subscribers wait on a broadcast channel that is
// swapped on every append, so delivery is wakeup-driven rather than polled.
// Suitable for a single process only.
package memoryhost

import (
	"context"
	"strconv"
	"sync"

	"github.com/MCPJam/ext-apps/sessions"
)

type event struct {
	id   uint64
	data []byte
}

type sessionLog struct {
	mu     sync.Mutex
	events []event
	nextID uint64
	// closed on every append and on cleanup, then replaced; subscribers wait
	// on the channel observed under the lock.
	wake    chan struct{}
	removed bool
}

func newSessionLog() *sessionLog {
	return &sessionLog{nextID: 1, wake: make(chan struct{})}
}

// Host is an in-memory sessions.Host.
type Host struct {
	mu   sync.Mutex
	logs map[string]*sessionLog
}

var _ sessions.Host = (*Host)(nil)

// New constructs an empty in-memory host.
func New() *Host {
	return &Host{logs: make(map[string]*sessionLog)}
}

func (h *Host) sessionLog(sessionID string, create bool) *sessionLog {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.logs[sessionID]
	if !ok && create {
		l = newSessionLog()
		h.logs[sessionID] = l
	}
	return l
}

// PublishSession appends data to the session's log and wakes subscribers.
func (h *Host) PublishSession(ctx context.Context, sessionID string, data []byte) (string, error) {
	l := h.sessionLog(sessionID, true)

	l.mu.Lock()
	if l.removed {
		l.mu.Unlock()
		return "", sessions.ErrSessionNotFound
	}
	id := l.nextID
	l.nextID++
	d := make([]byte, len(data))
	copy(d, data)
	l.events = append(l.events, event{id: id, data: d})
	close(l.wake)
	l.wake = make(chan struct{})
	l.mu.Unlock()

	return strconv.FormatUint(id, 10), nil
}

// SubscribeSession replays events after lastEventID and then follows the live
// log. An empty lastEventID starts after the current tail: only events
// published from this point on are delivered.
func (h *Host) SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler sessions.MessageHandlerFunc) error {
	l := h.sessionLog(sessionID, true)

	var cursor uint64
	if lastEventID == "" {
		l.mu.Lock()
		cursor = l.nextID - 1
		l.mu.Unlock()
	} else {
		n, err := strconv.ParseUint(lastEventID, 10, 64)
		if err != nil {
			// Unparseable resume point: treat as a fresh subscription.
			l.mu.Lock()
			n = l.nextID - 1
			l.mu.Unlock()
		}
		cursor = n
	}

	for {
		l.mu.Lock()
		if l.removed {
			l.mu.Unlock()
			return nil
		}
		var pending []event
		for _, e := range l.events {
			if e.id > cursor {
				pending = append(pending, e)
			}
		}
		wake := l.wake
		l.mu.Unlock()

		for _, e := range pending {
			if err := handler(ctx, strconv.FormatUint(e.id, 10), e.data); err != nil {
				return err
			}
			cursor = e.id
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// CleanupSession discards the session's log and ends live subscriptions.
func (h *Host) CleanupSession(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	l, ok := h.logs[sessionID]
	delete(h.logs, sessionID)
	h.mu.Unlock()
	if !ok {
		return nil
	}

	l.mu.Lock()
	l.removed = true
	l.events = nil
	close(l.wake)
	l.wake = make(chan struct{})
	l.mu.Unlock()
	return nil
}
