package mcpservice

import (
	"context"
	"sync"
)

// ChangeNotifier is a small in-process fan-out used by containers to signal
// that their listing changed, so transports can emit list_changed
// notifications. Delivery is best-effort: slow subscribers drop ticks.
type ChangeNotifier struct {
	mu     sync.Mutex
	subs   []chan struct{}
	closed bool
}

// Notify signals every subscriber without blocking on any of them.
func (cn *ChangeNotifier) Notify(ctx context.Context) error {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		return nil
	}
	for _, ch := range cn.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscriber registers and returns a buffered signal channel. The channel is
// closed when the notifier is closed.
func (cn *ChangeNotifier) Subscriber() <-chan struct{} {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	ch := make(chan struct{}, 1)
	cn.subs = append(cn.subs, ch)
	return ch
}

// Unsubscribe detaches a channel previously returned by Subscriber and
// closes it. Unknown channels are ignored.
func (cn *ChangeNotifier) Unsubscribe(ch <-chan struct{}) {
	cn.mu.Lock()
	for i, sub := range cn.subs {
		if (<-chan struct{})(sub) == ch {
			cn.subs = append(cn.subs[:i], cn.subs[i+1:]...)
			cn.mu.Unlock()
			close(sub)
			return
		}
	}
	cn.mu.Unlock()
}

// Close terminates all subscriber channels.
func (cn *ChangeNotifier) Close() {
	cn.mu.Lock()
	if cn.closed {
		cn.mu.Unlock()
		return
	}
	cn.closed = true
	subs := cn.subs
	cn.subs = nil
	cn.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}
