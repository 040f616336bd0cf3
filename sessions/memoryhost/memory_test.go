package memoryhost

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestReplayAfterLastEventID(t *testing.T) {
	ctx := context.Background()
	h := New()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := h.PublishSession(ctx, "s1", []byte(fmt.Sprintf("msg-%d", i)))
		if err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	subCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var got []string
	err := h.SubscribeSession(subCtx, "s1", ids[0], func(ctx context.Context, eventID string, data []byte) error {
		got = append(got, string(data))
		if len(got) == 2 {
			cancel()
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("subscribe: %v", err)
	}
	if len(got) != 2 || got[0] != "msg-1" || got[1] != "msg-2" {
		t.Fatalf("replayed %v, want [msg-1 msg-2]", got)
	}
}

func TestEmptyResumeSkipsBufferedEvents(t *testing.T) {
	ctx := context.Background()
	h := New()

	if _, err := h.PublishSession(ctx, "s1", []byte("before")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	subCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	got := make(chan string, 1)
	go func() {
		_ = h.SubscribeSession(subCtx, "s1", "", func(ctx context.Context, eventID string, data []byte) error {
			got <- string(data)
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := h.PublishSession(ctx, "s1", []byte("after")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-got:
		if msg != "after" {
			t.Fatalf("got %q, want only events after attach", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestHandlerErrorEndsSubscription(t *testing.T) {
	ctx := context.Background()
	h := New()

	id, err := h.PublishSession(ctx, "s1", []byte("one"))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := h.PublishSession(ctx, "s1", []byte("two")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	boom := errors.New("boom")
	// Resume from before the first event so both replay.
	err = h.SubscribeSession(ctx, "s1", "0", func(ctx context.Context, eventID string, data []byte) error {
		if eventID == id {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want handler error", err)
	}
}

func TestCleanupEndsSubscription(t *testing.T) {
	ctx := context.Background()
	h := New()

	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, "s1", "", func(ctx context.Context, eventID string, data []byte) error {
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	if err := h.CleanupSession(ctx, "s1"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("subscription ended with %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("subscription did not end after cleanup")
	}
}

func TestPublishAfterCleanupStartsFreshLog(t *testing.T) {
	ctx := context.Background()
	h := New()

	if _, err := h.PublishSession(ctx, "s1", []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := h.CleanupSession(ctx, "s1"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	// The log was discarded; a fresh publish starts a new empty log rather
	// than resurrecting old events.
	id, err := h.PublishSession(ctx, "s1", []byte("y"))
	if err != nil {
		t.Fatalf("publish after cleanup: %v", err)
	}
	if id != "1" {
		t.Fatalf("event id %q, want fresh log starting at 1", id)
	}
}
