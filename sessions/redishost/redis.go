// Package redishost provides a sessions.Host backed by Redis Streams, letting
// several server processes share one session table's message logs. Event IDs
// are Redis stream entry IDs, so Last-Event-ID resume works across processes.
package redishost

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MCPJam/ext-apps/sessions"
)

// Host is a Redis Streams-based sessions.Host.
type Host struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ sessions.Host = (*Host)(nil)

// Config contains configuration for the Redis host.
type Config struct {
	// Client is the Redis client to use. Required.
	Client redis.UniversalClient
	// KeyPrefix is prepended to all Redis keys. Defaults to "extapps:session:".
	KeyPrefix string
}

// New creates a Redis-backed host.
func New(config Config) *Host {
	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "extapps:session:"
	}
	return &Host{
		client:    config.Client,
		keyPrefix: keyPrefix,
	}
}

// NewFromURL creates a Redis-backed host from a redis:// URL.
func NewFromURL(rawURL string) (*Host, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(Config{Client: redis.NewClient(opts)}), nil
}

// Close closes the underlying Redis connection.
func (h *Host) Close() error {
	return h.client.Close()
}

// PublishSession appends data to the session's stream via XADD and returns the
// Redis-assigned entry ID.
func (h *Host) PublishSession(ctx context.Context, sessionID string, data []byte) (string, error) {
	streamKey := h.streamKey(sessionID)
	eventID, err := h.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{"data": data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish to stream %s: %w", streamKey, err)
	}
	return eventID, nil
}

// SubscribeSession reads the session's stream with XREAD, resuming after
// lastEventID when given and from the stream tail otherwise. Blocks in short
// intervals so context cancellation is observed promptly.
func (h *Host) SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler sessions.MessageHandlerFunc) error {
	streamKey := h.streamKey(sessionID)

	startID := "$"
	if lastEventID != "" {
		startID = lastEventID
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := h.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey, startID},
			Count:   16,
			Block:   time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream %s: %w", streamKey, err)
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				startID = message.ID
				data, ok := message.Values["data"].(string)
				if !ok {
					continue
				}
				if err := handler(ctx, message.ID, []byte(data)); err != nil {
					return err
				}
			}
		}
	}
}

// CleanupSession deletes the session's stream.
func (h *Host) CleanupSession(ctx context.Context, sessionID string) error {
	streamKey := h.streamKey(sessionID)
	if err := h.client.Del(ctx, streamKey).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("cleanup session %s: %w", sessionID, err)
	}
	return nil
}

func (h *Host) streamKey(sessionID string) string {
	return h.keyPrefix + "stream:" + sessionID
}
