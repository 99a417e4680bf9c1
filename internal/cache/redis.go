// Package cache provides the Redis-backed webhook event deduplication store.
// Payment providers deliver webhooks at-least-once; the cache remembers event
// ids long enough to swallow redeliveries without reprocessing them.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventDeduper records processed webhook event ids. A nil *EventDeduper is
// valid and disables deduplication, so callers never need to branch on
// whether Redis is configured.
type EventDeduper struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Config holds the settings for connecting to Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Logger   *slog.Logger
}

// NewEventDeduper connects to Redis and verifies the connection with a ping.
// Returns an error if Redis is unreachable; callers that treat dedupe as
// optional may log the error and proceed with a nil deduper.
func NewEventDeduper(ctx context.Context, cfg Config) (*EventDeduper, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &EventDeduper{client: client, ttl: ttl, logger: logger}, nil
}

// MarkProcessed records the event id and reports whether this is the first
// time it has been seen. SET NX makes the check-and-record atomic, so two
// concurrent deliveries of the same event cannot both claim first-sight.
//
// Fails open: if Redis errors, the event is treated as unseen. Processing a
// webhook twice is recoverable; dropping one is not.
func (d *EventDeduper) MarkProcessed(ctx context.Context, eventID string) bool {
	if d == nil || eventID == "" {
		return true
	}

	ok, err := d.client.SetNX(ctx, "webhook:event:"+eventID, 1, d.ttl).Result()
	if err != nil {
		d.logger.WarnContext(ctx, "event dedupe check failed, proceeding as unseen",
			"event_id", eventID,
			"error", err,
		)
		return true
	}
	return ok
}

// Forget releases a claim taken by MarkProcessed. Called when processing
// fails after the claim, so the provider's retry is not swallowed as a
// duplicate. Best effort.
func (d *EventDeduper) Forget(ctx context.Context, eventID string) {
	if d == nil || eventID == "" {
		return
	}
	if err := d.client.Del(ctx, "webhook:event:"+eventID).Err(); err != nil {
		d.logger.WarnContext(ctx, "event dedupe release failed",
			"event_id", eventID,
			"error", err,
		)
	}
}

// Ping verifies connectivity for health checks.
func (d *EventDeduper) Ping(ctx context.Context) error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection.
func (d *EventDeduper) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}
