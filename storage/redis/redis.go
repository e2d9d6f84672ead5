// Package redis provides a Redis implementation of the billing.EventLog
// interface. Processed webhook event ids are journaled with SET NX so the
// first delivery wins and duplicates are recognized across process restarts
// and replicas.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventLog implements billing.EventLog using Redis.
type EventLog struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis event log configuration.
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "devhub:billing:events:").
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "devhub:billing:events:",
	}
}

// New creates a new Redis event log. The client can be *redis.Client,
// *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*EventLog, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "devhub:billing:events:"
	}
	return &EventLog{client: client, config: config}, nil
}

// MarkProcessed implements billing.EventLog. SET NX makes the journal write
// atomic: exactly one delivery of a given event id observes true.
func (l *EventLog) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, l.config.KeyPrefix+eventID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to journal event id: %w", err)
	}
	return ok, nil
}

// Forget implements billing.EventLog. Removing the id lets the provider's
// redelivery of a failed event through the journal.
func (l *EventLog) Forget(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	if err := l.client.Del(ctx, l.config.KeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to remove journaled event id: %w", err)
	}
	return nil
}
