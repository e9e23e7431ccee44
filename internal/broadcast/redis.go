package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/quote-relay/internal/config"
	"github.com/rickgao/quote-relay/internal/model"
)

// SnapshotKeyPrefix prefixes the key holding a symbol's latest quote.
const SnapshotKeyPrefix = "quote:"

// RedisPublisher stores the latest quote per symbol and publishes each change
// on a per-symbol channel. Both commands go out in one pipeline.
type RedisPublisher struct {
	client        *redis.Client
	channelPrefix string
	snapshotTTL   time.Duration
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisPublisher creates a RedisPublisher. A zero snapshotTTL keeps
// snapshots forever.
func NewRedisPublisher(client *redis.Client, channelPrefix string, snapshotTTL time.Duration) *RedisPublisher {
	return &RedisPublisher{
		client:        client,
		channelPrefix: channelPrefix,
		snapshotTTL:   snapshotTTL,
	}
}

// Name implements Sink.
func (p *RedisPublisher) Name() string { return "redis" }

// Channel returns the pub/sub channel for symbol.
func (p *RedisPublisher) Channel(symbol string) string {
	return p.channelPrefix + symbol
}

// Publish writes the snapshot and publishes q.
func (p *RedisPublisher) Publish(ctx context.Context, q model.Quote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, SnapshotKeyPrefix+q.Symbol, payload, p.snapshotTTL)
	pipe.Publish(ctx, p.Channel(q.Symbol), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline %s: %w", q.Symbol, err)
	}
	return nil
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
