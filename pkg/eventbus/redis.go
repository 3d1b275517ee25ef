package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// RedisPublisher broadcasts events over Redis Pub/Sub. Every event goes to
// a single channel as a JSON payload; subscribers filter by kind and chain
// from the payload itself.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger

	published atomic.Uint64
	errors    atomic.Uint64
}

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(ctx context.Context, cfg *Config, logger *zap.Logger) (*RedisPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.RedisChannel == "" {
		return nil, fmt.Errorf("redis channel is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("eventbus")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("connected to redis event bus",
		zap.String("addr", cfg.RedisAddr),
		zap.String("channel", cfg.RedisChannel))

	return &RedisPublisher{
		client:  client,
		channel: cfg.RedisChannel,
		logger:  logger,
	}, nil
}

// Publish sends the event to the configured channel
func (p *RedisPublisher) Publish(ctx context.Context, event *types.StealthEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.errors.Add(1)
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.errors.Add(1)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.published.Add(1)
	return nil
}

// Close closes the underlying client
func (p *RedisPublisher) Close() error {
	p.logger.Info("redis event bus closed",
		zap.Uint64("published", p.published.Load()),
		zap.Uint64("errors", p.errors.Load()))
	return p.client.Close()
}
