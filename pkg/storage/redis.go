package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore implements Store on a Redis server. Expiry is native Redis TTL.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
	closed atomic.Bool
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg *Config, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("connected to redis state store",
		zap.String("addr", cfg.RedisAddr),
		zap.Int("db", cfg.RedisDB))

	return &RedisStore{client: client, logger: logger}, nil
}

// Get retrieves a value by key
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Set stores a value with an optional ttl
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.client.Del(ctx, key).Err()
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.client.Close()
}
