package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// New creates the Store selected by cfg.Backend
func New(ctx context.Context, cfg *Config, logger *zap.Logger) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(cfg.SweepInterval), nil
	case "pebble":
		return NewPebbleStore(cfg, logger)
	case "redis":
		return NewRedisStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
