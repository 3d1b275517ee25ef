// Package eventbus publishes decoded stealth events to downstream
// consumers. Publishing is best-effort fan-out: a failed publish is the
// caller's to log, and never blocks monitoring or notification delivery.
// Three backends are available: log (development), Redis Pub/Sub and
// Kafka.
package eventbus

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/internal/constants"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// Publisher delivers stealth events to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, event *types.StealthEvent) error
	Close() error
}

// Config holds publisher configuration
type Config struct {
	// Backend selects the implementation: "log", "redis" or "kafka"
	Backend string

	// RedisAddr is the Redis server address (redis backend)
	RedisAddr string
	// RedisPassword is the optional Redis password
	RedisPassword string
	// RedisDB is the Redis database number
	RedisDB int
	// RedisChannel is the Pub/Sub channel events are published to
	RedisChannel string

	// KafkaBrokers is the list of Kafka broker addresses (kafka backend)
	KafkaBrokers []string
	// KafkaTopic is the Kafka topic for events
	KafkaTopic string
	// KafkaClientID identifies this producer to the brokers
	KafkaClientID string
	// KafkaBatchSize is the maximum number of messages per batch
	KafkaBatchSize int
	// KafkaLingerMs is the time to wait for a batch to fill
	KafkaLingerMs int
	// KafkaRequiredAcks is the broker acknowledgment level: 0, 1 or -1 (all)
	KafkaRequiredAcks int
	// KafkaAsync enables fire-and-forget publishing
	KafkaAsync bool
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend:           "log",
		RedisChannel:      constants.DefaultEventChannel,
		KafkaTopic:        constants.DefaultEventTopic,
		KafkaBatchSize:    constants.DefaultKafkaBatchSize,
		KafkaLingerMs:     constants.DefaultKafkaLingerMs,
		KafkaRequiredAcks: -1,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Backend {
	case "log":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis backend")
		}
		if c.RedisChannel == "" {
			return fmt.Errorf("redis channel is required for the redis backend")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka brokers are required for the kafka backend")
		}
		if c.KafkaTopic == "" {
			return fmt.Errorf("kafka topic is required for the kafka backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// New creates the Publisher selected by cfg.Backend
func New(ctx context.Context, cfg *Config, logger *zap.Logger) (Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	switch cfg.Backend {
	case "log":
		return NewLogPublisher(logger), nil
	case "redis":
		return NewRedisPublisher(ctx, cfg, logger)
	case "kafka":
		return NewKafkaPublisher(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
