package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/0xmhha/stealth-monitor-go/internal/testutil"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

func testEvent() *types.StealthEvent {
	return &types.StealthEvent{
		Kind:        types.EventKindAnnouncement,
		ChainID:     11155111,
		ChainName:   "sepolia",
		BlockNumber: 42,
		TxHash:      testutil.TestTxHash(42, 0),
		LogIndex:    0,
		Subject:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}
}

// ============================================================================
// Config Tests
// ============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "log", cfg.Backend)
	assert.Equal(t, "stealth:events", cfg.RedisChannel)
	assert.Equal(t, "stealth-events", cfg.KafkaTopic)
	assert.Equal(t, -1, cfg.KafkaRequiredAcks)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"log backend", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.Backend = "nats" }, true},
		{"redis without addr", func(c *Config) { c.Backend = "redis" }, true},
		{"redis without channel", func(c *Config) {
			c.Backend = "redis"
			c.RedisAddr = "localhost:6379"
			c.RedisChannel = ""
		}, true},
		{"redis complete", func(c *Config) {
			c.Backend = "redis"
			c.RedisAddr = "localhost:6379"
		}, false},
		{"kafka without brokers", func(c *Config) { c.Backend = "kafka" }, true},
		{"kafka without topic", func(c *Config) {
			c.Backend = "kafka"
			c.KafkaBrokers = []string{"localhost:9092"}
			c.KafkaTopic = ""
		}, true},
		{"kafka complete", func(c *Config) {
			c.Backend = "kafka"
			c.KafkaBrokers = []string{"localhost:9092"}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ============================================================================
// LogPublisher Tests
// ============================================================================

func TestLogPublisher_Publish(t *testing.T) {
	p := NewLogPublisher(zaptest.NewLogger(t))

	err := p.Publish(context.Background(), testEvent())
	assert.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestLogPublisher_NilLogger(t *testing.T) {
	p := NewLogPublisher(nil)

	assert.NoError(t, p.Publish(context.Background(), testEvent()))
}

// ============================================================================
// Factory Tests
// ============================================================================

func TestNew_Log(t *testing.T) {
	p, err := New(context.Background(), DefaultConfig(), zaptest.NewLogger(t))

	require.NoError(t, err)
	assert.IsType(t, &LogPublisher{}, p)
	assert.NoError(t, p.Close())
}

func TestNew_NilConfig(t *testing.T) {
	p, err := New(context.Background(), nil, zaptest.NewLogger(t))

	assert.Nil(t, p)
	assert.Error(t, err)
}

func TestNew_InvalidBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "carrier-pigeon"

	p, err := New(context.Background(), cfg, zaptest.NewLogger(t))

	assert.Nil(t, p)
	assert.Error(t, err)
}

func TestNew_RedisMissingAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "redis"

	p, err := New(context.Background(), cfg, zaptest.NewLogger(t))

	assert.Nil(t, p)
	assert.Error(t, err)
}

// ============================================================================
// RedisPublisher Tests
// ============================================================================

func TestNewRedisPublisher_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "redis"
	cfg.RedisAddr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p, err := NewRedisPublisher(ctx, cfg, zaptest.NewLogger(t))

	assert.Nil(t, p)
	assert.Error(t, err)
}

func TestNewRedisPublisher_MissingChannel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "redis"
	cfg.RedisAddr = "localhost:6379"
	cfg.RedisChannel = ""

	p, err := NewRedisPublisher(context.Background(), cfg, zaptest.NewLogger(t))

	assert.Nil(t, p)
	assert.Error(t, err)
}

// ============================================================================
// KafkaPublisher Tests
// ============================================================================

func TestNewKafkaPublisher_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "kafka"
	cfg.KafkaBrokers = []string{"localhost:9092"}
	cfg.KafkaClientID = "test-producer"

	p, err := NewKafkaPublisher(cfg, zaptest.NewLogger(t))

	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Close())
}

func TestNewKafkaPublisher_NoBrokers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "kafka"

	p, err := NewKafkaPublisher(cfg, zaptest.NewLogger(t))

	assert.Nil(t, p)
	assert.Error(t, err)
}

func TestNewKafkaPublisher_RequiredAcks(t *testing.T) {
	tests := []struct {
		name string
		acks int
		want kafka.RequiredAcks
	}{
		{"none", 0, kafka.RequireNone},
		{"one", 1, kafka.RequireOne},
		{"all", -1, kafka.RequireAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Backend = "kafka"
			cfg.KafkaBrokers = []string{"localhost:9092"}
			cfg.KafkaRequiredAcks = tt.acks

			p, err := NewKafkaPublisher(cfg, zaptest.NewLogger(t))
			require.NoError(t, err)
			defer p.Close()

			assert.Equal(t, tt.want, p.writer.RequiredAcks)
		})
	}
}
