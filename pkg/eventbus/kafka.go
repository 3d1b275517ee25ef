package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// KafkaPublisher streams events to a Kafka topic. Messages are keyed by
// event identity so replays of the same event land on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger

	published atomic.Uint64
	errors    atomic.Uint64
}

// NewKafkaPublisher creates a Kafka publisher. The connection is lazy;
// the first write dials the brokers.
func NewKafkaPublisher(cfg *Config, logger *zap.Logger) (*KafkaPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.KafkaTopic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("eventbus")

	writerConfig := kafka.WriterConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaLingerMs) * time.Millisecond,
		Async:        cfg.KafkaAsync,
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
			ClientID:  cfg.KafkaClientID,
		},
		// Async writes report failures here instead of from WriteMessages.
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Sugar().Warnf(msg, args...)
		}),
	}

	writer := kafka.NewWriter(writerConfig)
	switch cfg.KafkaRequiredAcks {
	case 0:
		writer.RequiredAcks = kafka.RequireNone
	case 1:
		writer.RequiredAcks = kafka.RequireOne
	default:
		writer.RequiredAcks = kafka.RequireAll
	}

	logger.Info("kafka event bus configured",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
		zap.Bool("async", cfg.KafkaAsync))

	return &KafkaPublisher{writer: writer, logger: logger}, nil
}

// Publish writes the event to the topic
func (p *KafkaPublisher) Publish(ctx context.Context, event *types.StealthEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.errors.Add(1)
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ID().String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_kind", Value: []byte(event.Kind)},
			{Key: "chain", Value: []byte(event.ChainName)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.errors.Add(1)
		return fmt.Errorf("failed to write to kafka: %w", err)
	}

	p.published.Add(1)
	return nil
}

// Close flushes pending batches and closes the writer
func (p *KafkaPublisher) Close() error {
	err := p.writer.Close()
	p.logger.Info("kafka event bus closed",
		zap.Uint64("published", p.published.Load()),
		zap.Uint64("errors", p.errors.Load()))
	return err
}
