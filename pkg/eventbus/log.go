package eventbus

import (
	"context"

	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// LogPublisher writes events to the structured log. It is the default
// backend and the one used in development.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a log-only publisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("eventbus")}
}

// Publish logs the event
func (p *LogPublisher) Publish(ctx context.Context, event *types.StealthEvent) error {
	p.logger.Info("stealth event",
		zap.String("event_id", event.ID().String()),
		zap.String("kind", string(event.Kind)),
		zap.String("chain", event.ChainName),
		zap.Uint64("block", event.BlockNumber),
		zap.String("subject", event.Subject.Hex()),
	)
	return nil
}

// Close is a no-op
func (p *LogPublisher) Close() error {
	return nil
}
