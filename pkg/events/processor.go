package events

import (
	"time"

	coretypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// Processor converts raw logs into typed stealth events. Each log's
// identity is recorded in the dedup set before decoding, so a log is
// attempted exactly once no matter how often overlapping scans re-fetch it.
type Processor struct {
	dedup  *DedupSet
	logger *zap.Logger
}

// NewProcessor creates a processor backed by the shared dedup set.
func NewProcessor(dedup *DedupSet, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		dedup:  dedup,
		logger: logger,
	}
}

// Process turns a raw log into a stealth event. It returns nil when the
// log is skipped: either its identity was already processed or it does not
// decode as a known stealth event. Decode failures are logged and
// swallowed; logs emitted by external contracts cannot be assumed
// well-formed.
func (p *Processor) Process(log *coretypes.Log, chainID uint64, chainName string) *types.StealthEvent {
	id := types.EventID{ChainID: chainID, TxHash: log.TxHash, LogIndex: log.Index}
	if !p.dedup.Add(id) {
		p.logger.Debug("Skipping already processed event",
			zap.String("chain", chainName),
			zap.String("event_id", id.String()),
		)
		return nil
	}

	event, err := decodeLog(log)
	if err != nil {
		p.logger.Warn("Skipping undecodable log",
			zap.String("chain", chainName),
			zap.String("event_id", id.String()),
			zap.Uint64("block", log.BlockNumber),
			zap.Error(err),
		)
		return nil
	}

	event.ChainID = chainID
	event.ChainName = chainName
	event.BlockNumber = log.BlockNumber
	event.TxHash = log.TxHash
	event.LogIndex = log.Index
	event.ObservedAt = time.Now().UTC()
	return event
}
