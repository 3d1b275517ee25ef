package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/pkg/events"
	"github.com/0xmhha/stealth-monitor-go/pkg/notify"
	"github.com/0xmhha/stealth-monitor-go/pkg/registry"
	"github.com/0xmhha/stealth-monitor-go/pkg/storage"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// Scan cycle outcomes for metrics and backoff decisions.
const (
	cycleOutcomeOK       = "ok"
	cycleOutcomeIdle     = "idle"
	cycleOutcomeError    = "error"
	cycleOutcomeCanceled = "canceled"
)

// LogSource supplies the chain head and log ranges. *fetch.Fetcher
// satisfies it.
type LogSource interface {
	HeadHeight(ctx context.Context) (uint64, error)
	FetchLogs(ctx context.Context, addresses []common.Address, topics [][]common.Hash, fromBlock, toBlock uint64) ([]coretypes.Log, error)
}

// Notifier decides and delivers per-user notifications.
// *notify.Dispatcher satisfies it.
type Notifier interface {
	MaybeNotify(ctx context.Context, event *types.StealthEvent, user *types.MonitoredUser) (notify.Outcome, error)
}

// schedulerDeps bundles the shared components a chain scheduler works with.
type schedulerDeps struct {
	source    LogSource
	processor *events.Processor
	users     *registry.Registry
	notifier  Notifier
	publisher Publisher
	store     storage.Store
	metrics   *Metrics
	logger    *zap.Logger
}

// scheduler drives the scan loop of a single chain: head polling, windowed
// log fetching, event processing, dispatch and cursor persistence.
type scheduler struct {
	chain ChainConfig
	scan  ScanConfig
	state *ChainState
	deps  schedulerDeps

	addresses    []common.Address
	topics       [][]common.Hash
	cursorLoaded bool
}

func newScheduler(chain ChainConfig, scan ScanConfig, state *ChainState, deps schedulerDeps) *scheduler {
	return &scheduler{
		chain:     chain,
		scan:      scan,
		state:     state,
		deps:      deps,
		addresses: []common.Address{chain.AnnouncerAddress, chain.RegistryAddress},
		// Both tracked signatures, OR-ed on topic0.
		topics: [][]common.Hash{{events.AnnouncementTopic, events.RegistrationTopic}},
	}
}

// run executes scan cycles until the context is canceled or the chain is
// disabled. It is the only writer of the chain's state.
func (s *scheduler) run(ctx context.Context) {
	logger := s.deps.logger

	logger.Info("Chain scan loop started",
		zap.Uint64("chain_id", s.chain.ChainID),
		zap.Duration("base_interval", s.scan.BaseInterval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Chain scan loop stopped")
			return
		default:
		}

		start := time.Now()
		outcome := s.runCycle(ctx)
		s.deps.metrics.ObserveCycle(s.chain.Name, time.Since(start).Seconds())

		if outcome == cycleOutcomeCanceled {
			logger.Info("Chain scan loop stopped")
			return
		}
		s.deps.metrics.RecordScanCycle(s.chain.Name, outcome)

		switch outcome {
		case cycleOutcomeOK, cycleOutcomeIdle:
			s.state.RecordSuccess(s.scan.BaseInterval)
		case cycleOutcomeError:
			failures := s.state.RecordFailure(s.scan.BaseInterval, s.scan.MaxInterval)
			if failures >= s.scan.MaxFailureCount {
				s.state.Disable()
				s.deps.metrics.AddDisabledChain()
				logger.Error("Chain disabled after repeated failures",
					zap.Int("failures", failures))
				return
			}
			logger.Warn("Scan cycle failed",
				zap.Int("consecutive_failures", failures),
				zap.Duration("next_interval", s.state.ScanInterval()))
		}

		next := s.state.ScheduleNext(time.Now())
		select {
		case <-ctx.Done():
			logger.Info("Chain scan loop stopped")
			return
		case <-time.After(time.Until(next)):
		}
	}
}

// runCycle performs one scan cycle and reports its outcome.
func (s *scheduler) runCycle(ctx context.Context) string {
	if !s.cursorLoaded {
		if err := s.restoreCursor(ctx); err != nil {
			if ctx.Err() != nil {
				return cycleOutcomeCanceled
			}
			s.deps.logger.Warn("Failed to restore scan cursor", zap.Error(err))
			return cycleOutcomeError
		}
	}

	head, err := s.headHeight(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return cycleOutcomeCanceled
		}
		s.deps.logger.Warn("Failed to get head height", zap.Error(err))
		return cycleOutcomeError
	}

	fromBlock := s.state.LastProcessedBlock() + 1
	if fromBlock > head {
		s.deps.logger.Debug("Caught up with chain", zap.Uint64("head", head))
		return cycleOutcomeIdle
	}

	for from := fromBlock; from <= head; {
		select {
		case <-ctx.Done():
			return cycleOutcomeCanceled
		default:
		}

		to := from + s.scan.MaxBlockRange - 1
		if to > head {
			to = head
		}

		if err := s.processWindow(ctx, from, to); err != nil {
			if ctx.Err() != nil {
				return cycleOutcomeCanceled
			}
			s.deps.logger.Warn("Failed to process block window",
				zap.Uint64("from_block", from),
				zap.Uint64("to_block", to),
				zap.Error(err))
			return cycleOutcomeError
		}

		from = to + 1
	}

	return cycleOutcomeOK
}

// processWindow fetches one block range, runs every log through the
// processor, publishes and dispatches the surviving events, then advances
// the cursor. Progress made before a later window fails stays committed.
func (s *scheduler) processWindow(ctx context.Context, from, to uint64) error {
	fetchCtx, cancel := s.callContext(ctx)
	logs, err := s.deps.source.FetchLogs(fetchCtx, s.addresses, s.topics, from, to)
	cancel()
	s.deps.metrics.RecordLogFetch(s.chain.Name, err)
	if err != nil {
		return err
	}

	decoded := 0
	for i := range logs {
		event := s.deps.processor.Process(&logs[i], s.chain.ChainID, s.chain.Name)
		if event == nil {
			continue
		}
		decoded++
		s.deps.metrics.RecordEvent(s.chain.Name, string(event.Kind))

		if err := s.deps.publisher.Publish(ctx, event); err != nil {
			s.deps.metrics.RecordPublishError(s.chain.Name)
			s.deps.logger.Warn("Failed to publish event",
				zap.String("event_id", event.ID().String()),
				zap.Error(err))
		}

		s.dispatch(ctx, event)
	}
	s.deps.metrics.RecordEventsSkipped(s.chain.Name, len(logs)-decoded)

	if err := s.persistCursor(ctx, to); err != nil {
		s.deps.logger.Warn("Failed to persist scan cursor",
			zap.Uint64("block", to),
			zap.Error(err))
	}
	s.state.SetLastProcessedBlock(to)
	s.deps.metrics.SetLastProcessed(s.chain.Name, to)

	if len(logs) > 0 {
		s.deps.logger.Debug("Processed block window",
			zap.Uint64("from_block", from),
			zap.Uint64("to_block", to),
			zap.Int("logs", len(logs)),
			zap.Int("events", decoded))
	}
	return nil
}

// dispatch evaluates the event against every user in the current snapshot.
// Send failures are logged by the dispatcher and surface here only as an
// outcome label.
func (s *scheduler) dispatch(ctx context.Context, event *types.StealthEvent) {
	for _, user := range s.deps.users.All() {
		outcome, _ := s.deps.notifier.MaybeNotify(ctx, event, user)
		s.deps.metrics.RecordNotification(string(outcome))
	}
}

// restoreCursor loads the persisted cursor, falling back to a start
// position behind the current head when it is missing, unreadable or
// corrupt.
func (s *scheduler) restoreCursor(ctx context.Context) error {
	key := storage.ChainCursorKey(s.chain.Name)

	readCtx, cancel := s.callContext(ctx)
	raw, err := s.deps.store.Get(readCtx, key)
	cancel()
	if err == nil {
		block, decodeErr := storage.DecodeBlockNumber(raw)
		if decodeErr == nil {
			s.state.SetLastProcessedBlock(block)
			s.cursorLoaded = true
			s.deps.logger.Info("Restored scan cursor",
				zap.Uint64("last_processed_block", block))
			return nil
		}
		s.deps.logger.Warn("Ignoring corrupt scan cursor",
			zap.ByteString("value", raw),
			zap.Error(decodeErr))
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.deps.logger.Warn("Failed to read scan cursor, starting behind head",
			zap.Error(err))
	}

	head, err := s.headHeight(ctx)
	if err != nil {
		return fmt.Errorf("failed to get head height: %w", err)
	}

	var start uint64
	if head > s.scan.StartOffset {
		start = head - s.scan.StartOffset
	}
	s.state.SetLastProcessedBlock(start)
	s.cursorLoaded = true
	s.deps.logger.Info("Starting scan behind head",
		zap.Uint64("head", head),
		zap.Uint64("last_processed_block", start))
	return nil
}

func (s *scheduler) persistCursor(ctx context.Context, block uint64) error {
	writeCtx, cancel := s.callContext(ctx)
	defer cancel()
	return s.deps.store.Set(writeCtx, storage.ChainCursorKey(s.chain.Name), storage.EncodeBlockNumber(block), 0)
}

func (s *scheduler) headHeight(ctx context.Context) (uint64, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	return s.deps.source.HeadHeight(callCtx)
}

// callContext bounds one external call without detaching it from the loop
// context.
func (s *scheduler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.chain.RPCTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.chain.RPCTimeout)
}
