// Package monitor runs the stealth event monitoring service: one scan
// loop per configured chain, a shared dedup set and processor, periodic
// user registry refreshes and per-user notification dispatch.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/internal/constants"
	"github.com/0xmhha/stealth-monitor-go/pkg/client"
	"github.com/0xmhha/stealth-monitor-go/pkg/events"
	"github.com/0xmhha/stealth-monitor-go/pkg/fetch"
	"github.com/0xmhha/stealth-monitor-go/pkg/registry"
	"github.com/0xmhha/stealth-monitor-go/pkg/storage"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// ErrAlreadyRunning is returned by Start when the service is running.
var ErrAlreadyRunning = errors.New("monitor service is already running")

// Publisher fans processed events out to external consumers.
// eventbus.Publisher satisfies it; the service does not own the
// publisher's lifecycle.
type Publisher interface {
	Publish(ctx context.Context, event *types.StealthEvent) error
}

// ChainConfig describes one chain to monitor.
type ChainConfig struct {
	// Name is the human-readable chain name, used in logs, metrics and
	// storage keys.
	Name string

	// ChainID is the EIP-155 chain id, part of every event identity.
	ChainID uint64

	// RPCEndpoint is the JSON-RPC endpoint to scan.
	RPCEndpoint string

	// RPCTimeout bounds individual RPC and storage calls.
	RPCTimeout time.Duration

	// AnnouncerAddress is the ERC-5564 announcer contract. The zero
	// address selects the canonical singleton.
	AnnouncerAddress common.Address

	// RegistryAddress is the ERC-6538 registry contract. The zero
	// address selects the canonical singleton.
	RegistryAddress common.Address
}

// ScanConfig tunes the per-chain scan loops. All chains share one scan
// configuration.
type ScanConfig struct {
	// BaseInterval is the delay between scan cycles on a healthy chain.
	BaseInterval time.Duration

	// MaxInterval caps the backoff delay after consecutive failures.
	MaxInterval time.Duration

	// MaxBlockRange is the widest block window per log fetch.
	MaxBlockRange uint64

	// MaxFailureCount disables a chain once its consecutive failure
	// streak reaches it.
	MaxFailureCount int

	// StartOffset is how many blocks behind the head a chain starts
	// when no cursor is persisted.
	StartOffset uint64

	// FetchAttempts is the total number of tries per log fetch.
	FetchAttempts int

	// FetchRetryDelay is the base delay between fetch attempts.
	FetchRetryDelay time.Duration
}

// Config holds monitor service configuration.
type Config struct {
	Chains []ChainConfig
	Scan   ScanConfig

	// DedupMaxSize is the dedup set ceiling checked by the cleanup loop.
	DedupMaxSize int

	// DedupCleanupInterval is how often the dedup set is compacted.
	DedupCleanupInterval time.Duration

	// RegistryRefreshInterval is how often the user snapshot is rebuilt.
	RegistryRefreshInterval time.Duration
}

// applyDefaults fills unset fields with defaults.
func (c *Config) applyDefaults() {
	for i := range c.Chains {
		chain := &c.Chains[i]
		if chain.RPCTimeout <= 0 {
			chain.RPCTimeout = constants.DefaultHTTPTimeout
		}
		if chain.AnnouncerAddress == (common.Address{}) {
			chain.AnnouncerAddress = common.HexToAddress(constants.DefaultAnnouncerAddress)
		}
		if chain.RegistryAddress == (common.Address{}) {
			chain.RegistryAddress = common.HexToAddress(constants.DefaultRegistryAddress)
		}
	}
	if c.Scan.BaseInterval <= 0 {
		c.Scan.BaseInterval = constants.DefaultBaseScanInterval
	}
	if c.Scan.MaxInterval <= 0 {
		c.Scan.MaxInterval = constants.DefaultMaxScanInterval
	}
	if c.Scan.MaxBlockRange == 0 {
		c.Scan.MaxBlockRange = constants.DefaultMaxBlockRange
	}
	if c.Scan.MaxFailureCount <= 0 {
		c.Scan.MaxFailureCount = constants.DefaultMaxFailureCount
	}
	if c.Scan.StartOffset == 0 {
		c.Scan.StartOffset = constants.DefaultStartOffset
	}
	if c.Scan.FetchAttempts <= 0 {
		c.Scan.FetchAttempts = constants.DefaultFetchAttempts
	}
	if c.Scan.FetchRetryDelay <= 0 {
		c.Scan.FetchRetryDelay = constants.DefaultFetchRetryDelay
	}
	if c.DedupMaxSize <= 0 {
		c.DedupMaxSize = constants.DefaultDedupMaxSize
	}
	if c.DedupCleanupInterval <= 0 {
		c.DedupCleanupInterval = constants.DefaultDedupCleanupInterval
	}
	if c.RegistryRefreshInterval <= 0 {
		c.RegistryRefreshInterval = constants.DefaultRegistryRefreshInterval
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain is required")
	}
	names := make(map[string]struct{}, len(c.Chains))
	for i, chain := range c.Chains {
		if chain.Name == "" {
			return fmt.Errorf("chain %d: name is required", i)
		}
		if _, dup := names[chain.Name]; dup {
			return fmt.Errorf("chain %d: duplicate name %q", i, chain.Name)
		}
		names[chain.Name] = struct{}{}
		if chain.ChainID == 0 {
			return fmt.Errorf("chain %s: chain id is required", chain.Name)
		}
		if chain.RPCEndpoint == "" {
			return fmt.Errorf("chain %s: rpc endpoint is required", chain.Name)
		}
	}
	if c.Scan.MaxInterval < c.Scan.BaseInterval {
		return fmt.Errorf("max scan interval must not be below base interval")
	}
	return nil
}

// chainRuntime pairs a chain's loop state with the client the service
// opened for it.
type chainRuntime struct {
	state  *ChainState
	client *client.Client
}

// ServiceStatus is a point-in-time snapshot of the running service.
type ServiceStatus struct {
	Running   bool          `json:"running"`
	Chains    []ChainStatus `json:"chains"`
	UserCount int           `json:"userCount"`
	DedupSize int           `json:"dedupSize"`
}

// Service owns the chain scan loops and their supporting background
// work. Construct with NewService, drive with Start and Stop.
type Service struct {
	config    *Config
	store     storage.Store
	users     *registry.Registry
	notifier  Notifier
	publisher Publisher
	metrics   *Metrics
	logger    *zap.Logger

	dedup     *events.DedupSet
	processor *events.Processor

	mu        sync.Mutex
	isRunning bool
	chains    []*chainRuntime
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewService creates a monitor service. The metrics handle may be nil
// when no instrumentation is wanted.
func NewService(config *Config, store storage.Store, users *registry.Registry, notifier Notifier, publisher Publisher, metrics *Metrics, logger *zap.Logger) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid monitor config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user registry is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dedup := events.NewDedupSet(config.DedupMaxSize)
	return &Service{
		config:    config,
		store:     store,
		users:     users,
		notifier:  notifier,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		dedup:     dedup,
		processor: events.NewProcessor(dedup, logger),
	}, nil
}

// Start brings the service up: an initial user snapshot, one scan loop
// per chain, the registry refresh loop and the dedup cleanup loop. The
// given context is the root of all loop contexts; canceling it stops the
// service.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)

	// The first snapshot may legitimately fail (user store not up yet);
	// the refresh loop repairs it.
	refreshCtx, refreshCancel := context.WithTimeout(runCtx, constants.DefaultHTTPTimeout)
	if err := s.users.Refresh(refreshCtx); err != nil {
		s.logger.Warn("Initial user registry refresh failed, starting with empty snapshot", zap.Error(err))
		s.metrics.RecordRefreshFailure()
	}
	refreshCancel()

	type chainStart struct {
		runtime *chainRuntime
		sched   *scheduler
	}
	var starts []chainStart
	for _, chainCfg := range s.config.Chains {
		chainLogger := s.logger.With(zap.String("chain", chainCfg.Name))

		rpcClient, err := client.NewLazyClient(&client.Config{
			Endpoint: chainCfg.RPCEndpoint,
			Timeout:  chainCfg.RPCTimeout,
			Logger:   chainLogger,
		})
		if err != nil {
			chainLogger.Error("Skipping chain, client setup failed", zap.Error(err))
			continue
		}

		fetcher, err := fetch.NewFetcher(rpcClient, &fetch.Config{
			Chain:       chainCfg.Name,
			MaxAttempts: s.config.Scan.FetchAttempts,
			RetryDelay:  s.config.Scan.FetchRetryDelay,
		}, chainLogger)
		if err != nil {
			rpcClient.Close()
			chainLogger.Error("Skipping chain, fetcher setup failed", zap.Error(err))
			continue
		}

		state := NewChainState(chainCfg.Name, chainCfg.ChainID, s.config.Scan.BaseInterval)
		sched := newScheduler(chainCfg, s.config.Scan, state, schedulerDeps{
			source:    fetcher,
			processor: s.processor,
			users:     s.users,
			notifier:  s.notifier,
			publisher: s.publisher,
			store:     s.store,
			metrics:   s.metrics,
			logger:    chainLogger,
		})
		starts = append(starts, chainStart{
			runtime: &chainRuntime{state: state, client: rpcClient},
			sched:   sched,
		})
	}
	if len(starts) == 0 {
		cancel()
		return fmt.Errorf("no chains could be started")
	}

	s.chains = s.chains[:0]
	for _, start := range starts {
		s.chains = append(s.chains, start.runtime)
		s.wg.Add(1)
		go func(sched *scheduler) {
			defer s.wg.Done()
			sched.run(runCtx)
		}(start.sched)
	}

	s.wg.Add(2)
	go s.refreshLoop(runCtx)
	go s.cleanupLoop(runCtx)

	s.cancel = cancel
	s.isRunning = true
	s.logger.Info("Monitor service started",
		zap.Int("chains", len(s.chains)),
		zap.Int("users", s.users.Count()))
	return nil
}

// Stop cancels all loops and waits for them to exit, bounded by the
// given context. Chain clients are closed once the wait finishes either
// way.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.logger.Info("Stopping monitor service")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		s.logger.Info("Monitor service stopped")
	case <-ctx.Done():
		s.logger.Warn("Monitor service stop timed out")
		err = ctx.Err()
	}

	for _, chain := range s.chains {
		chain.client.Close()
	}
	s.isRunning = false
	return err
}

// Status reports the service's current state. It is safe to call whether
// or not the service is running.
func (s *Service) Status() ServiceStatus {
	s.mu.Lock()
	running := s.isRunning
	chains := make([]*chainRuntime, len(s.chains))
	copy(chains, s.chains)
	s.mu.Unlock()

	status := ServiceStatus{
		Running:   running,
		Chains:    make([]ChainStatus, 0, len(chains)),
		UserCount: s.users.Count(),
		DedupSize: s.dedup.Size(),
	}
	for _, chain := range chains {
		status.Chains = append(status.Chains, chain.state.Snapshot())
	}
	return status
}

// refreshLoop rebuilds the user snapshot on a fixed interval. A failed
// refresh keeps the previous snapshot.
func (s *Service) refreshLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.RegistryRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, constants.DefaultHTTPTimeout)
			if err := s.users.Refresh(refreshCtx); err != nil {
				s.logger.Warn("Failed to refresh user registry", zap.Error(err))
				s.metrics.RecordRefreshFailure()
			}
			cancel()
		}
	}
}

// cleanupLoop periodically compacts the dedup set and keeps its size
// gauge current.
func (s *Service) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.DedupCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := s.dedup.Cleanup()
			size := s.dedup.Size()
			s.metrics.SetDedupSize(size)
			if evicted > 0 {
				s.logger.Info("Dedup set compacted",
					zap.Int("evicted", evicted),
					zap.Int("size", size))
			}
		}
	}
}
