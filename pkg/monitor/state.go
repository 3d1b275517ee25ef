package monitor

import (
	"sync"
	"time"
)

// ChainState tracks the scan progress of one chain. The chain's scheduler
// goroutine is the only writer; Status readers take the lock.
type ChainState struct {
	mu sync.RWMutex

	name    string
	chainID uint64

	lastProcessedBlock  uint64
	scanInterval        time.Duration
	consecutiveFailures int
	nextScanTime        time.Time
	disabled            bool
}

// ChainStatus is a point-in-time snapshot of a chain's state
type ChainStatus struct {
	Name                string    `json:"name"`
	ChainID             uint64    `json:"chainId"`
	LastProcessedBlock  uint64    `json:"lastProcessedBlock"`
	ScanInterval        string    `json:"scanInterval"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	NextScanTime        time.Time `json:"nextScanTime"`
	Disabled            bool      `json:"disabled"`
}

// NewChainState creates the state for one chain starting at the base
// scan interval
func NewChainState(name string, chainID uint64, baseInterval time.Duration) *ChainState {
	return &ChainState{
		name:         name,
		chainID:      chainID,
		scanInterval: baseInterval,
	}
}

// Name returns the chain name
func (s *ChainState) Name() string {
	return s.name
}

// LastProcessedBlock returns the last fully processed block
func (s *ChainState) LastProcessedBlock() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastProcessedBlock
}

// SetLastProcessedBlock advances the cursor
func (s *ChainState) SetLastProcessedBlock(block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastProcessedBlock = block
}

// ScanInterval returns the current delay between cycles
func (s *ChainState) ScanInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanInterval
}

// ConsecutiveFailures returns the current failure streak
func (s *ChainState) ConsecutiveFailures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveFailures
}

// RecordSuccess resets the failure streak and restores the base interval
func (s *ChainState) RecordSuccess(baseInterval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures = 0
	s.scanInterval = baseInterval
}

// RecordFailure increments the failure streak and doubles the interval,
// capped at maxInterval. It returns the new streak length.
func (s *ChainState) RecordFailure(baseInterval, maxInterval time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.consecutiveFailures++

	interval := baseInterval << uint(s.consecutiveFailures)
	if interval > maxInterval || interval <= 0 {
		interval = maxInterval
	}
	s.scanInterval = interval

	return s.consecutiveFailures
}

// ScheduleNext records when the next cycle is due
func (s *ChainState) ScheduleNext(now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextScanTime = now.Add(s.scanInterval)
	return s.nextScanTime
}

// Disable marks the chain permanently disabled
func (s *ChainState) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = true
}

// Disabled reports whether the chain is disabled
func (s *ChainState) Disabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disabled
}

// Snapshot returns the current status
func (s *ChainState) Snapshot() ChainStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ChainStatus{
		Name:                s.name,
		ChainID:             s.chainID,
		LastProcessedBlock:  s.lastProcessedBlock,
		ScanInterval:        s.scanInterval.String(),
		ConsecutiveFailures: s.consecutiveFailures,
		NextScanTime:        s.nextScanTime,
		Disabled:            s.disabled,
	}
}
