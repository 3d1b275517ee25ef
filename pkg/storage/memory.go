package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// memoryEntry is one stored value with its optional expiry
type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is an in-memory Store for tests and development.
// Expired entries are hidden on read and removed by a background sweeper.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	closed  atomic.Bool

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// NewMemoryStore creates an in-memory store sweeping expired keys at the
// given interval. A non-positive interval disables the sweeper.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries:   make(map[string]memoryEntry),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	} else {
		close(s.sweepDone)
	}

	return s
}

// Get retrieves a value by key
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set stores a value with an optional ttl
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}

	entry := memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Delete removes a key
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Close stops the sweeper and rejects further operations
func (s *MemoryStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.sweepStop)
	<-s.sweepDone
	return nil
}

// Len reports the number of stored entries, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// sweepLoop periodically removes expired entries
func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(s.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.sweepStop:
			return
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
