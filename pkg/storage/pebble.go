package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// PebbleStore implements Store using PebbleDB. Values are stored in an
// envelope carrying the expiry so ttls survive restarts: 8 bytes of
// big-endian unix-nano deadline (zero for none) followed by the value.
type PebbleStore struct {
	db     *pebble.DB
	logger *zap.Logger
	closed atomic.Bool

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// NewPebbleStore opens (or creates) a PebbleDB-backed store at cfg.Path
func NewPebbleStore(cfg *Config, logger *zap.Logger) (*PebbleStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := &pebble.Options{
		Cache:                    pebble.NewCache(int64(cfg.CacheSize) << 20), // Convert MB to bytes
		MaxOpenFiles:             cfg.MaxOpenFiles,
		MemTableSize:             uint64(cfg.WriteBuffer) << 20,
		MaxConcurrentCompactions: func() int { return cfg.CompactionConcurrency },
		ErrorIfExists:            false,
		ErrorIfNotExists:         false,
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &PebbleStore{
		db:        db,
		logger:    logger,
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go s.sweepLoop(cfg.SweepInterval)
	} else {
		close(s.sweepDone)
	}

	return s, nil
}

// Get retrieves a value by key. Expired values report ErrNotFound; the
// sweeper removes them later.
func (s *PebbleStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	raw, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	value, deadline, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if deadline != 0 && time.Now().UnixNano() > deadline {
		return nil, ErrNotFound
	}

	// Copy the value as it's only valid until closer.Close()
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Set stores a value with an optional ttl
func (s *PebbleStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}

	var deadline int64
	if ttl > 0 {
		deadline = time.Now().Add(ttl).UnixNano()
	}

	return s.db.Set([]byte(key), encodeEnvelope(value, deadline), pebble.Sync)
}

// Delete removes a key
func (s *PebbleStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Delete([]byte(key), pebble.Sync)
}

// Close stops the sweeper and closes the database
func (s *PebbleStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.sweepStop)
	<-s.sweepDone
	return s.db.Close()
}

// Sweep removes all expired keys. Keys are collected first, then deleted,
// so the iterator never races its own writes.
func (s *PebbleStore) Sweep(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	now := time.Now().UnixNano()
	var expired []string

	iter, err := s.db.NewIter(nil)
	if err != nil {
		return 0, err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		select {
		case <-ctx.Done():
			iter.Close()
			return 0, ctx.Err()
		default:
		}

		_, deadline, err := decodeEnvelope(iter.Value())
		if err != nil {
			continue // skip undecodable entries rather than abort the sweep
		}
		if deadline != 0 && now > deadline {
			expired = append(expired, string(iter.Key()))
		}
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return 0, err
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	for _, key := range expired {
		if err := s.db.Delete([]byte(key), pebble.NoSync); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// sweepLoop drives Sweep on a ticker until Close
func (s *PebbleStore) sweepLoop(interval time.Duration) {
	defer close(s.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.Sweep(context.Background())
			if err != nil {
				s.logger.Warn("expired key sweep failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Debug("swept expired keys", zap.Int("count", n))
			}
		case <-s.sweepStop:
			return
		}
	}
}

// encodeEnvelope prepends the expiry deadline to the value
func encodeEnvelope(value []byte, deadline int64) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(deadline))
	copy(buf[8:], value)
	return buf
}

// decodeEnvelope splits a stored envelope into value and deadline
func decodeEnvelope(raw []byte) (value []byte, deadline int64, err error) {
	if len(raw) < 8 {
		return nil, 0, fmt.Errorf("corrupt envelope: %d bytes", len(raw))
	}
	return raw[8:], int64(binary.BigEndian.Uint64(raw[:8])), nil
}
