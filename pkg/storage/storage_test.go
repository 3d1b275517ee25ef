package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// setupPebbleStore creates a temporary PebbleDB store for testing
func setupPebbleStore(t *testing.T) (*PebbleStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "pebble-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Backend = "pebble"
	cfg.Path = tmpDir
	cfg.SweepInterval = 0 // sweeps are driven by the tests

	store, err := NewPebbleStore(cfg, nil)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func TestKeys(t *testing.T) {
	if got := ChainCursorKey("base"); got != "chain:base:last_block" {
		t.Errorf("ChainCursorKey = %q", got)
	}

	at := time.Date(2025, 6, 1, 14, 37, 12, 0, time.UTC)
	key := NotifyBucketKey("user-1", at, time.Hour)
	want := "user:user-1:notify:" + "1748786400" // 2025-06-01T14:00:00Z
	if key != want {
		t.Errorf("NotifyBucketKey = %q, want %q", key, want)
	}

	// Same hour maps to the same bucket, next hour to a different one
	if NotifyBucketKey("user-1", at.Add(20*time.Minute), time.Hour) != key {
		t.Error("keys within one hour should match")
	}
	if NotifyBucketKey("user-1", at.Add(time.Hour), time.Hour) == key {
		t.Error("keys across hours should differ")
	}
}

func TestCodecs(t *testing.T) {
	n, err := DecodeBlockNumber(EncodeBlockNumber(18923401))
	if err != nil {
		t.Fatalf("DecodeBlockNumber() error = %v", err)
	}
	if n != 18923401 {
		t.Errorf("block number round trip = %d", n)
	}
	if _, err := DecodeBlockNumber([]byte("garbage")); err == nil {
		t.Error("Expected error for garbage block number")
	}

	c, err := DecodeCounter(EncodeCounter(7))
	if err != nil {
		t.Fatalf("DecodeCounter() error = %v", err)
	}
	if c != 7 {
		t.Errorf("counter round trip = %d", c)
	}
	if _, err := DecodeCounter(nil); err == nil {
		t.Error("Expected error for empty counter")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"memory ok", func(c *Config) {}, false},
		{"pebble without path", func(c *Config) { c.Backend = "pebble" }, true},
		{"pebble with path", func(c *Config) { c.Backend = "pebble"; c.Path = "/tmp/x" }, false},
		{"redis without addr", func(c *Config) { c.Backend = "redis" }, true},
		{"unknown backend", func(c *Config) { c.Backend = "etcd" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// storeBehavior exercises the Store contract shared by all backends
func storeBehavior(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	// Missing key
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	// Round trip
	if err := store.Set(ctx, "chain:base:last_block", EncodeBlockNumber(1000), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value, err := store.Get(ctx, "chain:base:last_block")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	n, err := DecodeBlockNumber(value)
	if err != nil || n != 1000 {
		t.Errorf("round trip = (%d, %v), want (1000, nil)", n, err)
	}

	// Overwrite
	if err := store.Set(ctx, "chain:base:last_block", EncodeBlockNumber(1050), 0); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	value, _ = store.Get(ctx, "chain:base:last_block")
	if n, _ := DecodeBlockNumber(value); n != 1050 {
		t.Errorf("after overwrite = %d, want 1050", n)
	}

	// Delete
	if err := store.Delete(ctx, "chain:base:last_block"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "chain:base:last_block"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}

	// TTL expiry
	if err := store.Set(ctx, "user:u1:notify:123", EncodeCounter(3), 30*time.Millisecond); err != nil {
		t.Fatalf("Set() with ttl error = %v", err)
	}
	if _, err := store.Get(ctx, "user:u1:notify:123"); err != nil {
		t.Errorf("Get before expiry error = %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, err := store.Get(ctx, "user:u1:notify:123"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after expiry error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()

	storeBehavior(t, store)
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	store.Set(ctx, "a", []byte("1"), 10*time.Millisecond)
	store.Set(ctx, "b", []byte("2"), 0)
	time.Sleep(20 * time.Millisecond)

	store.sweep(time.Now())
	if store.Len() != 1 {
		t.Errorf("Len after sweep = %d, want 1", store.Len())
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Close is idempotent
	if err := store.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	ctx := context.Background()
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get on closed store error = %v, want ErrClosed", err)
	}
	if err := store.Set(ctx, "k", nil, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Set on closed store error = %v, want ErrClosed", err)
	}
}

func TestPebbleStore(t *testing.T) {
	store, cleanup := setupPebbleStore(t)
	defer cleanup()

	storeBehavior(t, store)
}

func TestPebbleStoreSweep(t *testing.T) {
	store, cleanup := setupPebbleStore(t)
	defer cleanup()
	ctx := context.Background()

	store.Set(ctx, "expired-1", []byte("x"), 10*time.Millisecond)
	store.Set(ctx, "expired-2", []byte("y"), 10*time.Millisecond)
	store.Set(ctx, "keep", []byte("z"), 0)
	time.Sleep(20 * time.Millisecond)

	n, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Sweep() removed %d keys, want 2", n)
	}
	if _, err := store.Get(ctx, "keep"); err != nil {
		t.Errorf("Get(keep) after sweep error = %v", err)
	}
}

func TestPebbleStorePersistence(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Backend = "pebble"
	cfg.Path = tmpDir
	cfg.SweepInterval = 0
	ctx := context.Background()

	store, err := NewPebbleStore(cfg, nil)
	if err != nil {
		t.Fatalf("NewPebbleStore() error = %v", err)
	}
	if err := store.Set(ctx, "chain:base:last_block", EncodeBlockNumber(777), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopen and read back
	store, err = NewPebbleStore(cfg, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()

	value, err := store.Get(ctx, "chain:base:last_block")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if n, _ := DecodeBlockNumber(value); n != 777 {
		t.Errorf("persisted cursor = %d, want 777", n)
	}
}

func TestFactory(t *testing.T) {
	cfg := DefaultConfig()
	store, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("New(memory) = %T, want *MemoryStore", store)
	}

	bad := DefaultConfig()
	bad.Backend = "bolt"
	if _, err := New(context.Background(), bad, nil); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

// TestRedisStore exercises the redis backend against a live server.
// Set MONITOR_TEST_REDIS_ADDR to run it.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("MONITOR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping redis test: MONITOR_TEST_REDIS_ADDR not set")
	}

	cfg := DefaultConfig()
	cfg.Backend = "redis"
	cfg.RedisAddr = addr

	store, err := NewRedisStore(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer store.Close()

	storeBehavior(t, store)
}
