package events

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xmhha/stealth-monitor-go/internal/testutil"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

func testEventID(n uint64) types.EventID {
	return types.EventID{
		ChainID:  1,
		TxHash:   testutil.TestTxHash(n, 0),
		LogIndex: 0,
	}
}

func TestDedupSetAdd(t *testing.T) {
	set := NewDedupSet(10)
	id := testEventID(1)

	if !set.Add(id) {
		t.Error("first Add() = false, want true")
	}
	if set.Add(id) {
		t.Error("second Add() = true, want false")
	}
	if !set.Contains(id) {
		t.Error("Contains() = false after Add")
	}
	if got := set.Size(); got != 1 {
		t.Errorf("Size() = %d, want 1", got)
	}
}

func TestDedupSetIdentityIncludesChain(t *testing.T) {
	set := NewDedupSet(10)
	hash := testutil.TestTxHash(100, 3)

	a := types.EventID{ChainID: 1, TxHash: hash, LogIndex: 3}
	b := types.EventID{ChainID: 8453, TxHash: hash, LogIndex: 3}

	if !set.Add(a) || !set.Add(b) {
		t.Fatal("events with the same log position on different chains must both be new")
	}
	if got := set.Size(); got != 2 {
		t.Errorf("Size() = %d, want 2", got)
	}
}

func TestDedupSetCleanupUnderCeiling(t *testing.T) {
	set := NewDedupSet(10)
	for i := uint64(0); i < 10; i++ {
		set.Add(testEventID(i))
	}

	if evicted := set.Cleanup(); evicted != 0 {
		t.Errorf("Cleanup() = %d, want 0", evicted)
	}
	if got := set.Size(); got != 10 {
		t.Errorf("Size() = %d, want 10", got)
	}
}

func TestDedupSetCleanupEvictsOldestHalf(t *testing.T) {
	set := NewDedupSet(10)
	for i := uint64(0); i < 15; i++ {
		set.Add(testEventID(i))
	}

	evicted := set.Cleanup()
	if evicted != 7 {
		t.Errorf("Cleanup() = %d, want 7", evicted)
	}
	if got := set.Size(); got != 8 {
		t.Errorf("Size() = %d, want 8", got)
	}

	// The oldest entries are gone, the newest survive.
	for i := uint64(0); i < 7; i++ {
		if set.Contains(testEventID(i)) {
			t.Errorf("Contains(%d) = true after cleanup, want false", i)
		}
	}
	for i := uint64(7); i < 15; i++ {
		if !set.Contains(testEventID(i)) {
			t.Errorf("Contains(%d) = false after cleanup, want true", i)
		}
	}

	// An evicted identity counts as new again; tolerated by design since
	// eviction only touches the oldest half.
	if !set.Add(testEventID(0)) {
		t.Error("Add() of an evicted identity = false, want true")
	}
}

func TestDedupSetDefaultCeiling(t *testing.T) {
	set := NewDedupSet(0)
	if !set.Add(testEventID(1)) {
		t.Error("Add() = false on a fresh default-sized set")
	}
	if evicted := set.Cleanup(); evicted != 0 {
		t.Errorf("Cleanup() = %d, want 0", evicted)
	}
}

func TestDedupSetConcurrentAdd(t *testing.T) {
	set := NewDedupSet(100000)

	const (
		goroutines = 8
		ids        = 200
	)

	var added atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := uint64(0); i < ids; i++ {
				if set.Add(testEventID(i)) {
					added.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := added.Load(); got != ids {
		t.Errorf("distinct additions = %d, want %d", got, ids)
	}
	if got := set.Size(); got != ids {
		t.Errorf("Size() = %d, want %d", got, ids)
	}
}

func TestEventIDString(t *testing.T) {
	id := types.EventID{
		ChainID:  8453,
		TxHash:   common.HexToHash("0xabc123"),
		LogIndex: 7,
	}
	want := "8453:" + id.TxHash.Hex() + ":7"
	if got := id.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
