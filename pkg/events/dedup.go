package events

import (
	"sync"

	"github.com/0xmhha/stealth-monitor-go/internal/constants"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// DedupSet is a bounded set of event identities shared by all chain loops.
// Identities embed the chain id, so one set covers every chain. Growth is
// reined in by the periodic Cleanup call, which keeps the newest half of
// entries by insertion order so recently seen events are never reprocessed
// right after a sweep.
type DedupSet struct {
	mu      sync.Mutex
	maxSize int
	seen    map[types.EventID]struct{}
	order   []types.EventID
}

// NewDedupSet creates a dedup set with the given ceiling. A non-positive
// ceiling selects the default.
func NewDedupSet(maxSize int) *DedupSet {
	if maxSize <= 0 {
		maxSize = constants.DefaultDedupMaxSize
	}
	return &DedupSet{
		maxSize: maxSize,
		seen:    make(map[types.EventID]struct{}),
	}
}

// Add inserts the identity and reports whether the set changed: false
// means the identity was already present.
func (s *DedupSet) Add(id types.EventID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[id]; dup {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Contains reports whether the identity has been seen.
func (s *DedupSet) Contains(id types.EventID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.seen[id]
	return ok
}

// Size returns the number of identities currently held.
func (s *DedupSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.order)
}

// Cleanup rebuilds the set if it has grown past the ceiling, keeping only
// the newest half of entries by insertion order. It returns the number of
// evicted identities.
func (s *DedupSet) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) <= s.maxSize {
		return 0
	}

	keep := s.order[len(s.order)/2:]
	evicted := len(s.order) - len(keep)

	order := make([]types.EventID, len(keep))
	copy(order, keep)
	seen := make(map[types.EventID]struct{}, len(order))
	for _, id := range order {
		seen[id] = struct{}{}
	}

	s.order = order
	s.seen = seen
	return evicted
}
