package userstore

import (
	"context"
	"sync"

	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// StaticStore serves a fixed user list from memory. It stands in for the
// user service in local development and tests.
type StaticStore struct {
	mu    sync.RWMutex
	users []*types.MonitoredUser
}

// NewStaticStore creates a static store holding the given users.
func NewStaticStore(users ...*types.MonitoredUser) *StaticStore {
	return &StaticStore{users: users}
}

// SetUsers replaces the stored user list.
func (s *StaticStore) SetUsers(users ...*types.MonitoredUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
}

// ListEnabled returns the users with at least one notification preference
// enabled, mirroring the filtering the real user service performs.
func (s *StaticStore) ListEnabled(ctx context.Context) ([]*types.MonitoredUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	enabled := make([]*types.MonitoredUser, 0, len(s.users))
	for _, user := range s.users {
		if user.Prefs.Announcements || user.Prefs.Registrations {
			enabled = append(enabled, user)
		}
	}
	return enabled, nil
}
