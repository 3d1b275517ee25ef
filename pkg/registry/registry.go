// Package registry maintains the in-memory snapshot of users who opted
// into stealth event notifications. The snapshot is replaced wholesale on
// each refresh; it is never merged, so preference changes in the external
// user store converge within one refresh period.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// UserSource lists the users who currently want stealth notifications.
// *userstore.HTTPStore and *userstore.StaticStore satisfy it.
type UserSource interface {
	ListEnabled(ctx context.Context) ([]*types.MonitoredUser, error)
}

// Registry holds the current user snapshot.
type Registry struct {
	source UserSource
	logger *zap.Logger

	mu          sync.RWMutex
	users       []*types.MonitoredUser
	byID        map[string]*types.MonitoredUser
	refreshedAt time.Time
}

// NewRegistry creates an empty registry. Call Refresh to populate it.
func NewRegistry(source UserSource, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		source: source,
		logger: logger,
		byID:   make(map[string]*types.MonitoredUser),
	}
}

// Refresh replaces the snapshot with the user store's current view. On
// failure the previous snapshot stays in place: stale-but-present data
// beats no data.
func (r *Registry) Refresh(ctx context.Context) error {
	users, err := r.source.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh user registry: %w", err)
	}

	byID := make(map[string]*types.MonitoredUser, len(users))
	for _, user := range users {
		byID[user.UserID] = user
	}

	r.mu.Lock()
	r.users = users
	r.byID = byID
	r.refreshedAt = time.Now()
	r.mu.Unlock()

	r.logger.Debug("Refreshed user registry", zap.Int("users", len(users)))
	return nil
}

// All returns the current snapshot. The slice is shared: callers iterate
// it but must not modify it.
func (r *Registry) All() []*types.MonitoredUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users
}

// Count returns the number of users in the snapshot.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// RefreshedAt returns when the snapshot was last replaced, zero if never.
func (r *Registry) RefreshedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshedAt
}

// LastNotified returns when the user was last successfully notified, zero
// for unknown users.
func (r *Registry) LastNotified(userID string) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if user, ok := r.byID[userID]; ok {
		return user.LastNotifiedAt
	}
	return time.Time{}
}

// UpdateLastNotified records a successful send. The value lives in the
// snapshot, so it holds until the next refresh replaces it with the user
// store's view.
func (r *Registry) UpdateLastNotified(userID string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.byID[userID]; ok {
		user.LastNotifiedAt = t
	}
}
