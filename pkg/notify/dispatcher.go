// Package notify decides, per event and user, whether a notification goes
// out, enforcing the per-user cooldown and hourly quota. Event-level
// duplicate suppression already happened upstream in the processor; this
// package only ever sees an event once.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/internal/constants"
	"github.com/0xmhha/stealth-monitor-go/pkg/notifier"
	"github.com/0xmhha/stealth-monitor-go/pkg/scan"
	"github.com/0xmhha/stealth-monitor-go/pkg/storage"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// Outcome reports what MaybeNotify did for one event/user pair.
type Outcome string

const (
	// Notified means the notification was sent successfully.
	Notified Outcome = "notified"
	// SkippedIrrelevant means the event does not concern the user or the
	// user's preferences exclude its kind.
	SkippedIrrelevant Outcome = "skipped_irrelevant"
	// SkippedCooldown means the user was notified too recently.
	SkippedCooldown Outcome = "skipped_cooldown"
	// SkippedRateLimited means the user's hourly quota is spent.
	SkippedRateLimited Outcome = "skipped_rate_limited"
	// SkippedSendFailed means the notification API call failed. Throttle
	// state is untouched, so the next relevant event gets a real retry.
	SkippedSendFailed Outcome = "skipped_send_failed"
)

// UserState records and reports per-user notification timestamps.
// *registry.Registry satisfies it.
type UserState interface {
	LastNotified(userID string) time.Time
	UpdateLastNotified(userID string, t time.Time)
}

// Config holds dispatcher throttle configuration.
type Config struct {
	// MinInterval is the cooldown between notifications to one user,
	// independent of the hourly bucket.
	MinInterval time.Duration

	// MaxPerHour caps successful sends per user per hour-aligned bucket.
	MaxPerHour int
}

// Validate validates the dispatcher configuration.
func (c *Config) Validate() error {
	if c.MinInterval < 0 {
		return fmt.Errorf("min interval must not be negative")
	}
	if c.MaxPerHour <= 0 {
		return fmt.Errorf("max per hour must be positive")
	}
	return nil
}

// Dispatcher evaluates relevance and throttles, then sends.
type Dispatcher struct {
	config  *Config
	matcher scan.Matcher
	sender  notifier.Sender
	state   UserState
	store   storage.Store
	logger  *zap.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. The store holds the hourly rate
// buckets; the state records last-notified timestamps.
func NewDispatcher(config *Config, matcher scan.Matcher, sender notifier.Sender, state UserState, store storage.Store, logger *zap.Logger) (*Dispatcher, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatcher config: %w", err)
	}
	if matcher == nil || sender == nil || state == nil || store == nil {
		return nil, fmt.Errorf("matcher, sender, state and store are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		config:  config,
		matcher: matcher,
		sender:  sender,
		state:   state,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// MaybeNotify notifies the user about the event if it is relevant and the
// user's throttles allow it. Throttle state advances only after a
// successful send; a failed send reports SkippedSendFailed with the send
// error and leaves every counter untouched.
func (d *Dispatcher) MaybeNotify(ctx context.Context, event *types.StealthEvent, user *types.MonitoredUser) (Outcome, error) {
	if !d.relevant(event, user) {
		return SkippedIrrelevant, nil
	}

	now := d.now()

	if last := d.state.LastNotified(user.UserID); !last.IsZero() && now.Sub(last) < d.config.MinInterval {
		return SkippedCooldown, nil
	}

	// Hourly quota from the external bucket. Read errors fail open: a
	// flaky store must not silence notifications.
	bucketKey := storage.NotifyBucketKey(user.UserID, now, constants.NotificationBucketWidth)
	count, err := d.bucketCount(ctx, bucketKey)
	if err != nil {
		d.logger.Warn("Failed to read notification bucket, allowing send",
			zap.String("user_id", user.UserID),
			zap.Error(err),
		)
		count = 0
	} else if count >= d.config.MaxPerHour {
		return SkippedRateLimited, nil
	}

	n := &notifier.Notification{
		UserID:    user.UserID,
		Kind:      event.Kind,
		Message:   messageFor(event, user),
		Event:     event,
		CreatedAt: now.UTC(),
	}
	if err := d.sender.Send(ctx, n); err != nil {
		d.logger.Warn("Notification send failed",
			zap.String("user_id", user.UserID),
			zap.String("event_id", event.ID().String()),
			zap.Error(err),
		)
		return SkippedSendFailed, err
	}

	d.state.UpdateLastNotified(user.UserID, now)
	if err := d.store.Set(ctx, bucketKey, storage.EncodeCounter(count+1), constants.NotificationBucketWidth); err != nil {
		d.logger.Warn("Failed to update notification bucket",
			zap.String("user_id", user.UserID),
			zap.Error(err),
		)
	}

	d.logger.Debug("Notification dispatched",
		zap.String("user_id", user.UserID),
		zap.String("event_id", event.ID().String()),
		zap.String("kind", string(event.Kind)),
	)
	return Notified, nil
}

// relevant applies the preference gate and the kind-specific relevance
// rule. The stealth matcher is consulted only for announcements; for
// registrations only the registrant's own address counts.
func (d *Dispatcher) relevant(event *types.StealthEvent, user *types.MonitoredUser) bool {
	if event == nil || user == nil || !user.Prefs.Wants(event.Kind) {
		return false
	}

	switch event.Kind {
	case types.EventKindAnnouncement:
		if event.Subject == user.Address {
			return true
		}
		return d.matcher.Matches(event, user.ScanKeys)
	case types.EventKindRegistration:
		return event.Subject == user.Address
	default:
		return false
	}
}

// bucketCount reads the user's current hourly counter, treating a missing
// bucket as zero.
func (d *Dispatcher) bucketCount(ctx context.Context, key string) (int, error) {
	raw, err := d.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return storage.DecodeCounter(raw)
}

// messageFor renders the short human-readable line for the notification.
func messageFor(event *types.StealthEvent, user *types.MonitoredUser) string {
	switch event.Kind {
	case types.EventKindAnnouncement:
		if event.Subject == user.Address {
			return fmt.Sprintf("Your stealth payment was announced on %s", event.ChainName)
		}
		return fmt.Sprintf("You received a stealth payment on %s", event.ChainName)
	case types.EventKindRegistration:
		return fmt.Sprintf("Your stealth meta-address registration was recorded on %s", event.ChainName)
	default:
		return fmt.Sprintf("Stealth event on %s", event.ChainName)
	}
}
