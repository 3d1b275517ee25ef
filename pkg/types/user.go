package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NotificationPrefs selects which event kinds a user wants to hear about
type NotificationPrefs struct {
	Announcements bool `json:"announcements"`
	Registrations bool `json:"registrations"`
}

// Wants reports whether the preferences include the given event kind
func (p NotificationPrefs) Wants(kind EventKind) bool {
	switch kind {
	case EventKindAnnouncement:
		return p.Announcements
	case EventKindRegistration:
		return p.Registrations
	default:
		return false
	}
}

// MonitoredUser is one entry of the registry snapshot. The user store owns
// the durable record; the snapshot is replaced wholesale on every refresh.
type MonitoredUser struct {
	UserID         string            `json:"userId"`
	Address        common.Address    `json:"address"`
	Prefs          NotificationPrefs `json:"prefs"`
	LastNotifiedAt time.Time         `json:"lastNotifiedAt"`
	ScanKeys       []string          `json:"scanKeys"` // opaque matcher material, hex-encoded
}
