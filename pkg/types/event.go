package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EventKind classifies a stealth event by the contract that emitted it
type EventKind string

const (
	// EventKindAnnouncement is an ERC-5564 Announcement (a stealth payment was sent)
	EventKindAnnouncement EventKind = "announcement"
	// EventKindRegistration is an ERC-6538 StealthMetaAddressSet (a user published keys)
	EventKindRegistration EventKind = "registration"
)

// Valid reports whether the kind is one of the known event kinds
func (k EventKind) Valid() bool {
	return k == EventKindAnnouncement || k == EventKindRegistration
}

// EventID identifies a log uniquely across all monitored chains.
// Two observations of the same on-chain log always produce the same ID,
// regardless of which scan cycle or chain loop saw them.
type EventID struct {
	ChainID  uint64
	TxHash   common.Hash
	LogIndex uint
}

// String renders the ID in the canonical "<chainId>:<txHash>:<logIndex>" form
func (id EventID) String() string {
	return fmt.Sprintf("%d:%s:%d", id.ChainID, id.TxHash.Hex(), id.LogIndex)
}

// StealthEvent is a decoded stealth-address event observed on one chain.
// Events are immutable once created; consumers must not mutate shared slices.
type StealthEvent struct {
	Kind        EventKind      `json:"kind"`
	ChainID     uint64         `json:"chainId"`
	ChainName   string         `json:"chainName"`
	BlockNumber uint64         `json:"blockNumber"`
	TxHash      common.Hash    `json:"txHash"`
	LogIndex    uint           `json:"logIndex"`
	ObservedAt  time.Time      `json:"observedAt"` // processing time, not block time
	Subject     common.Address `json:"subject"`    // announcement caller / registrant

	// Announcement fields (empty for registrations)
	StealthAddress  common.Address `json:"stealthAddress,omitempty"`
	EphemeralPubKey hexutil.Bytes  `json:"ephemeralPubKey,omitempty"`
	Metadata        hexutil.Bytes  `json:"metadata,omitempty"` // first byte is the view tag

	// Registration fields (empty for announcements)
	StealthMetaAddress hexutil.Bytes `json:"stealthMetaAddress,omitempty"`

	SchemeID *big.Int `json:"schemeId"`
}

// ID returns the event's dedup identity
func (e *StealthEvent) ID() EventID {
	return EventID{ChainID: e.ChainID, TxHash: e.TxHash, LogIndex: e.LogIndex}
}

// ViewTag returns the ERC-5564 view tag byte and whether one is present
func (e *StealthEvent) ViewTag() (byte, bool) {
	if e.Kind != EventKindAnnouncement || len(e.Metadata) == 0 {
		return 0, false
	}
	return e.Metadata[0], true
}
