// Package events decodes ERC-5564/ERC-6538 contract logs into typed
// stealth events and enforces at-most-once processing through a bounded
// deduplication set.
package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// Event signatures for the two singleton stealth contracts
var (
	// AnnouncementTopic is topic0 of the ERC-5564 announcer event
	// Announcement(uint256 indexed schemeId, address indexed stealthAddress,
	// address indexed caller, bytes ephemeralPubKey, bytes metadata).
	AnnouncementTopic = crypto.Keccak256Hash([]byte("Announcement(uint256,address,address,bytes,bytes)"))

	// RegistrationTopic is topic0 of the ERC-6538 registry event
	// StealthMetaAddressSet(address indexed registrant, uint256 indexed
	// schemeId, bytes stealthMetaAddress).
	RegistrationTopic = crypto.Keccak256Hash([]byte("StealthMetaAddressSet(address,uint256,bytes)"))
)

var (
	bytesType, _ = abi.NewType("bytes", "", nil)

	announcementDataArgs = abi.Arguments{
		{Name: "ephemeralPubKey", Type: bytesType},
		{Name: "metadata", Type: bytesType},
	}
	registrationDataArgs = abi.Arguments{
		{Name: "stealthMetaAddress", Type: bytesType},
	}
)

// decodeLog routes a raw log by its event signature.
func decodeLog(log *coretypes.Log) (*types.StealthEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}

	switch log.Topics[0] {
	case AnnouncementTopic:
		return decodeAnnouncement(log)
	case RegistrationTopic:
		return decodeRegistration(log)
	default:
		return nil, fmt.Errorf("unknown event signature %s", log.Topics[0].Hex())
	}
}

// decodeAnnouncement parses Announcement(uint256 indexed schemeId,
// address indexed stealthAddress, address indexed caller,
// bytes ephemeralPubKey, bytes metadata)
func decodeAnnouncement(log *coretypes.Log) (*types.StealthEvent, error) {
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("invalid Announcement event: expected 4 topics, got %d", len(log.Topics))
	}

	vals, err := announcementDataArgs.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid Announcement event data: %w", err)
	}
	ephemeralPubKey, ok := vals[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid Announcement event: ephemeralPubKey is %T", vals[0])
	}
	metadata, ok := vals[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid Announcement event: metadata is %T", vals[1])
	}

	return &types.StealthEvent{
		Kind:            types.EventKindAnnouncement,
		SchemeID:        new(big.Int).SetBytes(log.Topics[1].Bytes()),
		StealthAddress:  common.BytesToAddress(log.Topics[2].Bytes()),
		Subject:         common.BytesToAddress(log.Topics[3].Bytes()),
		EphemeralPubKey: ephemeralPubKey,
		Metadata:        metadata,
	}, nil
}

// decodeRegistration parses StealthMetaAddressSet(address indexed
// registrant, uint256 indexed schemeId, bytes stealthMetaAddress)
func decodeRegistration(log *coretypes.Log) (*types.StealthEvent, error) {
	if len(log.Topics) != 3 {
		return nil, fmt.Errorf("invalid StealthMetaAddressSet event: expected 3 topics, got %d", len(log.Topics))
	}

	vals, err := registrationDataArgs.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid StealthMetaAddressSet event data: %w", err)
	}
	stealthMetaAddress, ok := vals[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid StealthMetaAddressSet event: stealthMetaAddress is %T", vals[0])
	}

	return &types.StealthEvent{
		Kind:               types.EventKindRegistration,
		Subject:            common.BytesToAddress(log.Topics[1].Bytes()),
		SchemeID:           new(big.Int).SetBytes(log.Topics[2].Bytes()),
		StealthMetaAddress: stealthMetaAddress,
	}, nil
}
