// Package scan implements recipient-side ERC-5564 stealth address scanning.
//
// A scan key bundles the two pieces a recipient hands to the monitor: the
// viewing private key and the spending public key. The viewing key can
// detect payments addressed to the recipient but cannot spend them.
package scan

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// Matcher decides whether a stealth event concerns any of the given scan
// keys. Implementations must treat malformed keys and malformed event
// payloads as non-matches, never as errors.
type Matcher interface {
	Matches(event *types.StealthEvent, scanKeys []string) bool
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(event *types.StealthEvent, scanKeys []string) bool

// Matches calls f.
func (f MatcherFunc) Matches(event *types.StealthEvent, scanKeys []string) bool {
	return f(event, scanKeys)
}

// scanKeyHexLen is the hex length of a scan key: a 32-byte viewing private
// key followed by a 33-byte compressed spending public key.
const scanKeyHexLen = (32 + 33) * 2

// ScanKey holds the parsed recipient key material.
type ScanKey struct {
	ViewingKey  *ecdsa.PrivateKey
	SpendingPub *ecdsa.PublicKey
}

// ParseScanKey parses a hex-encoded scan key, with or without a 0x prefix.
func ParseScanKey(s string) (*ScanKey, error) {
	raw := strings.TrimPrefix(s, "0x")
	if len(raw) != scanKeyHexLen {
		return nil, fmt.Errorf("scan key must be %d hex chars, got %d", scanKeyHexLen, len(raw))
	}
	data, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid scan key encoding: %w", err)
	}

	viewing, err := crypto.ToECDSA(data[:32])
	if err != nil {
		return nil, fmt.Errorf("invalid viewing key: %w", err)
	}
	spending, err := crypto.DecompressPubkey(data[32:])
	if err != nil {
		return nil, fmt.Errorf("invalid spending public key: %w", err)
	}

	return &ScanKey{ViewingKey: viewing, SpendingPub: spending}, nil
}

// EncodeScanKey is the inverse of ParseScanKey.
func EncodeScanKey(viewing *ecdsa.PrivateKey, spending *ecdsa.PublicKey) string {
	buf := make([]byte, 0, 32+33)
	buf = append(buf, crypto.FromECDSA(viewing)...)
	buf = append(buf, crypto.CompressPubkey(spending)...)
	return hex.EncodeToString(buf)
}
