package scan

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// SchemeSecp256k1 is the ERC-5564 scheme id for secp256k1 with view tags.
const SchemeSecp256k1 = 1

// maxCachedKeys bounds the parsed key cache. The cache is reset rather
// than evicted; scan key churn is low.
const maxCachedKeys = 8192

// SchemeMatcher performs ERC-5564 scheme 1 scanning: it derives the
// stealth address each scan key would receive under the announcement's
// ephemeral public key and compares it against the announced address.
// Parsed scan keys are cached by their string form so repeated events do
// not redo key parsing.
type SchemeMatcher struct {
	logger *zap.Logger

	mu sync.RWMutex
	// nil entries record keys that failed to parse
	cache map[string]*ScanKey
}

// NewSchemeMatcher creates a matcher for scheme 1 announcements.
func NewSchemeMatcher(logger *zap.Logger) *SchemeMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemeMatcher{
		logger: logger,
		cache:  make(map[string]*ScanKey),
	}
}

// Matches reports whether the announcement pays any of the scan keys.
// Registrations, announcements under other schemes, and malformed
// payloads never match.
func (m *SchemeMatcher) Matches(event *types.StealthEvent, scanKeys []string) bool {
	if event == nil || event.Kind != types.EventKindAnnouncement {
		return false
	}
	if event.SchemeID == nil || !event.SchemeID.IsUint64() || event.SchemeID.Uint64() != SchemeSecp256k1 {
		return false
	}

	ephemeral, err := parseEphemeralPubkey(event.EphemeralPubKey)
	if err != nil {
		m.logger.Debug("Skipping announcement with malformed ephemeral pubkey",
			zap.String("event_id", event.ID().String()),
			zap.Error(err),
		)
		return false
	}

	viewTag, hasTag := event.ViewTag()
	for _, raw := range scanKeys {
		key := m.lookupKey(raw)
		if key == nil {
			continue
		}

		secret := sharedSecret(key.ViewingKey, ephemeral)
		tweak := crypto.Keccak256(secret)
		if hasTag && tweak[0] != viewTag {
			continue
		}

		derived, ok := stealthAddressFromTweak(key.SpendingPub, tweak)
		if ok && derived == event.StealthAddress {
			return true
		}
	}
	return false
}

// lookupKey returns the parsed form of a scan key, parsing and caching it
// on first sight. Unparseable keys are cached as nil so they are logged
// once, not per event.
func (m *SchemeMatcher) lookupKey(raw string) *ScanKey {
	m.mu.RLock()
	key, ok := m.cache[raw]
	m.mu.RUnlock()
	if ok {
		return key
	}

	parsed, err := ParseScanKey(raw)
	if err != nil {
		m.logger.Debug("Ignoring malformed scan key", zap.Error(err))
		parsed = nil
	}

	m.mu.Lock()
	if len(m.cache) >= maxCachedKeys {
		m.cache = make(map[string]*ScanKey)
	}
	m.cache[raw] = parsed
	m.mu.Unlock()
	return parsed
}

// sharedSecret computes the compressed ECDH point viewing * ephemeral.
func sharedSecret(viewing *ecdsa.PrivateKey, ephemeral *ecdsa.PublicKey) []byte {
	curve := crypto.S256()
	x, y := curve.ScalarMult(ephemeral.X, ephemeral.Y, viewing.D.Bytes())
	return crypto.CompressPubkey(&ecdsa.PublicKey{Curve: curve, X: x, Y: y})
}

// stealthAddressFromTweak derives the address of spendingPub + tweak*G.
// ok is false for the degenerate zero tweak.
func stealthAddressFromTweak(spending *ecdsa.PublicKey, tweak []byte) (common.Address, bool) {
	curve := crypto.S256()
	t := new(big.Int).SetBytes(tweak)
	t.Mod(t, curve.Params().N)
	if t.Sign() == 0 {
		return common.Address{}, false
	}
	tx, ty := curve.ScalarBaseMult(t.Bytes())
	px, py := curve.Add(spending.X, spending.Y, tx, ty)
	return crypto.PubkeyToAddress(ecdsa.PublicKey{Curve: curve, X: px, Y: py}), true
}

// parseEphemeralPubkey accepts compressed (33-byte) and uncompressed
// (65-byte) encodings.
func parseEphemeralPubkey(data []byte) (*ecdsa.PublicKey, error) {
	switch len(data) {
	case 33:
		return crypto.DecompressPubkey(data)
	case 65:
		return crypto.UnmarshalPubkey(data)
	default:
		return nil, fmt.Errorf("ephemeral pubkey must be 33 or 65 bytes, got %d", len(data))
	}
}
