package testutil

import (
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// NewTestLogger creates a test logger that doesn't output to console
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	return logger
}

var (
	announcementTopic = crypto.Keccak256Hash([]byte("Announcement(uint256,address,address,bytes,bytes)"))
	registrationTopic = crypto.Keccak256Hash([]byte("StealthMetaAddressSet(address,uint256,bytes)"))

	bytesType, _ = abi.NewType("bytes", "", nil)
	bytesArgs    = abi.Arguments{{Type: bytesType}}
	bytesPair    = abi.Arguments{{Type: bytesType}, {Type: bytesType}}
)

// TestTxHash derives a deterministic transaction hash from block number and
// log index so fixtures are reproducible across runs
func TestTxHash(blockNumber uint64, logIndex uint) common.Hash {
	return crypto.Keccak256Hash(
		new(big.Int).SetUint64(blockNumber).Bytes(),
		new(big.Int).SetUint64(uint64(logIndex)).Bytes(),
	)
}

// NewAnnouncementLog builds a raw ERC-5564 Announcement log as a node would
// return it from eth_getLogs
func NewAnnouncementLog(blockNumber uint64, logIndex uint, caller, stealthAddress common.Address, ephemeralPubKey, metadata []byte) *types.Log {
	data, err := bytesPair.Pack(ephemeralPubKey, metadata)
	if err != nil {
		panic(err)
	}
	return &types.Log{
		Topics: []common.Hash{
			announcementTopic,
			common.BigToHash(big.NewInt(1)), // scheme 1 (secp256k1 with view tags)
			common.BytesToHash(stealthAddress.Bytes()),
			common.BytesToHash(caller.Bytes()),
		},
		Data:        data,
		BlockNumber: blockNumber,
		TxHash:      TestTxHash(blockNumber, logIndex),
		Index:       logIndex,
	}
}

// NewRegistrationLog builds a raw ERC-6538 StealthMetaAddressSet log
func NewRegistrationLog(blockNumber uint64, logIndex uint, registrant common.Address, stealthMetaAddress []byte) *types.Log {
	data, err := bytesArgs.Pack(stealthMetaAddress)
	if err != nil {
		panic(err)
	}
	return &types.Log{
		Topics: []common.Hash{
			registrationTopic,
			common.BytesToHash(registrant.Bytes()),
			common.BigToHash(big.NewInt(1)),
		},
		Data:        data,
		BlockNumber: blockNumber,
		TxHash:      TestTxHash(blockNumber, logIndex),
		Index:       logIndex,
	}
}

// AssertNoError is a helper to assert that there is no error
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: %v", msgAndArgs[0], err)
		} else {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
}

// AssertError is a helper to assert that there is an error
func AssertError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected error but got nil", msgAndArgs[0])
		} else {
			t.Fatal("Expected error but got nil")
		}
	}
}

// AssertEqual is a helper to assert equality
func AssertEqual(t *testing.T, expected, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if expected != actual {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected %v, got %v", msgAndArgs[0], expected, actual)
		} else {
			t.Fatalf("Expected %v, got %v", expected, actual)
		}
	}
}

// AssertTrue is a helper to assert that a condition is true
func AssertTrue(t *testing.T, condition bool, msgAndArgs ...interface{}) {
	t.Helper()
	if !condition {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected true but got false", msgAndArgs[0])
		} else {
			t.Fatal("Expected true but got false")
		}
	}
}

// AssertFalse is a helper to assert that a condition is false
func AssertFalse(t *testing.T, condition bool, msgAndArgs ...interface{}) {
	t.Helper()
	if condition {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected false but got true", msgAndArgs[0])
		} else {
			t.Fatal("Expected false but got true")
		}
	}
}

// AssertNil is a helper to assert that a value is nil
func AssertNil(t *testing.T, value interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if value != nil && !isNil(value) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected nil but got %v", msgAndArgs[0], value)
		} else {
			t.Fatalf("Expected nil but got %v", value)
		}
	}
}

// isNil checks if a value is nil using reflection.
// This is needed because interface{} != nil doesn't work for nil pointers.
func isNil(value interface{}) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}

// AssertNotNil is a helper to assert that a value is not nil
func AssertNotNil(t *testing.T, value interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if value == nil || isNil(value) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected not nil but got nil", msgAndArgs[0])
		} else {
			t.Fatal("Expected not nil but got nil")
		}
	}
}
