// Package sigutil normalizes device-produced signatures into chain-canonical
// forms. Devices disagree on v encoding (raw recovery id, 27/28, EIP-155
// folded) and on component padding; everything downstream expects 65-byte
// r||s||v with a 0/1 recovery id.
package sigutil

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// RecoverableLength is the canonical r||s||v signature size
const RecoverableLength = 65

// AssembleRecoverable builds a 65-byte r||s||v signature. r and s may be
// shorter than 32 bytes and are left-padded; recovery must be 0 or 1.
func AssembleRecoverable(r, s []byte, recovery byte) ([]byte, error) {
	if len(r) == 0 || len(r) > 32 {
		return nil, errors.Errorf("invalid r length: %d", len(r))
	}
	if len(s) == 0 || len(s) > 32 {
		return nil, errors.Errorf("invalid s length: %d", len(s))
	}
	if recovery > 1 {
		return nil, errors.Errorf("invalid recovery id: %d", recovery)
	}

	sig := make([]byte, RecoverableLength)
	copy(sig[32-len(r):32], r)
	copy(sig[64-len(s):64], s)
	sig[64] = recovery
	return sig, nil
}

// LegacyRecoveryID recovers the 0/1 recovery id from an EIP-155 folded v
// value: v = recovery + chainID*2 + 35
func LegacyRecoveryID(v uint64, chainID int64) (byte, error) {
	if chainID < 0 {
		return 0, errors.Errorf("invalid chain id: %d", chainID)
	}

	offset := uint64(chainID)*2 + 35
	if v < offset || v > offset+1 {
		return 0, errors.Errorf("v value %d out of range for chain id %d", v, chainID)
	}
	return byte(v - offset), nil
}

// FeeMarketRecoveryID validates the recovery id of a typed (EIP-1559)
// transaction signature, where v is the raw 0/1 parity
func FeeMarketRecoveryID(v uint64) (byte, error) {
	if v > 1 {
		return 0, errors.Errorf("v value %d out of range for fee-market transaction", v)
	}
	return byte(v), nil
}

// BitcoinHeader encodes the recovery id into a Bitcoin signed-message
// header byte: 27 + recovery, plus 4 when the signing key is compressed
func BitcoinHeader(recovery byte, compressed bool) (byte, error) {
	if recovery > 3 {
		return 0, errors.Errorf("invalid recovery id: %d", recovery)
	}
	header := 27 + recovery
	if compressed {
		header += 4
	}
	return header, nil
}

// SplitBitcoinSignature splits a 65-byte header||r||s Bitcoin message
// signature into its parts
func SplitBitcoinSignature(sig []byte) (header byte, r, s []byte, err error) {
	if len(sig) != RecoverableLength {
		return 0, nil, nil, errors.Errorf("invalid signature length: %d", len(sig))
	}
	return sig[0], sig[1:33], sig[33:65], nil
}

// DecodeHex decodes a hex string, tolerating an optional 0x prefix
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "invalid hex string")
	}
	return b, nil
}

// EncodeHex encodes bytes as a bare lowercase hex string
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}
