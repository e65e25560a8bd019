package security

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// FingerprintHasher derives the stored participant identity from a raw
// device fingerprint. The hash is keyed so leaked rows cannot be matched
// against fingerprints observed elsewhere; the raw value is never persisted.
type FingerprintHasher struct {
	key []byte
}

// NewFingerprintHasher builds a hasher from the configured key. blake2b
// accepts keys up to 64 bytes.
func NewFingerprintHasher(key string) (*FingerprintHasher, error) {
	if key == "" {
		return nil, fmt.Errorf("fingerprint hash key is required")
	}
	raw := []byte(key)
	if len(raw) > 64 {
		raw = raw[:64]
	}
	if _, err := blake2b.New256(raw); err != nil {
		return nil, fmt.Errorf("invalid fingerprint hash key: %w", err)
	}
	return &FingerprintHasher{key: raw}, nil
}

// Hash returns the hex-encoded keyed digest of the fingerprint.
func (h *FingerprintHasher) Hash(fingerprint string) (string, error) {
	if fingerprint == "" {
		return "", fmt.Errorf("fingerprint is required")
	}
	mac, err := blake2b.New256(h.key)
	if err != nil {
		return "", err
	}
	mac.Write([]byte(fingerprint))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
