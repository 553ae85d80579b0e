package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

// SeedSize is the secp256k1 private-key seed length in bytes.
const SeedSize = 32

// NewSignerFromSeed returns the deterministic signer for a 32-byte seed.
func NewSignerFromSeed(seed []byte) (*LocalSigner, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("keys: seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	priv := secp256k1.PrivKeyFromBytes(seed)
	if priv.Key.IsZero() {
		return nil, errors.New("keys: seed produces a zero scalar")
	}
	return NewLocalSigner(priv)
}

// DeriveSessionSeed deterministically derives a session-specific seed from a
// root seed, so one identity can run multiple sessions/devices without
// sharing the root key material.
func DeriveSessionSeed(rootSeed []byte, session string) ([]byte, error) {
	if len(rootSeed) != SeedSize {
		return nil, fmt.Errorf("keys: root seed must be %d bytes", SeedSize)
	}
	if err := CheckSessionName(session); err != nil {
		return nil, err
	}

	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("xdao-consent-kms-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("session:"))
	_, _ = h.Write([]byte(session))
	sum := h.Sum(nil)
	if len(sum) < SeedSize {
		return nil, errors.New("keys: kdf output too short")
	}
	out := make([]byte, SeedSize)
	copy(out, sum[:SeedSize])
	return out, nil
}

// ParseSeedHex parses a 64-hex-char (32 byte) seed, with optional 0x prefix.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != SeedSize {
		return nil, fmt.Errorf("keys: expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	return data, nil
}
