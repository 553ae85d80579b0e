package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// SignatureSize is the length of a recoverable compact signature: one
// recovery-code byte followed by 32-byte R and S scalars.
const SignatureSize = 65

// messagePrefix guards against cross-protocol signature reuse: every signed
// message is digested as Keccak256(prefix + decimal length + message).
const messagePrefix = "\x19XDAO Signed Message:\n"

// Signer authorizes writes to its own consent journal and produces consent
// proofs. Implementations may be backed by a local key or an external wallet.
type Signer interface {
	// Address returns the canonical (lowercase 0x hex) identity address.
	Address() string

	// Sign returns a recoverable compact signature over message.
	// The message is digested with MessageDigest before signing.
	Sign(message []byte) ([]byte, error)
}

// MessageDigest returns the 32-byte prefixed Keccak-256 digest of message.
func MessageDigest(message []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(messagePrefix))
	_, _ = h.Write([]byte(strconv.Itoa(len(message))))
	_, _ = h.Write(message)
	return h.Sum(nil)
}

// AddressFromPublicKey derives the identity address for a public key:
// the last 20 bytes of Keccak256(uncompressed pubkey without the 0x04 tag).
func AddressFromPublicKey(pub *secp256k1.PublicKey) string {
	raw := pub.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(raw[1:])
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:])
}

// RecoverAddress recovers the signing identity's address from a recoverable
// compact signature over message.
func RecoverAddress(message, signature []byte) (string, error) {
	if len(signature) != SignatureSize {
		return "", fmt.Errorf("keys: signature must be %d bytes, got %d", SignatureSize, len(signature))
	}
	pub, _, err := ecdsa.RecoverCompact(signature, MessageDigest(message))
	if err != nil {
		return "", fmt.Errorf("keys: recover signer: %w", err)
	}
	return AddressFromPublicKey(pub), nil
}

// LocalSigner is a Signer backed by an in-process secp256k1 private key.
type LocalSigner struct {
	priv *secp256k1.PrivateKey
	addr string
}

var _ Signer = (*LocalSigner)(nil)

// NewLocalSigner wraps an existing private key.
func NewLocalSigner(priv *secp256k1.PrivateKey) (*LocalSigner, error) {
	if priv == nil {
		return nil, errors.New("keys: nil private key")
	}
	return &LocalSigner{priv: priv, addr: AddressFromPublicKey(priv.PubKey())}, nil
}

// GenerateSigner creates a signer with a fresh random key read from rand.
func GenerateSigner(rand io.Reader) (*LocalSigner, error) {
	priv, err := secp256k1.GeneratePrivateKeyFromRand(rand)
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(priv)
}

func (s *LocalSigner) Address() string {
	if s == nil {
		return ""
	}
	return s.addr
}

func (s *LocalSigner) Sign(message []byte) ([]byte, error) {
	if s == nil || s.priv == nil {
		return nil, errors.New("keys: signer has no key")
	}
	// Uncompressed recovery: AddressFromPublicKey hashes the uncompressed form.
	return ecdsa.SignCompact(s.priv, MessageDigest(message), false), nil
}

func (s *LocalSigner) String() string {
	return "LocalSigner{REDACTED}"
}

func (s *LocalSigner) GoString() string {
	return "keys.LocalSigner{REDACTED}"
}
