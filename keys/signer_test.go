package keys

import (
	"crypto/rand"
	"strings"
	"testing"
)

func mustSigner(t *testing.T, seedByte byte) *LocalSigner {
	t.Helper()
	seed := make([]byte, SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}
	s, err := NewSignerFromSeed(seed)
	if err != nil {
		t.Fatalf("NewSignerFromSeed: %v", err)
	}
	return s
}

func TestAddressShape(t *testing.T) {
	s := mustSigner(t, 0x01)
	addr := s.Address()
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		t.Fatalf("unexpected address shape: %q", addr)
	}
	if addr != strings.ToLower(addr) {
		t.Fatalf("address not canonical lowercase: %q", addr)
	}
}

func TestSignRecoverRoundTrip(t *testing.T) {
	s := mustSigner(t, 0x07)
	msg := []byte("grant inbox consent")

	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != SignatureSize {
		t.Fatalf("signature length: got %d want %d", len(sig), SignatureSize)
	}

	got, err := RecoverAddress(msg, sig)
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if got != s.Address() {
		t.Fatalf("recovered %q, want %q", got, s.Address())
	}
}

func TestRecoverDifferentMessageYieldsDifferentAddress(t *testing.T) {
	s := mustSigner(t, 0x09)
	sig, err := s.Sign([]byte("message one"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	got, err := RecoverAddress([]byte("message two"), sig)
	if err == nil && got == s.Address() {
		t.Fatalf("recovery over a different message must not yield the signer")
	}
}

func TestRecoverRejectsMalformedSignature(t *testing.T) {
	if _, err := RecoverAddress([]byte("m"), []byte{0x01, 0x02}); err == nil {
		t.Fatalf("expected error for short signature")
	}
	if _, err := RecoverAddress([]byte("m"), make([]byte, SignatureSize)); err == nil {
		t.Fatalf("expected error for zero signature")
	}
}

func TestGenerateSignerDistinct(t *testing.T) {
	a, err := GenerateSigner(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	b, err := GenerateSigner(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	if a.Address() == b.Address() {
		t.Fatalf("expected distinct addresses")
	}
}

func TestMessageDigestLengthSensitivity(t *testing.T) {
	// The decimal-length prefix must keep ("ab","c") and ("a","bc") distinct.
	d1 := MessageDigest([]byte("abc"))
	d2 := MessageDigest([]byte("abcd"))
	if string(d1) == string(d2) {
		t.Fatalf("digests must differ for different messages")
	}
	if len(d1) != 32 {
		t.Fatalf("digest length: got %d want 32", len(d1))
	}
}
