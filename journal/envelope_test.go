package journal

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"xdao.co/consent/consent"
	"xdao.co/consent/keys"
)

const envPeer = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func testSigner(t *testing.T) *keys.LocalSigner {
	t.Helper()
	s, err := keys.GenerateSigner(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	return s
}

func TestSealVerifyRoundTrip(t *testing.T) {
	signer := testSigner(t)
	entries := []consent.Entry{consent.AllowEntry(envPeer), consent.DenyEntry(envPeer)}

	env, err := Seal(signer, entries, 1700000000000)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if env.Identity != signer.Address() {
		t.Fatalf("identity: got %q want %q", env.Identity, signer.Address())
	}
	if err := env.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	raw, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	decoded, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if err := decoded.Verify(); err != nil {
		t.Fatalf("Verify after decode: %v", err)
	}
	if len(decoded.Entries) != len(entries) {
		t.Fatalf("entries: got %d want %d", len(decoded.Entries), len(entries))
	}
}

func TestVerifyRejectsForeignIdentity(t *testing.T) {
	env, err := Seal(testSigner(t), []consent.Entry{consent.AllowEntry(envPeer)}, 1)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	env.Identity = testSigner(t).Address()

	if err := env.Verify(); !IsNotOwner(err) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestVerifyRejectsTamperedEntries(t *testing.T) {
	env, err := Seal(testSigner(t), []consent.Entry{consent.AllowEntry(envPeer)}, 1)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	env.Entries[0] = consent.DenyEntry(envPeer)

	// The signature is still valid, it just recovers to a different address
	// than the one the tampered bytes claim.
	if err := env.Verify(); err == nil {
		t.Fatalf("expected verification failure")
	}
}

func TestVerifyRejectsGarbageSignature(t *testing.T) {
	env, err := Seal(testSigner(t), []consent.Entry{consent.AllowEntry(envPeer)}, 1)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	env.Signature = []byte("short")

	if err := env.Verify(); !errors.Is(err, ErrBadEnvelope) {
		t.Fatalf("expected ErrBadEnvelope, got %v", err)
	}
}

func TestSignedBytesExcludeSignature(t *testing.T) {
	signer := testSigner(t)
	env, err := Seal(signer, []consent.Entry{consent.AllowEntry(envPeer)}, 42)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	sealed, err := env.SignedBytes()
	if err != nil {
		t.Fatalf("SignedBytes: %v", err)
	}
	unsealed := env
	unsealed.Signature = nil
	plain, err := unsealed.SignedBytes()
	if err != nil {
		t.Fatalf("SignedBytes: %v", err)
	}
	if !bytes.Equal(sealed, plain) {
		t.Fatalf("signed bytes must not cover the signature field")
	}
	if bytes.Contains(sealed, []byte(`"signature"`)) {
		t.Fatalf("signed bytes must omit the signature field entirely")
	}
}

func TestDecodeEnvelopeRejectsMalformed(t *testing.T) {
	if _, err := DecodeEnvelope([]byte("{nope")); !errors.Is(err, ErrBadEnvelope) {
		t.Fatalf("expected ErrBadEnvelope, got %v", err)
	}
}

func TestHistoryIntegrity(t *testing.T) {
	const identity = "0x1111111111111111111111111111111111111111"
	entries := []consent.Entry{consent.AllowEntry(envPeer), consent.DenyEntry(envPeer)}

	h, err := NewHistory(identity, entries)
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}
	if err := h.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}

	raw, err := EncodeHistory(h)
	if err != nil {
		t.Fatalf("EncodeHistory: %v", err)
	}
	decoded, err := DecodeHistory(raw)
	if err != nil {
		t.Fatalf("DecodeHistory: %v", err)
	}
	if err := decoded.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity after decode: %v", err)
	}

	decoded.Entries = append(decoded.Entries, consent.AllowEntry(envPeer))
	if err := decoded.CheckIntegrity(); !IsIntegrity(err) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

func TestHistoryOfEmptyLog(t *testing.T) {
	h, err := NewHistory("0x1111111111111111111111111111111111111111", nil)
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}
	if err := h.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
}

func TestBytesCIDIsStable(t *testing.T) {
	a, err := BytesCID([]byte("payload"))
	if err != nil {
		t.Fatalf("BytesCID: %v", err)
	}
	b, err := BytesCID([]byte("payload"))
	if err != nil {
		t.Fatalf("BytesCID: %v", err)
	}
	if a.String() != b.String() {
		t.Fatalf("same bytes must yield the same CID")
	}
	c, err := BytesCID([]byte("other"))
	if err != nil {
		t.Fatalf("BytesCID: %v", err)
	}
	if c.String() == a.String() {
		t.Fatalf("different bytes must yield different CIDs")
	}
}
