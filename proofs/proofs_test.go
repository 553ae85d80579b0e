package proofs

import (
	"strings"
	"testing"

	"xdao.co/consent/keys"
)

const peerAddr = "0x00112233445566778899aabbccddeeff00112233"

func mustSigner(t *testing.T, seedByte byte) *keys.LocalSigner {
	t.Helper()
	seed := make([]byte, keys.SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}
	s, err := keys.NewSignerFromSeed(seed)
	if err != nil {
		t.Fatalf("NewSignerFromSeed: %v", err)
	}
	return s
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := mustSigner(t, 0x11)

	p, err := Sign(signer, peerAddr, 1700000000000)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if p.PayloadVersion != PayloadVersion1 {
		t.Fatalf("payload version: got %d want %d", p.PayloadVersion, PayloadVersion1)
	}
	if !Verify(p, peerAddr, signer.Address()) {
		t.Fatalf("expected valid proof to verify")
	}
}

func TestVerifyIsCaseInsensitive(t *testing.T) {
	signer := mustSigner(t, 0x12)
	p, err := Sign(signer, peerAddr, 42)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	upperPeer := "0x" + strings.ToUpper(peerAddr[2:])
	upperSigner := "0x" + strings.ToUpper(signer.Address()[2:])
	if !Verify(p, upperPeer, upperSigner) {
		t.Fatalf("verification must be case-insensitive on both addresses")
	}
}

func TestVerifyRejectsTamperedTimestamp(t *testing.T) {
	signer := mustSigner(t, 0x13)
	p, err := Sign(signer, peerAddr, 1700000000000)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	p.Timestamp++
	if Verify(p, peerAddr, signer.Address()) {
		t.Fatalf("proof with a tampered timestamp must fail verification")
	}
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	signer := mustSigner(t, 0x14)
	other := mustSigner(t, 0x15)

	p, err := Sign(signer, peerAddr, 99)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify(p, peerAddr, other.Address()) {
		t.Fatalf("proof signed by another identity must fail verification")
	}
}

func TestVerifyRejectsUnsupportedVersion(t *testing.T) {
	signer := mustSigner(t, 0x16)
	p, err := Sign(signer, peerAddr, 7)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	p.PayloadVersion = 2
	if Verify(p, peerAddr, signer.Address()) {
		t.Fatalf("unsupported payload version must fail verification")
	}
	p.PayloadVersion = 0
	if Verify(p, peerAddr, signer.Address()) {
		t.Fatalf("zero payload version must fail verification")
	}
}

func TestVerifyNeverPanicsOnGarbage(t *testing.T) {
	signer := mustSigner(t, 0x17)

	cases := []Proof{
		{},
		{Signature: []byte{0x01}, PayloadVersion: PayloadVersion1},
		{Signature: make([]byte, keys.SignatureSize), PayloadVersion: PayloadVersion1},
		{Signature: []byte(strings.Repeat("x", 1024)), PayloadVersion: PayloadVersion1},
	}
	for i, p := range cases {
		if Verify(p, peerAddr, signer.Address()) {
			t.Fatalf("case %d: garbage proof must not verify", i)
		}
	}

	// Invalid peer addresses resolve to false, silently.
	p, err := Sign(signer, peerAddr, 7)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify(p, "not-an-address", signer.Address()) {
		t.Fatalf("invalid peer address must not verify")
	}
	if Verify(p, peerAddr, "") {
		t.Fatalf("empty expected signer must not verify")
	}
}

func TestSignRejectsInvalidPeer(t *testing.T) {
	signer := mustSigner(t, 0x18)
	if _, err := Sign(signer, "0x123", 7); err == nil {
		t.Fatalf("expected error for invalid peer address")
	}
}

func TestConsentMessageDeterministic(t *testing.T) {
	a := ConsentMessage(peerAddr, 1000)
	b := ConsentMessage(peerAddr, 1000)
	if a != b {
		t.Fatalf("canonical message must be deterministic")
	}
	if a == ConsentMessage(peerAddr, 1001) {
		t.Fatalf("canonical message must bind the timestamp")
	}
	if !strings.Contains(a, peerAddr) {
		t.Fatalf("canonical message must bind the peer address")
	}
}
