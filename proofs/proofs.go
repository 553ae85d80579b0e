// Package proofs builds and verifies consent proofs: signature-backed
// attestations, embedded in conversation invitations by the inviter, that the
// invitee previously consented to receive messages from them.
//
// A proof is out-of-band evidence, not a journal entry. It can only ever
// support an Allowed inference; explicit journal state always outranks it.
package proofs

import (
	"fmt"
	"strings"

	"xdao.co/consent/consent"
	"xdao.co/consent/keys"
)

// PayloadVersion1 is the only payload version this verifier understands.
// Proofs carrying other versions fail verification rather than erroring.
const PayloadVersion1 = 1

// Proof is the wire shape carried on an invitation payload.
//
// Timestamp is the millisecond epoch time the attestation was signed. It is
// part of the signed canonical message: a proof whose declared timestamp
// differs from the one actually signed reconstructs a different message, so
// recovery yields the wrong identity and verification fails.
type Proof struct {
	Signature      []byte `json:"signature"`
	Timestamp      int64  `json:"timestamp"`
	PayloadVersion int    `json:"payloadVersion"`
}

// ConsentMessage deterministically encodes a proof subject into the exact
// string that is signed and verified. peerAddress must be canonical.
func ConsentMessage(peerAddress string, timestampMs int64) string {
	return fmt.Sprintf(
		"XDAO Messenger : Grant inbox consent to sender\n\nCurrent Time: %d\nFrom Address: %s\n",
		timestampMs, peerAddress,
	)
}

// Sign produces a consent proof for receiving messages from peerAddress,
// signed by the local identity at timestampMs.
func Sign(signer keys.Signer, peerAddress string, timestampMs int64) (Proof, error) {
	addr, err := consent.CanonicalAddress(peerAddress)
	if err != nil {
		return Proof{}, err
	}
	sig, err := signer.Sign([]byte(ConsentMessage(addr, timestampMs)))
	if err != nil {
		return Proof{}, err
	}
	return Proof{Signature: sig, Timestamp: timestampMs, PayloadVersion: PayloadVersion1}, nil
}

// Verify reports whether p is a valid consent attestation for peerAddress
// signed by expectedSigner.
//
// It rebuilds the canonical message from peerAddress and the timestamp
// carried in the proof, recovers the signer identity from the signature, and
// compares it to expectedSigner case-insensitively.
//
// Verify never returns an error: a wrong signer, unsupported version, or
// malformed signature all yield false. Absence of proof of consent is the
// safe default, not an exceptional condition.
func Verify(p Proof, peerAddress, expectedSigner string) bool {
	if p.PayloadVersion != PayloadVersion1 {
		return false
	}
	if expectedSigner == "" {
		return false
	}
	addr, err := consent.CanonicalAddress(peerAddress)
	if err != nil {
		return false
	}
	recovered, err := keys.RecoverAddress([]byte(ConsentMessage(addr, p.Timestamp)), p.Signature)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered, strings.TrimSpace(expectedSigner))
}
