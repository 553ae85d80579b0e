package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"xdao.co/consent/consent"
	"xdao.co/consent/keys"
)

// Envelope is a signed publish request: the proof that the writer owns the
// journal it is appending to.
//
// PublishedAt is the signer's wall clock in milliseconds. It is informational
// only: journal order is the order of successful publication as observed by
// the server, never a client clock.
type Envelope struct {
	Identity    string          `json:"identity"`
	Entries     []consent.Entry `json:"entries"`
	PublishedAt int64           `json:"publishedAt"`
	Signature   []byte          `json:"signature,omitempty"`
}

// Seal builds and signs an envelope appending entries to signer's own journal.
func Seal(signer keys.Signer, entries []consent.Entry, publishedAt int64) (Envelope, error) {
	if signer == nil {
		return Envelope{}, fmt.Errorf("%w: nil signer", ErrBadEnvelope)
	}
	identity, err := consent.CanonicalAddress(signer.Address())
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	env := Envelope{Identity: identity, Entries: entries, PublishedAt: publishedAt}
	signed, err := env.SignedBytes()
	if err != nil {
		return Envelope{}, err
	}
	sig, err := signer.Sign(signed)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	env.Signature = sig
	return env, nil
}

// SignedBytes returns the canonical bytes covered by the signature: the
// envelope's canonical JSON with the signature field absent.
func (e Envelope) SignedBytes() ([]byte, error) {
	unsigned := e
	unsigned.Signature = nil
	return encodeCanonical(unsigned)
}

// Verify checks that the envelope's signature recovers to its identity.
// It returns ErrNotOwner when a valid signature was made by someone else,
// and ErrBadEnvelope for anything malformed.
func (e Envelope) Verify() error {
	if _, err := consent.CanonicalAddress(e.Identity); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	signed, err := e.SignedBytes()
	if err != nil {
		return err
	}
	recovered, err := keys.RecoverAddress(signed, e.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if !strings.EqualFold(recovered, e.Identity) {
		return ErrNotOwner
	}
	return nil
}

// EncodeEnvelope returns the canonical wire bytes of a sealed envelope.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	return encodeCanonical(e)
}

// DecodeEnvelope parses wire bytes produced by EncodeEnvelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	return e, nil
}

// History is the FetchAll wire document: the full ordered history plus the
// CID of its canonical entry encoding, recomputed and checked by the reader.
type History struct {
	Identity string          `json:"identity"`
	Entries  []consent.Entry `json:"entries"`
	CID      string          `json:"cid"`
}

// NewHistory builds a history document for identity, stamping the CID of the
// canonical entry encoding.
func NewHistory(identity string, entries []consent.Entry) (History, error) {
	canon, err := consent.EncodeEntries(entries)
	if err != nil {
		return History{}, err
	}
	id, err := BytesCID(canon)
	if err != nil {
		return History{}, err
	}
	return History{Identity: identity, Entries: entries, CID: id.String()}, nil
}

// CheckIntegrity recomputes the history CID and compares it to the stamp.
func (h History) CheckIntegrity() error {
	canon, err := consent.EncodeEntries(h.Entries)
	if err != nil {
		return err
	}
	id, err := BytesCID(canon)
	if err != nil {
		return err
	}
	if id.String() != h.CID {
		return ErrIntegrity
	}
	return nil
}

// EncodeHistory returns the canonical wire bytes of a history document.
func EncodeHistory(h History) ([]byte, error) {
	return encodeCanonical(h)
}

// DecodeHistory parses wire bytes produced by EncodeHistory.
func DecodeHistory(data []byte) (History, error) {
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return History{}, fmt.Errorf("journal: bad history document: %w", err)
	}
	return h, nil
}

func encodeCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
