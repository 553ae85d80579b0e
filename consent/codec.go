package consent

import (
	"bytes"
	"encoding/json"
)

// EncodeEntries returns the canonical JSON history encoding: a single-line
// JSON array of entry objects in the given order.
//
// The encoding is deterministic: struct field order is fixed and no
// indentation or HTML escaping is applied, so equal histories always produce
// equal bytes (and therefore equal CIDs).
func EncodeEntries(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		return nil, wrapError(KindCodec, "CONSENT-CODEC-001", "encode entries", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeEntries parses a canonical JSON history.
//
// Unknown entry or permission types are preserved as-is: filtering is the
// fold's job, not the codec's.
func DecodeEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, wrapError(KindCodec, "CONSENT-CODEC-002", "decode entries", err)
	}
	return entries, nil
}
