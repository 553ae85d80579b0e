package consent

import (
	"fmt"
	"strings"
)

// State classifies whether the local identity accepts messages from a peer.
//
// StateUnknown is the zero value and is never stored explicitly: it is the
// absence of any journal entry (or proof inference) for the peer.
type State uint8

const (
	StateUnknown State = iota
	StateAllowed
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateAllowed:
		return "allowed"
	case StateDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Permission is the wire-level permission carried by a journal entry.
//
// Unlike State it has no "unknown" member: absence of consent is expressed by
// publishing nothing, never by an entry.
type Permission string

const (
	PermissionAllowed Permission = "allowed"
	PermissionDenied  Permission = "denied"
)

// State maps a wire permission to a store state.
// Unrecognized permissions map to StateUnknown and are skipped during fold.
func (p Permission) State() State {
	switch p {
	case PermissionAllowed:
		return StateAllowed
	case PermissionDenied:
		return StateDenied
	default:
		return StateUnknown
	}
}

// EntryTypeAddress is the only entry type this version understands.
// Entries with other types are preserved in raw history but ignored by the fold.
const EntryTypeAddress = "address"

// Entry is one immutable element of a consent journal.
//
// Entries are never edited or deleted, only appended; the current state for a
// peer is derived by folding entries in journal order.
type Entry struct {
	EntryType  string     `json:"entryType"`
	Permission Permission `json:"permissionType"`
	Value      string     `json:"value"`
}

// AllowEntry returns an address entry granting consent to addr.
// addr must already be in canonical form.
func AllowEntry(addr string) Entry {
	return Entry{EntryType: EntryTypeAddress, Permission: PermissionAllowed, Value: addr}
}

// DenyEntry returns an address entry revoking consent from addr.
// addr must already be in canonical form.
func DenyEntry(addr string) Entry {
	return Entry{EntryType: EntryTypeAddress, Permission: PermissionDenied, Value: addr}
}

// Foldable reports whether the fold understands this entry.
//
// Forward compatibility: journals may carry entry or permission types added by
// newer versions; those entries replay as no-ops here instead of aborting.
func (e Entry) Foldable() bool {
	return e.EntryType == EntryTypeAddress && e.Permission.State() != StateUnknown && e.Value != ""
}

// CanonicalAddress validates addr and returns its canonical form
// (0x + 40 lowercase hex).
func CanonicalAddress(addr string) (string, error) {
	a := strings.TrimSpace(addr)
	if len(a) != 42 || a[0] != '0' || (a[1] != 'x' && a[1] != 'X') {
		return "", newError(KindAddress, "CONSENT-ADDR-001", fmt.Sprintf("invalid address %q: want 0x + 40 hex chars", addr))
	}
	for _, c := range a[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return "", newError(KindAddress, "CONSENT-ADDR-002", fmt.Sprintf("invalid address %q: non-hex character %q", addr, c))
		}
	}
	return strings.ToLower(a), nil
}

// Normalize lowercases and trims addr without validating it. It is the
// equality key for peers and identities: intentionally looser than
// CanonicalAddress, because replayed journals may contain addresses this
// version would reject on input, and they still occupy a register.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func foldKey(addr string) string {
	return Normalize(addr)
}
