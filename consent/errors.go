package consent

// Kind is a stable category for programmatic error handling.
//
// These categories are intended to remain stable across versions.
// Callers should branch on Kind/RuleID rather than matching error strings.
type Kind string

const (
	KindAddress Kind = "Address"
	KindEntry   Kind = "Entry"
	KindCodec   Kind = "Codec"
)

// Error is the package's structured error type.
//
// RuleID is a stable identifier (e.g., CONSENT-ADDR-001) that names the
// violated invariant. Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}
