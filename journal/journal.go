// Package journal defines the append-only, per-identity consent log and the
// transport-facing interfaces for publishing to it, replaying it, and
// streaming it live.
package journal

import (
	"context"

	"xdao.co/consent/consent"
)

// Journal is a durable, totally ordered, per-identity consent log.
//
// Contract:
// - Entries are append-only: never edited, never deleted, never reordered.
// - Publish MUST preserve the caller's entry order, and the relative order of
//   successful Publish calls is the order observed by FetchAll and Subscribe.
// - On Publish failure nothing is appended; the caller treats the consent as
//   not yet recorded.
// - FetchAll MUST return the complete, undeduplicated history from the
//   beginning on every call. It is idempotent and means authoritative
//   resynchronization, not an incremental delta.
// - Subscribe delivers entries in durable publish order, including entries
//   produced by this process's own Publish calls.
type Journal interface {
	Publish(ctx context.Context, identity string, entries []consent.Entry) error
	FetchAll(ctx context.Context, identity string) ([]consent.Entry, error)
	Subscribe(ctx context.Context, identity string) (Subscription, error)
}

// Subscription is an explicit handle on a live entry feed.
//
// Contract:
// - C yields entries in durable publish order. The channel is closed when the
//   subscription ends, whether by Close, context cancellation, or transport
//   failure.
// - Close stops further delivery and releases the underlying feed
//   deterministically. It is idempotent and safe to call from any goroutine,
//   including while a consumer is blocked on C. Callers MUST Close on every
//   exit path, including early breaks: leaked subscriptions exhaust transport
//   resources.
// - Err reports why delivery stopped; nil after a clean Close.
type Subscription interface {
	C() <-chan consent.Entry
	Err() error
	Close() error
}
