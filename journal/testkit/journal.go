// Package testkit provides the conformance suite every journal backend must
// pass.
package testkit

import (
	"context"
	"testing"
	"time"

	"xdao.co/consent/consent"
	"xdao.co/consent/journal"
	"xdao.co/consent/keys"
)

const (
	peerA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	peerB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// SignerA and SignerB are the deterministic identities the conformance suite
// publishes under. Signer-authenticated backends need their keys, not just
// their addresses, to wire up a conforming harness.
func SignerA(tb testing.TB) *keys.LocalSigner { return seedSigner(tb, 0x01) }

func SignerB(tb testing.TB) *keys.LocalSigner { return seedSigner(tb, 0x02) }

func seedSigner(tb testing.TB, seedByte byte) *keys.LocalSigner {
	tb.Helper()
	seed := make([]byte, keys.SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}
	s, err := keys.NewSignerFromSeed(seed)
	if err != nil {
		tb.Fatalf("NewSignerFromSeed: %v", err)
	}
	return s
}

// NewJournal constructs a fresh, empty journal instance for a test.
// The returned journal MUST be isolated from other tests and MUST accept
// publishes for the SignerA and SignerB identities.
type NewJournal func(t *testing.T) journal.Journal

// RunJournalConformance exercises the journal contract against newJournal.
func RunJournalConformance(t *testing.T, newJournal NewJournal) {
	t.Helper()
	ctx := context.Background()
	identityA := SignerA(t).Address()
	identityB := SignerB(t).Address()

	t.Run("EmptyHistory", func(t *testing.T) {
		j := newJournal(t)
		got, err := j.FetchAll(ctx, identityA)
		if err != nil {
			t.Fatalf("FetchAll: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("fresh journal must be empty, got %d entries", len(got))
		}
	})

	t.Run("PublishOrderIsFetchOrder", func(t *testing.T) {
		j := newJournal(t)
		want := []consent.Entry{
			consent.DenyEntry(peerA),
			consent.AllowEntry(peerB),
			consent.AllowEntry(peerA),
			consent.DenyEntry(peerB),
			consent.DenyEntry(peerA),
			consent.AllowEntry(peerB),
		}
		// Split across publishes: relative publish order must also hold.
		if err := j.Publish(ctx, identityA, want[:2]); err != nil {
			t.Fatalf("Publish(1): %v", err)
		}
		if err := j.Publish(ctx, identityA, want[2:]); err != nil {
			t.Fatalf("Publish(2): %v", err)
		}

		got, err := j.FetchAll(ctx, identityA)
		if err != nil {
			t.Fatalf("FetchAll: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("history length: got %d want %d (undeduplicated)", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("entry %d: got %+v want %+v", i, got[i], want[i])
			}
		}
	})

	t.Run("FetchAllIsIdempotent", func(t *testing.T) {
		j := newJournal(t)
		if err := j.Publish(ctx, identityA, []consent.Entry{consent.AllowEntry(peerA)}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		first, err := j.FetchAll(ctx, identityA)
		if err != nil {
			t.Fatalf("FetchAll(1): %v", err)
		}
		second, err := j.FetchAll(ctx, identityA)
		if err != nil {
			t.Fatalf("FetchAll(2): %v", err)
		}
		if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
			t.Fatalf("repeated FetchAll must return the same history")
		}
	})

	t.Run("IdentitiesAreIsolated", func(t *testing.T) {
		j := newJournal(t)
		if err := j.Publish(ctx, identityA, []consent.Entry{consent.AllowEntry(peerA)}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		got, err := j.FetchAll(ctx, identityB)
		if err != nil {
			t.Fatalf("FetchAll: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("identityB must not observe identityA's log")
		}
	})

	t.Run("InvalidIdentityRejected", func(t *testing.T) {
		j := newJournal(t)
		err := j.Publish(ctx, "not-an-address", []consent.Entry{consent.AllowEntry(peerA)})
		if err == nil {
			t.Fatalf("expected error for invalid identity")
		}
	})

	t.Run("SubscribeDeliversOwnPublishesInOrder", func(t *testing.T) {
		j := newJournal(t)
		sub, err := j.Subscribe(ctx, identityA)
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		defer sub.Close()

		want := []consent.Entry{
			consent.AllowEntry(peerA),
			consent.DenyEntry(peerA),
			consent.AllowEntry(peerB),
		}
		if err := j.Publish(ctx, identityA, want); err != nil {
			t.Fatalf("Publish: %v", err)
		}

		for i := range want {
			select {
			case got, ok := <-sub.C():
				if !ok {
					t.Fatalf("feed closed after %d of %d entries (err=%v)", i, len(want), sub.Err())
				}
				if got != want[i] {
					t.Fatalf("delivery %d: got %+v want %+v", i, got, want[i])
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("timed out waiting for delivery %d", i)
			}
		}
	})

	t.Run("CloseStopsDelivery", func(t *testing.T) {
		j := newJournal(t)
		sub, err := j.Subscribe(ctx, identityA)
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		if err := sub.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		// Idempotent.
		if err := sub.Close(); err != nil {
			t.Fatalf("Close(2): %v", err)
		}

		if err := j.Publish(ctx, identityA, []consent.Entry{consent.AllowEntry(peerA)}); err != nil {
			t.Fatalf("Publish after close: %v", err)
		}

		select {
		case _, ok := <-sub.C():
			if ok {
				t.Fatalf("closed subscription must not deliver")
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("feed channel must close after Close")
		}
		if err := sub.Err(); err != nil {
			t.Fatalf("clean Close must not record an error, got %v", err)
		}
	})

	t.Run("ContextCancelReleasesSubscription", func(t *testing.T) {
		j := newJournal(t)
		subCtx, cancel := context.WithCancel(ctx)
		sub, err := j.Subscribe(subCtx, identityA)
		if err != nil {
			cancel()
			t.Fatalf("Subscribe: %v", err)
		}
		cancel()

		deadline := time.After(5 * time.Second)
		for {
			select {
			case _, ok := <-sub.C():
				if !ok {
					return
				}
			case <-deadline:
				t.Fatalf("feed channel must close after context cancellation")
			}
		}
	})

	t.Run("EarlyBreakThenCloseDoesNotLeak", func(t *testing.T) {
		j := newJournal(t)
		sub, err := j.Subscribe(ctx, identityA)
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}

		many := make([]consent.Entry, 0, 64)
		for i := 0; i < 64; i++ {
			many = append(many, consent.AllowEntry(peerA))
		}
		if err := j.Publish(ctx, identityA, many); err != nil {
			t.Fatalf("Publish: %v", err)
		}

		// Consume one entry, then walk away.
		select {
		case <-sub.C():
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for first delivery")
		}
		if err := sub.Close(); err != nil {
			t.Fatalf("Close after early break: %v", err)
		}

		// Publishing afterwards must still succeed promptly.
		done := make(chan error, 1)
		go func() { done <- j.Publish(ctx, identityA, []consent.Entry{consent.DenyEntry(peerA)}) }()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Publish after abandoned subscription: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Publish blocked by abandoned subscription")
		}
	})
}
