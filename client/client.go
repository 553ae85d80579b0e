package client

import (
	"context"
	"errors"
	"sync"

	"xdao.co/consent/consent"
	"xdao.co/consent/journal"
	"xdao.co/consent/keys"
)

// Client manages the consent list of a single identity.
//
// Contract:
//   - Allow and Deny publish to the journal first and fold into the local
//     store only after the publish succeeds. A failed publish leaves local
//     state untouched.
//   - Publishes are serialized: concurrent Allow/Deny calls reach the journal
//     in a total order, and the store folds them in that same order.
//   - State queries never block on an in-flight publish or fold.
type Client struct {
	signer  keys.Signer
	journal journal.Journal
	store   *consent.Store

	// pubMu orders publishes and their local folds.
	pubMu sync.Mutex
}

// New builds a client for signer's own consent journal. The local store
// starts empty; call RefreshConsentList to load the replicated history.
func New(signer keys.Signer, j journal.Journal) (*Client, error) {
	if signer == nil {
		return nil, errors.New("client: nil signer")
	}
	if j == nil {
		return nil, errors.New("client: nil journal")
	}
	if _, err := consent.CanonicalAddress(signer.Address()); err != nil {
		return nil, err
	}
	return &Client{signer: signer, journal: j, store: consent.NewStore()}, nil
}

// Address returns the identity whose consent list this client manages.
func (c *Client) Address() string {
	return consent.Normalize(c.signer.Address())
}

// Allow records that messages from peers are accepted.
func (c *Client) Allow(ctx context.Context, peers ...string) error {
	return c.record(ctx, consent.AllowEntry, peers)
}

// Deny records that messages from peers are rejected.
func (c *Client) Deny(ctx context.Context, peers ...string) error {
	return c.record(ctx, consent.DenyEntry, peers)
}

func (c *Client) record(ctx context.Context, entry func(string) consent.Entry, peers []string) error {
	if len(peers) == 0 {
		return nil
	}
	entries := make([]consent.Entry, 0, len(peers))
	for _, p := range peers {
		addr, err := consent.CanonicalAddress(p)
		if err != nil {
			return err
		}
		entries = append(entries, entry(addr))
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if err := c.journal.Publish(ctx, c.signer.Address(), entries); err != nil {
		return err
	}
	c.store.Apply(entries)
	return nil
}

// ConsentState reports the current state for peer, defaulting to Unknown.
func (c *Client) ConsentState(peer string) consent.State {
	return c.store.Get(peer)
}

// IsAllowed reports whether peer is explicitly or proof-derived Allowed.
func (c *Client) IsAllowed(peer string) bool {
	return c.store.Get(peer) == consent.StateAllowed
}

// IsDenied reports whether peer is explicitly Denied.
func (c *Client) IsDenied(peer string) bool {
	return c.store.Get(peer) == consent.StateDenied
}

// RefreshConsentList fetches the complete journal history, replays it into
// the store, and returns the raw ordered entries. Explicit entries in the
// history overwrite any proof-derived state for the same peers.
func (c *Client) RefreshConsentList(ctx context.Context) ([]consent.Entry, error) {
	entries, err := c.journal.FetchAll(ctx, c.signer.Address())
	if err != nil {
		return nil, err
	}
	c.store.Apply(entries)
	return entries, nil
}

// StreamConsentList subscribes to the identity's journal and folds every
// delivered entry into the store before handing it to the caller. Close the
// returned subscription on every exit path.
func (c *Client) StreamConsentList(ctx context.Context) (journal.Subscription, error) {
	inner, err := c.journal.Subscribe(ctx, c.signer.Address())
	if err != nil {
		return nil, err
	}
	s := &storeSubscription{
		inner: inner,
		store: c.store,
		ch:    make(chan consent.Entry),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

// storeSubscription folds entries into the store before forwarding them, so
// a consumer that queries state after a delivery sees that delivery applied.
type storeSubscription struct {
	inner journal.Subscription
	store *consent.Store
	ch    chan consent.Entry
	done  chan struct{}

	closeOnce sync.Once
}

var _ journal.Subscription = (*storeSubscription)(nil)

func (s *storeSubscription) C() <-chan consent.Entry { return s.ch }

func (s *storeSubscription) Err() error { return s.inner.Err() }

func (s *storeSubscription) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.inner.Close()
}

func (s *storeSubscription) loop() {
	defer close(s.ch)
	for e := range s.inner.C() {
		s.store.Apply([]consent.Entry{e})
		select {
		case s.ch <- e:
		case <-s.done:
			return
		}
	}
}
