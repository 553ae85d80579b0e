package client

import (
	"context"

	"xdao.co/consent/consent"
	"xdao.co/consent/proofs"
)

// Invitation is what the messaging layer observed from a new conversation:
// the peer who initiated it, plus an optional consent proof the peer embedded
// as evidence that this identity previously consented to hear from them.
type Invitation struct {
	PeerAddress string
	Proof       *proofs.Proof
}

// ResolveInvitation applies the precedence rule for a newly observed
// invitation and returns the peer's resulting state.
//
// Contract:
//   - An explicit Allowed or Denied state wins unconditionally. The proof is
//     ignored even when present and valid.
//   - When the peer is Unknown and the invitation carries a proof signed by
//     this identity over the peer's address, the peer becomes Allowed.
//   - Otherwise the peer stays Unknown. Resolution never publishes: proof
//     inference is local, and a later explicit entry overwrites it on replay.
func (c *Client) ResolveInvitation(inv Invitation) consent.State {
	state := c.store.Get(inv.PeerAddress)
	if state != consent.StateUnknown {
		return state
	}
	if inv.Proof == nil {
		return consent.StateUnknown
	}
	if !proofs.Verify(*inv.Proof, inv.PeerAddress, c.signer.Address()) {
		return consent.StateUnknown
	}
	c.store.ApplyProof(inv.PeerAddress)
	return c.store.Get(inv.PeerAddress)
}

// StartConversation records the consent implied by initiating a conversation
// with peer: an explicit Allowed entry, published like any other.
func (c *Client) StartConversation(ctx context.Context, peer string) error {
	return c.Allow(ctx, peer)
}

// RecordOutboundMessage records the consent implied by sending the first
// message into a conversation whose peer is still Unknown. Peers already
// Allowed or Denied are left untouched.
func (c *Client) RecordOutboundMessage(ctx context.Context, peer string) error {
	if c.store.Get(peer) != consent.StateUnknown {
		return nil
	}
	return c.Allow(ctx, peer)
}
