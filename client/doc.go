// Package client is the consent-list surface the messaging layer talks to.
//
// A Client folds one identity's replicated consent journal into an in-memory
// store and keeps the two in step: local Allow/Deny actions are published to
// the journal before they mutate local state, refreshes replay the full
// authoritative history, and streams merge live entries as they land.
// Invitation resolution applies the precedence rule between explicit journal
// state and proof-derived inference.
package client
