// Package consent defines the consent data model and the in-memory consent
// state store.
//
// Protocol identity lives in the per-identity consent journal (an append-only,
// totally ordered sequence of entries). The store never persists anything: it
// is a pure fold of journal order, last entry per peer wins, and Unknown is
// the absence of a mapping rather than a stored value.
package consent
