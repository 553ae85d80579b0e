// Package keys provides the signer capability used by the consent core.
//
// API stability:
//
// Stable (SemVer-protected):
//   - Pure, deterministic primitives: message digests, address derivation,
//     signature recovery, and seed derivation.
//
// Experimental:
//   - Filesystem-backed key storage and convenience helpers (KeyStore and
//     related functions). These are local-first utilities for the CLI and are
//     not part of the long-term protocol contract.
package keys
