// Package security implements the per-sender access control gate.
//
// The gate composes three stateful collaborators — pairing issuance, the
// allowlist, and a sliding-window rate limiter — into a single ordered
// decision evaluated once per inbound message. Pairing and allowlist
// state persist to flat JSON files; rate windows are in-memory only.
package security
