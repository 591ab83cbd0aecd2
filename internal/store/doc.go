// Package store provides the SQLite-backed audit trail. Session,
// pairing and allowlist state live in flat JSON files owned by their
// packages; only the append-only audit log needs a real database.
package store
