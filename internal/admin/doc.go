// Package admin is the operator-facing HTTP surface: approving pairing
// codes, listing and resetting sessions, and tailing the audit trail.
// Every /api route requires a bearer credential; /health does not.
package admin
