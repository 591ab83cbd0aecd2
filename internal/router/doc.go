// Package router orchestrates the per-message pipeline: inbound
// deduplication, the access gate, session resolution, backend response
// correlation, and handoff to the reliable delivery queue.
//
// Denials are answered directly through the platform adapter without
// touching the backend. Empty correlation results (silent completions
// and timeouts) deliver nothing by design.
package router
