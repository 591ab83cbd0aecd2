// Package queue implements the reliable outbound delivery queue:
// bounded FIFO, drop-oldest back pressure, bounded retries with
// jittered exponential backoff, and a Drain for graceful shutdown.
// Delivery is at-least-once; platform-side idempotency is assumed.
package queue
