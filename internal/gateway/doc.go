// Package gateway wires configuration into a running gateway: the
// backend client, security gate, session registry, correlator, delivery
// queue, optional push event stream, and the admin HTTP API.
package gateway
