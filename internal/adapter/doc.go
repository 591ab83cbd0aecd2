// Package adapter defines the contract between the gateway core and
// per-platform message adapters, which are out of scope here and plug
// in from outside. It also provides markdown-to-HTML formatting for
// adapters that deliver rich text.
package adapter
