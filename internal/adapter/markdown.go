// ABOUTME: Markdown rendering for adapters that deliver HTML.
// ABOUTME: Backend replies are markdown; plain-text adapters get them untouched.

package adapter

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
)

// RenderHTML converts a markdown reply to HTML.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// FormatFor prepares a backend reply for the given adapter: rendered
// HTML when the adapter asks for it, the raw markdown text otherwise.
// A render failure falls back to the raw text rather than losing the reply.
func FormatFor(a Adapter, text string) string {
	if a == nil || !a.SupportsHTML() {
		return text
	}
	html, err := RenderHTML(text)
	if err != nil {
		return text
	}
	return html
}
