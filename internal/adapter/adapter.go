// ABOUTME: Platform adapter contract consumed by the router and delivery queue.
// ABOUTME: Concrete adapters (Telegram, Matrix, ...) live outside this repository.

package adapter

import (
	"context"
	"time"
)

// InboundMessage is a normalized message event from a platform adapter.
type InboundMessage struct {
	ID         string
	ChannelID  string
	SenderID   string
	SenderName string
	ChatID     string
	ChatType   string // "dm" or "group"
	Text       string
	Timestamp  time.Time
}

// SendRequest addresses one outbound text message.
type SendRequest struct {
	To        string // chat id on the platform
	Text      string
	ReplyToID string
}

// Adapter is the surface a platform integration must implement.
// SendTyping is best-effort; adapters without a typing concept return nil.
type Adapter interface {
	Name() string
	SendText(ctx context.Context, req SendRequest) (messageID string, err error)
	SendTyping(ctx context.Context, to string) error

	// SupportsHTML reports whether SendText expects rendered HTML.
	// Backend replies are markdown; see RenderHTML.
	SupportsHTML() bool
}
