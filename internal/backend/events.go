// ABOUTME: Websocket subscription to backend push events with auto-reconnect.
// ABOUTME: Returns an explicit subscription handle instead of global emitter registration.

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/websocket"
)

// EventType identifies a backend push event.
type EventType string

const (
	// EventPartUpdated carries a partial update of the assistant's reply.
	EventPartUpdated EventType = "part_updated"
	// EventIdle signals that generation for a conversation has completed.
	EventIdle EventType = "idle"
	// EventError signals the conversation errored; no reply will follow.
	EventError EventType = "error"
)

// Event is one typed push event scoped by conversation id.
// A part_updated event carries either a Delta (append) or, when Delta is
// empty, a Snapshot that replaces everything accumulated so far — the
// backend alternates between cumulative snapshots and incremental deltas.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversationId"`
	Channel        string    `json:"channel"` // "text" or "reasoning"
	Delta          string    `json:"delta,omitempty"`
	Snapshot       string    `json:"snapshot,omitempty"`
	Message        string    `json:"message,omitempty"` // error detail
}

// Reconnect backoff bounds for the event stream.
const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// Subscription is a live event stream. Events arrives until Close is
// called or the parent context is cancelled; the underlying connection
// self-heals with exponential backoff on drops.
type Subscription struct {
	Events <-chan Event

	cancel context.CancelFunc
	done   chan struct{}
}

// Close tears down the subscription and waits for the stream loop to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Subscribe opens the push event stream at url and returns a handle.
// The stream runs until the handle is closed or ctx is cancelled.
func Subscribe(ctx context.Context, url string, logger *slog.Logger) *Subscription {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "backend-events")

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan Event, 64)

	sub := &Subscription{
		Events: events,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		defer close(events)
		streamLoop(ctx, url, events, logger)
	}()

	return sub
}

// streamLoop dials the stream and re-dials on failure. A clean stream end
// resets the backoff to base; repeated failures double it up to the cap.
func streamLoop(ctx context.Context, url string, events chan<- Event, logger *slog.Logger) {
	delay := reconnectBase

	for {
		err := readStream(ctx, url, events)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			logger.Warn("event stream dropped, reconnecting", "error", err, "retry_in", delay)
		} else {
			// Clean end: reconnect promptly and start backoff over
			delay = reconnectBase
			logger.Debug("event stream ended cleanly, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > reconnectMax {
			delay = reconnectMax
		}
	}
}

// readStream runs one websocket connection until it ends.
// Returns nil on a clean close, an error otherwise.
func readStream(ctx context.Context, url string, events chan<- Event) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "subscription closed")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			// Malformed frame: skip it, the stream itself is fine
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}
