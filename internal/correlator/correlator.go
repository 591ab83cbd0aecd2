// ABOUTME: Poll-based correlation of a submitted prompt to its eventual completion.
// ABOUTME: Primary response path; the push event stream is only a best-effort backup.

package correlator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/hearth-gateway/internal/backend"
)

// Backend is the slice of the backend client the correlator needs.
type Backend interface {
	SendPrompt(ctx context.Context, conversationID, text string) error
	ListMessages(ctx context.Context, conversationID string) ([]backend.Message, error)
}

// Correlator fires prompts at the backend and polls the conversation's
// message list until the completion heuristic or the deadline fires.
type Correlator struct {
	backend      Backend
	pollInterval time.Duration
	timeout      time.Duration
	logger       *slog.Logger
}

// New creates a correlator polling at pollInterval with the given
// per-attempt deadline.
func New(b Backend, pollInterval, timeout time.Duration, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		backend:      b,
		pollInterval: pollInterval,
		timeout:      timeout,
		logger:       logger.With("component", "correlator"),
	}
}

// SendAndWait submits prompt to the conversation and polls until the
// exchange completes, silently completes, or the deadline elapses.
// Timeouts and silent completions both return empty text and a nil
// error; they are valid outcomes, not failures. Transient polling
// errors are swallowed and the loop continues with state intact.
func (c *Correlator) SendAndWait(ctx context.Context, conversationID, prompt string) (Result, error) {
	// Record the baseline before submitting so the prompt's own echo and
	// everything after it count as new.
	baseline := 0
	if msgs, err := c.backend.ListMessages(ctx, conversationID); err != nil {
		c.logger.Warn("baseline fetch failed, assuming empty conversation",
			"conversation_id", conversationID, "error", err)
	} else {
		baseline = len(msgs)
	}

	if err := c.backend.SendPrompt(ctx, conversationID, prompt); err != nil {
		return Result{}, fmt.Errorf("submitting prompt: %w", err)
	}

	state := pollState{baseline: baseline, lastNewCount: -1}
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{Status: StatusTimedOut}, ctx.Err()

		case <-deadline.C:
			c.logger.Warn("correlation timed out",
				"conversation_id", conversationID,
				"timeout", c.timeout,
			)
			return Result{Status: StatusTimedOut}, nil

		case <-ticker.C:
			msgs, err := c.backend.ListMessages(ctx, conversationID)
			if err != nil {
				// Transient: keep the deadline and stability counter
				c.logger.Debug("poll failed, continuing",
					"conversation_id", conversationID, "error", err)
				continue
			}

			state = advance(state, msgs)
			if !state.done {
				continue
			}

			switch state.result.Status {
			case StatusCompleted:
				c.logger.Debug("correlation completed",
					"conversation_id", conversationID,
					"text_len", len(state.result.Text),
				)
			case StatusCompletedEmpty:
				c.logger.Info("exchange completed with tool calls only",
					"conversation_id", conversationID)
			}
			return state.result, nil
		}
	}
}
