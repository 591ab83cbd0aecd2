// ABOUTME: Pure poll-advance heuristic deciding when a backend exchange is complete.
// ABOUTME: Approximates an unreliable external "done" signal; thresholds are literal constants.

package correlator

import (
	"strings"

	"github.com/2389/hearth-gateway/internal/backend"
)

// Heuristic constants. These approximate an external, best-effort
// completion signal and must move together if ever retuned.
const (
	// stablePollThreshold is how many consecutive polls the new-message
	// count must hold still, with the assistant finished but no usable
	// text, before the exchange counts as silently completed.
	stablePollThreshold = 3

	// interruptionSentinel is the backend's marker for an interrupted
	// turn; it is never a usable reply.
	interruptionSentinel = "[Request interrupted by user]"

	roleAssistant = "assistant"
)

// Status is the terminal classification of one correlation attempt.
type Status int

const (
	// StatusCompleted means a usable assistant reply was found.
	StatusCompleted Status = iota
	// StatusCompletedEmpty means the exchange finished with tool-call
	// artifacts only. A valid outcome, not an error.
	StatusCompletedEmpty
	// StatusTimedOut means the deadline elapsed with no completion.
	StatusTimedOut
)

// Result is the outcome of one correlation attempt. Text is empty for
// StatusCompletedEmpty and StatusTimedOut.
type Result struct {
	Status Status
	Text   string
}

// pollState carries the heuristic state between polls of one attempt.
type pollState struct {
	// baseline is the message count recorded before the prompt was
	// submitted; only entries past it are "new".
	baseline int

	// lastNewCount and stableCount track the silent-completion check.
	lastNewCount int
	stableCount  int

	done   bool
	result Result
}

// advance folds one poll result into the state. Pure: no clocks, no IO.
//
// The rules, in order:
//   - No new messages yet: nothing to decide.
//   - Newest new message is an assistant placeholder without content
//     parts: still generating, do not extract text yet.
//   - First assistant message (scanning newest to oldest) with non-empty,
//     non-sentinel text completes the attempt with that text.
//   - Otherwise, if the new-message count held still while the assistant
//     finished with content parts but produced no usable text, bump the
//     stability counter; at stablePollThreshold the exchange is a silent
//     completion.
func advance(prev pollState, msgs []backend.Message) pollState {
	next := prev
	if next.done {
		return next
	}

	if len(msgs) <= prev.baseline {
		return next
	}
	newMsgs := msgs[prev.baseline:]

	newest := newMsgs[len(newMsgs)-1]
	if newest.Role == roleAssistant && !newest.HasContentParts {
		// Placeholder entry: the reply is still streaming in. Transient
		// status text must not be returned as a final answer.
		next.lastNewCount = len(newMsgs)
		next.stableCount = 0
		return next
	}

	for i := len(newMsgs) - 1; i >= 0; i-- {
		m := newMsgs[i]
		if m.Role != roleAssistant {
			continue
		}
		if strings.TrimSpace(m.Text) == "" || m.Text == interruptionSentinel {
			continue
		}
		next.done = true
		next.result = Result{Status: StatusCompleted, Text: m.Text}
		return next
	}

	assistantFinished := newest.Role == roleAssistant && newest.HasContentParts

	if len(newMsgs) != prev.lastNewCount {
		next.stableCount = 0
	} else if assistantFinished {
		next.stableCount = prev.stableCount + 1
	}
	next.lastNewCount = len(newMsgs)

	if next.stableCount >= stablePollThreshold {
		next.done = true
		next.result = Result{Status: StatusCompletedEmpty}
	}
	return next
}
