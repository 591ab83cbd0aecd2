// ABOUTME: Per-session buffers of streamed partial updates, emitted on an idle signal.
// ABOUTME: Backup response path fed by the backend's push event subscription.

package accumulator

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/hearth-gateway/internal/backend"
)

const (
	// defaultEntryTTL applies when no TTL is configured.
	defaultEntryTTL = 5 * time.Minute

	// sweepInterval is how often abandoned entries are checked against
	// the TTL.
	sweepInterval = time.Minute
)

// Response is a finalized reply assembled from streamed fragments.
type Response struct {
	SessionID string
	Text      string
}

// SessionError surfaces a backend error event for a session.
type SessionError struct {
	SessionID string
	Message   string
}

// entry buffers the two ordered fragment lists for one session.
type entry struct {
	textChunks      []string
	reasoningChunks []string
	updatedAt       time.Time
}

// Accumulator buffers push-based partial updates per backend session id
// and emits a finalized response when the idle event arrives. Entries
// are destroyed on emission, on error, or by the TTL sweep.
type Accumulator struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	responses chan Response
	errors    chan SessionError

	done   chan struct{}
	closed sync.Once
	logger *slog.Logger

	// now is swappable for sweep tests
	now func() time.Time
}

// New creates an accumulator and starts its sweep timer. Entries with no
// idle or error event within ttl are discarded; zero means the default.
func New(ttl time.Duration, logger *slog.Logger) *Accumulator {
	if ttl <= 0 {
		ttl = defaultEntryTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Accumulator{
		ttl:       ttl,
		entries:   make(map[string]*entry),
		responses: make(chan Response, 16),
		errors:    make(chan SessionError, 16),
		done:      make(chan struct{}),
		logger:    logger.With("component", "accumulator"),
		now:       time.Now,
	}
	go a.sweepLoop()
	return a
}

// Responses delivers finalized replies assembled from streamed fragments.
func (a *Accumulator) Responses() <-chan Response { return a.responses }

// Errors delivers backend error events, one per failed session.
func (a *Accumulator) Errors() <-chan SessionError { return a.errors }

// HandleEvent feeds one push event into the buffers.
//
// A part_updated event with a delta appends to the relevant fragment
// list; one without a delta is a cumulative snapshot that clears and
// reseeds the list. An idle event joins the text fragments (falling back
// to reasoning when no text arrived) and emits the result. An error
// event discards the entry without emitting.
func (a *Accumulator) HandleEvent(ev backend.Event) {
	switch ev.Type {
	case backend.EventPartUpdated:
		a.applyUpdate(ev)

	case backend.EventIdle:
		a.emit(ev.ConversationID)

	case backend.EventError:
		a.fail(ev.ConversationID, ev.Message)
	}
}

func (a *Accumulator) applyUpdate(ev backend.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[ev.ConversationID]
	if !ok {
		e = &entry{}
		a.entries[ev.ConversationID] = e
	}
	e.updatedAt = a.now()

	list := &e.textChunks
	if ev.Channel == "reasoning" {
		list = &e.reasoningChunks
	}

	if ev.Delta != "" {
		*list = append(*list, ev.Delta)
		return
	}
	// No delta: full replacement snapshot
	*list = []string{ev.Snapshot}
}

func (a *Accumulator) emit(sessionID string) {
	a.mu.Lock()
	e, ok := a.entries[sessionID]
	delete(a.entries, sessionID)
	a.mu.Unlock()

	if !ok {
		return
	}

	text := strings.Join(e.textChunks, "")
	if strings.TrimSpace(text) == "" {
		text = strings.Join(e.reasoningChunks, "")
	}

	select {
	case a.responses <- Response{SessionID: sessionID, Text: text}:
	case <-a.done:
	}
}

func (a *Accumulator) fail(sessionID, message string) {
	a.mu.Lock()
	_, ok := a.entries[sessionID]
	delete(a.entries, sessionID)
	a.mu.Unlock()

	a.logger.Warn("session errored, discarding buffered fragments",
		"session_id", sessionID, "had_entry", ok, "error", message)

	select {
	case a.errors <- SessionError{SessionID: sessionID, Message: message}:
	case <-a.done:
	}
}

// sweepLoop discards entries untouched for longer than the TTL.
func (a *Accumulator) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.sweep()
		case <-a.done:
			return
		}
	}
}

func (a *Accumulator) sweep() {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-a.ttl)
	for id, e := range a.entries {
		if e.updatedAt.Before(cutoff) {
			delete(a.entries, id)
			a.logger.Debug("swept abandoned accumulator entry", "session_id", id)
		}
	}
}

// Len reports the number of live entries.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Close stops the sweep timer. Safe to call multiple times.
func (a *Accumulator) Close() {
	a.closed.Do(func() { close(a.done) })
}
