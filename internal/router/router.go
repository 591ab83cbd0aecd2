// ABOUTME: Orchestrates one inbound message: dedupe, gate, session, correlate, deliver.
// ABOUTME: Owns the delivery queue and consumes accumulator emissions when push is enabled.

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/hearth-gateway/internal/accumulator"
	"github.com/2389/hearth-gateway/internal/adapter"
	"github.com/2389/hearth-gateway/internal/correlator"
	"github.com/2389/hearth-gateway/internal/dedupe"
	"github.com/2389/hearth-gateway/internal/queue"
	"github.com/2389/hearth-gateway/internal/security"
	"github.com/2389/hearth-gateway/internal/session"
	"github.com/2389/hearth-gateway/internal/store"
)

// ErrNoAdapter means no registered adapter matches the message's channel.
var ErrNoAdapter = errors.New("no adapter for channel")

// Inbound platform messages are deduplicated within this window.
const (
	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 4096
)

// Correlator is the response-correlation surface the router depends on.
type Correlator interface {
	SendAndWait(ctx context.Context, conversationID, prompt string) (correlator.Result, error)
}

// Auditor records gateway actions. May be nil when auditing is disabled.
type Auditor interface {
	Record(ctx context.Context, ev *store.AuditEvent) error
}

// Router wires the gate, session registry, correlator, accumulator and
// delivery queue into the per-message pipeline.
type Router struct {
	gate     *security.Gate
	sessions *session.Registry
	creator  session.ConversationCreator
	corr     Correlator
	accum    *accumulator.Accumulator
	seen     *dedupe.Cache
	audit    Auditor
	logger   *slog.Logger

	q *queue.Queue

	mu       sync.RWMutex
	adapters map[string]adapter.Adapter
}

// New creates a router. The delivery queue is owned by the router so its
// delivery function can resolve adapters registered later.
func New(
	gate *security.Gate,
	sessions *session.Registry,
	creator session.ConversationCreator,
	corr Correlator,
	accum *accumulator.Accumulator,
	qcfg queue.Config,
	audit Auditor,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		gate:     gate,
		sessions: sessions,
		creator:  creator,
		corr:     corr,
		accum:    accum,
		seen:     dedupe.New(dedupeTTL, dedupeMaxSize),
		audit:    audit,
		logger:   logger.With("component", "router"),
		adapters: make(map[string]adapter.Adapter),
	}
	r.q = queue.New(r.deliver, qcfg, logger)
	return r
}

// RegisterAdapter makes a platform adapter available for inbound
// handling and outbound delivery, keyed by its Name.
func (r *Router) RegisterAdapter(a adapter.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Accumulator exposes the push-path buffer so an external subscription
// loop can feed it events.
func (r *Router) Accumulator() *accumulator.Accumulator { return r.accum }

// QueueDepth reports the delivery queue's current depth.
func (r *Router) QueueDepth() int { return r.q.Depth() }

// HandleInbound runs the full pipeline for one platform message.
// Policy denials are answered directly through the adapter, bypassing
// the backend entirely. An empty correlation result sends nothing:
// silent completion is valid, not an error.
func (r *Router) HandleInbound(ctx context.Context, msg adapter.InboundMessage) (err error) {
	dedupeKey := msg.ChannelID + ":" + msg.ID
	if r.seen.Seen(dedupeKey) {
		r.logger.Debug("duplicate inbound message ignored",
			"channel", msg.ChannelID, "message_id", msg.ID)
		return nil
	}
	// A failed pipeline un-marks the message so a platform redelivery
	// gets another attempt instead of a ten-minute silence.
	defer func() {
		if err != nil {
			r.seen.Forget(dedupeKey)
		}
	}()

	a, err := r.adapterFor(msg.ChannelID)
	if err != nil {
		return err
	}

	decision := r.gate.Check(msg.ChannelID, msg.SenderID, msg.ChatID)
	r.recordGate(ctx, msg, decision)

	if !decision.Allowed {
		if _, err := a.SendText(ctx, adapter.SendRequest{To: msg.ChatID, Text: decision.Reason, ReplyToID: msg.ID}); err != nil {
			return fmt.Errorf("sending denial: %w", err)
		}
		return nil
	}

	entry, err := r.sessions.Resolve(ctx, msg.ChannelID, msg.SenderID, msg.ChatID, chatType(msg.ChatType), r.creator)
	if err != nil {
		return fmt.Errorf("resolving session: %w", err)
	}

	if err := a.SendTyping(ctx, msg.ChatID); err != nil {
		// Best-effort signal only
		r.logger.Debug("typing signal failed", "channel", msg.ChannelID, "error", err)
	}

	res, err := r.corr.SendAndWait(ctx, entry.BackendSessionID, msg.Text)
	if err != nil {
		return fmt.Errorf("correlating response: %w", err)
	}

	if res.Text == "" {
		return nil
	}

	r.q.Enqueue(&queue.Message{
		ChannelID: msg.ChannelID,
		ChatID:    msg.ChatID,
		Text:      res.Text,
		ReplyToID: msg.ID,
	})
	return nil
}

// RunPushLoop consumes accumulator emissions until ctx is cancelled,
// recovering the originating chat via reverse session lookup. It is the
// alternate delivery trigger when the push path is enabled.
func (r *Router) RunPushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case resp, ok := <-r.accum.Responses():
			if !ok {
				return
			}
			entry, found := r.sessions.FindBySessionID(resp.SessionID)
			if !found {
				r.logger.Warn("push response for unknown session", "session_id", resp.SessionID)
				continue
			}
			if resp.Text == "" {
				continue
			}
			r.q.Enqueue(&queue.Message{
				ChannelID: entry.ChannelID,
				ChatID:    entry.ChatID,
				Text:      resp.Text,
			})

		case serr, ok := <-r.accum.Errors():
			if !ok {
				return
			}
			r.logger.Error("backend session errored",
				"session_id", serr.SessionID, "error", serr.Message)
		}
	}
}

// Dispose drains the delivery queue so in-flight replies are not lost,
// then stops the queue and the accumulator's sweep timer.
func (r *Router) Dispose(ctx context.Context) error {
	err := r.q.Drain(ctx)
	r.q.Close()
	r.accum.Close()
	return err
}

// deliver is the queue's delivery function: one attempt against the
// message's platform adapter.
func (r *Router) deliver(ctx context.Context, msg *queue.Message) error {
	a, err := r.adapterFor(msg.ChannelID)
	if err != nil {
		return err
	}

	text := adapter.FormatFor(a, msg.Text)
	id, err := a.SendText(ctx, adapter.SendRequest{To: msg.ChatID, Text: text, ReplyToID: msg.ReplyToID})
	if err != nil {
		r.recordAudit(ctx, &store.AuditEvent{
			Kind: store.KindDeliveryFailed, ChannelID: msg.ChannelID, ChatID: msg.ChatID,
			Detail: fmt.Sprintf("attempt %d: %v", msg.Attempt, err),
		})
		return err
	}

	r.recordAudit(ctx, &store.AuditEvent{
		Kind: store.KindDelivered, ChannelID: msg.ChannelID, ChatID: msg.ChatID, Detail: id,
	})
	return nil
}

func (r *Router) adapterFor(channelID string) (adapter.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[channelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, channelID)
	}
	return a, nil
}

func (r *Router) recordGate(ctx context.Context, msg adapter.InboundMessage, d security.Decision) {
	kind := store.KindGateAllowed
	detail := ""
	if !d.Allowed {
		kind = store.KindGateDenied
		detail = d.Reason
	}
	if d.PairingCode != "" {
		kind = store.KindPairingIssued
		detail = d.PairingCode
	}
	r.recordAudit(ctx, &store.AuditEvent{
		Kind: kind, ChannelID: msg.ChannelID, SenderID: msg.SenderID, ChatID: msg.ChatID, Detail: detail,
	})
}

func (r *Router) recordAudit(ctx context.Context, ev *store.AuditEvent) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Record(ctx, ev); err != nil {
		r.logger.Warn("audit write failed", "kind", ev.Kind, "error", err)
	}
}

func chatType(s string) session.ChatType {
	if s == string(session.ChatGroup) {
		return session.ChatGroup
	}
	return session.ChatDM
}
