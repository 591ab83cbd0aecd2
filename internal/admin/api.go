// ABOUTME: Out-of-band admin HTTP API: pairing approval, session management, audit tail.
// ABOUTME: Bearer-authenticated; pairing approval is the terminal step of the pairing flow.

package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/2389/hearth-gateway/internal/auth"
	"github.com/2389/hearth-gateway/internal/security"
	"github.com/2389/hearth-gateway/internal/session"
	"github.com/2389/hearth-gateway/internal/store"
)

type contextKey string

const operatorKey contextKey = "operator"

// HealthChecker reports backend reachability for the health endpoint.
type HealthChecker func(ctx context.Context) bool

// API serves the admin surface.
type API struct {
	verifier  *auth.Verifier
	pairing   *security.PairingStore
	allowlist *security.Allowlist
	sessions  *session.Registry
	audit     *store.AuditStore
	health    HealthChecker
	logger    *slog.Logger
}

// New creates the admin API. audit may be nil when auditing is disabled.
func New(
	verifier *auth.Verifier,
	pairing *security.PairingStore,
	allowlist *security.Allowlist,
	sessions *session.Registry,
	audit *store.AuditStore,
	health HealthChecker,
	logger *slog.Logger,
) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		verifier:  verifier,
		pairing:   pairing,
		allowlist: allowlist,
		sessions:  sessions,
		audit:     audit,
		health:    health,
		logger:    logger.With("component", "admin"),
	}
}

// Routes builds the HTTP handler.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Post("/pairing/{channel}/{code}/approve", a.handleApprove)
		r.Get("/sessions", a.handleListSessions)
		r.Delete("/sessions/{key}", a.handleResetSession)
		r.Get("/audit", a.handleAudit)
	})

	return r
}

// requireAuth validates the Authorization bearer credential and stores
// the operator identity in the request context.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		operator, err := a.verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		ctx := context.WithValue(r.Context(), operatorKey, operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	backendOK := true
	if a.health != nil {
		backendOK = a.health(r.Context())
	}

	status := http.StatusOK
	if !backendOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":  map[bool]string{true: "ok", false: "degraded"}[backendOK],
		"backend": backendOK,
	})
}

// handleApprove consumes a pairing code and allowlists its sender.
// First approval wins; a second attempt returns 404.
func (a *API) handleApprove(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	code := chi.URLParam(r, "code")
	operator, _ := r.Context().Value(operatorKey).(string)

	senderID, err := a.pairing.Approve(channel, code, operator)
	switch {
	case errors.Is(err, security.ErrCodeNotFound):
		writeError(w, http.StatusNotFound, "pairing code not found")
		return
	case errors.Is(err, security.ErrCodeExpired):
		writeError(w, http.StatusGone, "pairing code expired")
		return
	case err != nil:
		a.logger.Error("pairing approval failed", "channel", channel, "error", err)
		writeError(w, http.StatusInternalServerError, "approval failed")
		return
	}

	if err := a.allowlist.Add(channel, senderID, operator); err != nil {
		a.logger.Error("allowlist update failed", "channel", channel, "sender", senderID, "error", err)
		writeError(w, http.StatusInternalServerError, "allowlist update failed")
		return
	}

	a.recordAudit(r.Context(), &store.AuditEvent{
		Kind: store.KindPairingApproved, ChannelID: channel, SenderID: senderID, Detail: operator,
	})

	a.logger.Info("pairing approved", "channel", channel, "sender", senderID, "operator", operator)
	writeJSON(w, http.StatusOK, map[string]string{"channelId": channel, "senderId": senderID})
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sessions.List())
}

func (a *API) handleResetSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	ok, err := a.sessions.Reset(key)
	if err != nil {
		a.logger.Error("session reset failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no session for key")
		return
	}

	a.recordAudit(r.Context(), &store.AuditEvent{Kind: store.KindSessionReset, Detail: key})
	writeJSON(w, http.StatusOK, map[string]string{"reset": key})
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if a.audit == nil {
		writeError(w, http.StatusNotFound, "auditing disabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := a.audit.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error("audit query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	if events == nil {
		events = []*store.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (a *API) recordAudit(ctx context.Context, ev *store.AuditEvent) {
	if a.audit == nil {
		return
	}
	if err := a.audit.Record(ctx, ev); err != nil {
		a.logger.Warn("audit write failed", "kind", ev.Kind, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
