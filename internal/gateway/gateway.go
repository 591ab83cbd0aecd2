// ABOUTME: Assembles the gateway from config: stores, gate, correlator, router, admin API.
// ABOUTME: Run blocks until ctx is cancelled, then drains the queue and shuts everything down.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/2389/hearth-gateway/internal/accumulator"
	"github.com/2389/hearth-gateway/internal/adapter"
	"github.com/2389/hearth-gateway/internal/admin"
	"github.com/2389/hearth-gateway/internal/auth"
	"github.com/2389/hearth-gateway/internal/backend"
	"github.com/2389/hearth-gateway/internal/config"
	"github.com/2389/hearth-gateway/internal/correlator"
	"github.com/2389/hearth-gateway/internal/queue"
	"github.com/2389/hearth-gateway/internal/router"
	"github.com/2389/hearth-gateway/internal/security"
	"github.com/2389/hearth-gateway/internal/session"
	"github.com/2389/hearth-gateway/internal/store"
)

const shutdownTimeout = 15 * time.Second

// conversationCreator narrows backend.Client to the registry's creator
// interface, unwrapping the conversation struct to its id.
type conversationCreator struct {
	client *backend.Client
}

func (c conversationCreator) CreateConversation(ctx context.Context, title, directoryHint string) (string, error) {
	conv, err := c.client.CreateConversation(ctx, title, directoryHint)
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

// Gateway owns every long-lived component and their shutdown order.
type Gateway struct {
	cfg    *config.Config
	logger *slog.Logger

	client *backend.Client
	router *router.Router
	audit  *store.AuditStore
	admin  *http.Server
}

// New builds a gateway from config. Nothing starts running until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := backend.NewClient(cfg.Backend.BaseURL)

	stateFile := func(name string) string { return filepath.Join(cfg.State.Dir, name) }
	pairing := security.NewPairingStore(stateFile("pairing.json"), cfg.Security.PairingCodeLength, cfg.Security.PairingTTL)
	allowlist := security.NewAllowlist(stateFile("allowlist.json"))
	limiter := security.NewRateLimiter(cfg.Security.RatePerMinute, cfg.Security.RatePerHour)
	gate := security.NewGate(security.Policy(cfg.Security.DMPolicy), pairing, allowlist, limiter, logger)

	sessions := session.NewRegistry(stateFile("sessions.json"), logger)
	corr := correlator.New(client, cfg.Correlator.PollInterval, cfg.Correlator.Timeout, logger)
	accum := accumulator.New(cfg.Accumulator.TTL, logger)

	var audit *store.AuditStore
	if cfg.State.AuditPath != "" {
		var err error
		audit, err = store.NewAuditStore(cfg.State.AuditPath)
		if err != nil {
			return nil, fmt.Errorf("opening audit store: %w", err)
		}
	}

	// Router's Auditor is an interface; pass nil explicitly when auditing
	// is off so the nil check inside the router works.
	var auditor router.Auditor
	if audit != nil {
		auditor = audit
	}

	rt := router.New(gate, sessions, conversationCreator{client}, corr, accum, queue.Config{
		MaxSize:     cfg.Queue.MaxSize,
		Concurrency: cfg.Queue.Concurrency,
		MaxAttempts: cfg.Queue.MaxAttempts,
		RetryBase:   cfg.Queue.RetryBase,
		RetryCap:    cfg.Queue.RetryCap,
	}, auditor, logger)

	g := &Gateway{
		cfg:    cfg,
		logger: logger.With("component", "gateway"),
		client: client,
		router: rt,
		audit:  audit,
	}

	if cfg.Admin.Addr != "" {
		verifier := auth.NewVerifier([]byte(cfg.Admin.JWTSecret), cfg.Admin.TokenHash)
		api := admin.New(verifier, pairing, allowlist, sessions, audit, client.HealthCheck, logger)
		g.admin = &http.Server{
			Addr:         cfg.Admin.Addr,
			Handler:      api.Routes(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
	}

	return g, nil
}

// Router exposes the message pipeline so platform adapters can be
// registered and fed inbound messages.
func (g *Gateway) Router() *router.Router { return g.router }

// RegisterAdapter registers a platform adapter on the pipeline.
func (g *Gateway) RegisterAdapter(a adapter.Adapter) { g.router.RegisterAdapter(a) }

// Run starts the admin server and the push subscription (when enabled)
// and blocks until ctx is cancelled, then shuts down gracefully:
// subscription first, queue drain, then stores.
func (g *Gateway) Run(ctx context.Context) error {
	if !g.client.HealthCheck(ctx) {
		g.logger.Warn("backend not reachable at startup, continuing anyway",
			"base_url", g.cfg.Backend.BaseURL)
	}

	adminErr := make(chan error, 1)
	if g.admin != nil {
		go func() {
			g.logger.Info("admin API listening", "addr", g.admin.Addr)
			if err := g.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				adminErr <- err
			}
		}()
	}

	var sub *backend.Subscription
	if g.cfg.Backend.EventsEnabled {
		sub = backend.Subscribe(ctx, g.cfg.Backend.EventsURL, g.logger)
		go g.pumpEvents(ctx, sub)
		go g.router.RunPushLoop(ctx)
		g.logger.Info("push event stream enabled", "events_url", g.cfg.Backend.EventsURL)
	}

	select {
	case <-ctx.Done():
	case err := <-adminErr:
		return fmt.Errorf("admin server: %w", err)
	}

	g.logger.Info("shutting down")
	return g.shutdown(sub)
}

// pumpEvents feeds the push stream into the accumulator.
func (g *Gateway) pumpEvents(ctx context.Context, sub *backend.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			g.router.Accumulator().HandleEvent(ev)
		}
	}
}

func (g *Gateway) shutdown(sub *backend.Subscription) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if sub != nil {
		sub.Close()
	}

	if g.admin != nil {
		if err := g.admin.Shutdown(ctx); err != nil {
			g.logger.Warn("admin server shutdown failed", "error", err)
		}
	}

	// Drain so queued replies are not lost on restart
	if err := g.router.Dispose(ctx); err != nil {
		g.logger.Warn("delivery queue drain incomplete", "error", err)
	}

	if g.audit != nil {
		if err := g.audit.Close(); err != nil {
			g.logger.Warn("audit store close failed", "error", err)
		}
	}

	g.logger.Info("shutdown complete")
	return nil
}
