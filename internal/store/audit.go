// ABOUTME: SQLite-backed audit trail of gate decisions, approvals and deliveries.
// ABOUTME: Append-only; write failures are logged by callers, never fatal.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Audit event kinds.
const (
	KindGateAllowed     = "gate_allowed"
	KindGateDenied      = "gate_denied"
	KindPairingIssued   = "pairing_issued"
	KindPairingApproved = "pairing_approved"
	KindSessionReset    = "session_reset"
	KindDelivered       = "delivered"
	KindDeliveryFailed  = "delivery_failed"
)

// AuditEvent is one recorded gateway action.
type AuditEvent struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"`
	ChannelID string    `json:"channelId"`
	SenderID  string    `json:"senderId"`
	ChatID    string    `json:"chatId"`
	Detail    string    `json:"detail"`
}

// AuditStore persists audit events to SQLite.
type AuditStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditStore opens (or creates) the audit database at path.
// Parent directories are created if needed.
func NewAuditStore(path string) (*AuditStore, error) {
	logger := slog.Default().With("component", "audit")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps writers from stalling the admin API's reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &AuditStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("audit store initialized", "path", path)
	return s, nil
}

func (s *AuditStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			at DATETIME NOT NULL,
			kind TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_audit_events_at ON audit_events(at);
		CREATE INDEX IF NOT EXISTS idx_audit_events_kind ON audit_events(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one event. The id and timestamp are filled in if unset.
func (s *AuditStore) Record(ctx context.Context, ev *AuditEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, at, kind, channel_id, sender_id, chat_id, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.At, ev.Kind, ev.ChannelID, ev.SenderID, ev.ChatID, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, kind, channel_id, sender_id, chat_id, detail
		 FROM audit_events ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		ev := &AuditEvent{}
		if err := rows.Scan(&ev.ID, &ev.At, &ev.Kind, &ev.ChannelID, &ev.SenderID, &ev.ChatID, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close closes the underlying database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}
