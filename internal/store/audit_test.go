// ABOUTME: Tests for the audit store: schema creation, append, recent ordering.
// ABOUTME: Uses a temp-dir sqlite file per test.

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *AuditStore {
	t.Helper()
	s, err := NewAuditStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecord_FillsDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := &AuditEvent{Kind: KindGateDenied, ChannelID: "telegram", SenderID: "alice", ChatID: "chat-1"}
	require.NoError(t, s.Record(ctx, ev))

	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.At.IsZero())
}

func TestRecent_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, &AuditEvent{
			At:        base.Add(time.Duration(i) * time.Second),
			Kind:      KindDelivered,
			ChannelID: "telegram",
			SenderID:  "alice",
			ChatID:    "chat-1",
			Detail:    fmt.Sprintf("msg-%d", i),
		}))
	}

	events, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "msg-4", events[0].Detail)
	assert.Equal(t, "msg-2", events[2].Detail)
}

func TestRecent_DefaultLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, &AuditEvent{Kind: KindGateAllowed, ChannelID: "telegram", SenderID: "a", ChatID: "c"}))

	events, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSchema_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	s1, err := NewAuditStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Record(context.Background(), &AuditEvent{Kind: KindSessionReset, ChannelID: "t", SenderID: "s", ChatID: "c"}))
	require.NoError(t, s1.Close())

	s2, err := NewAuditStore(path)
	require.NoError(t, err)
	defer s2.Close()

	events, err := s2.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
