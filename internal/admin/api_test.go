// ABOUTME: Tests for the admin HTTP API: auth middleware, pairing approval,
// ABOUTME: session management, and the audit tail.

package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hearth-gateway/internal/auth"
	"github.com/2389/hearth-gateway/internal/security"
	"github.com/2389/hearth-gateway/internal/session"
	"github.com/2389/hearth-gateway/internal/store"
)

type fakeCreator struct{}

func (fakeCreator) CreateConversation(ctx context.Context, title, directoryHint string) (string, error) {
	return "conv-1", nil
}

type fixture struct {
	server    *httptest.Server
	token     string
	pairing   *security.PairingStore
	allowlist *security.Allowlist
	sessions  *session.Registry
	audit     *store.AuditStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	verifier := auth.NewVerifier([]byte("test-secret"), "")
	token, err := verifier.Generate("ops@example.com", time.Hour)
	require.NoError(t, err)

	pairing := security.NewPairingStore(filepath.Join(dir, "pairing.json"), 8, time.Hour)
	allowlist := security.NewAllowlist(filepath.Join(dir, "allowlist.json"))
	sessions := session.NewRegistry(filepath.Join(dir, "sessions.json"), nil)
	audit, err := store.NewAuditStore(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	api := New(verifier, pairing, allowlist, sessions, audit, nil, nil)
	server := httptest.NewServer(api.Routes())
	t.Cleanup(server.Close)

	return &fixture{server: server, token: token,
		pairing: pairing, allowlist: allowlist, sessions: sessions, audit: audit}
}

func (f *fixture) request(t *testing.T, method, path string, authed bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)
	if authed {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAPI_RequiresAuth(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, http.MethodGet, "/api/sessions", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.request(t, http.MethodGet, "/api/sessions", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_RejectsBadToken(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_HealthNeedsNoAuth(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, http.MethodGet, "/health", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_ApprovePairing(t *testing.T) {
	f := newFixture(t)

	code, err := f.pairing.Issue("telegram", "alice", "chat-1")
	require.NoError(t, err)

	resp := f.request(t, http.MethodPost, "/api/pairing/telegram/"+code+"/approve", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.Equal(t, "alice", body["senderId"])
	assert.True(t, f.allowlist.Contains("telegram", "alice"))

	// Consumed: second approval of the same code fails
	resp = f.request(t, http.MethodPost, "/api/pairing/telegram/"+code+"/approve", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ApproveUnknownCode(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, http.MethodPost, "/api/pairing/telegram/NOPE1234/approve", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_SessionsListAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Resolve(ctx, "telegram", "alice", "chat-1", session.ChatDM, fakeCreator{})
	require.NoError(t, err)

	resp := f.request(t, http.MethodGet, "/api/sessions", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[map[string]session.Entry](t, resp)
	require.Len(t, list, 1)

	key := session.Key("telegram", session.ChatDM, "chat-1")
	resp = f.request(t, http.MethodDelete, "/api/sessions/"+key, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Gone now
	resp = f.request(t, http.MethodDelete, "/api/sessions/"+key, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_AuditTail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, kind := range []string{store.KindGateAllowed, store.KindDelivered} {
		require.NoError(t, f.audit.Record(ctx, &store.AuditEvent{
			Kind: kind, ChannelID: "telegram", SenderID: "alice", ChatID: "chat-1",
		}))
	}

	resp := f.request(t, http.MethodGet, "/api/audit?limit=1", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := decode[[]*store.AuditEvent](t, resp)
	assert.Len(t, events, 1)

	resp = f.request(t, http.MethodGet, "/api/audit", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events = decode[[]*store.AuditEvent](t, resp)
	assert.Len(t, events, 2)
}
