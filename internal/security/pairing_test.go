// ABOUTME: Tests for pairing code issuance, reuse, expiry and one-shot approval.
// ABOUTME: Verifies the unambiguous alphabet and per-sender code replacement.

package security

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPairing(t *testing.T, ttl time.Duration) *PairingStore {
	t.Helper()
	return NewPairingStore(filepath.Join(t.TempDir(), "pairing.json"), 8, ttl)
}

func TestIssue_CodeShape(t *testing.T) {
	store := newTestPairing(t, time.Hour)

	code, err := store.Issue("telegram", "alice", "chat-1")
	require.NoError(t, err)

	assert.Len(t, code, 8)
	for _, c := range code {
		assert.Contains(t, codeAlphabet, string(c))
	}
	// No visually ambiguous characters
	assert.NotContains(t, codeAlphabet, "0")
	assert.NotContains(t, codeAlphabet, "O")
	assert.NotContains(t, codeAlphabet, "1")
	assert.NotContains(t, codeAlphabet, "I")
}

func TestIssue_ReusesLiveCode(t *testing.T) {
	store := newTestPairing(t, time.Hour)

	first, err := store.Issue("telegram", "alice", "chat-1")
	require.NoError(t, err)
	second, err := store.Issue("telegram", "alice", "chat-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestIssue_ReplacesExpiredCode(t *testing.T) {
	store := newTestPairing(t, -time.Minute) // already expired at issue

	first, err := store.Issue("telegram", "alice", "chat-1")
	require.NoError(t, err)
	second, err := store.Issue("telegram", "alice", "chat-1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestIssue_DistinctPerSender(t *testing.T) {
	store := newTestPairing(t, time.Hour)

	a, err := store.Issue("telegram", "alice", "chat-1")
	require.NoError(t, err)
	b, err := store.Issue("telegram", "bob", "chat-2")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestApprove_FirstWins(t *testing.T) {
	store := newTestPairing(t, time.Hour)

	code, err := store.Issue("telegram", "alice", "chat-1")
	require.NoError(t, err)

	sender, err := store.Approve("telegram", code, "operator")
	require.NoError(t, err)
	assert.Equal(t, "alice", sender)

	// Second approval of the same code fails: the request was consumed
	_, err = store.Approve("telegram", code, "operator")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestApprove_WrongChannel(t *testing.T) {
	store := newTestPairing(t, time.Hour)

	code, err := store.Issue("telegram", "alice", "chat-1")
	require.NoError(t, err)

	_, err = store.Approve("discord", code, "operator")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestApprove_ExpiredCode(t *testing.T) {
	store := newTestPairing(t, -time.Minute)

	code, err := store.Issue("telegram", "alice", "chat-1")
	require.NoError(t, err)

	_, err = store.Approve("telegram", code, "operator")
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestPairing_PersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairing.json")

	store := NewPairingStore(path, 8, time.Hour)
	code, err := store.Issue("telegram", "alice", "chat-1")
	require.NoError(t, err)

	reopened := NewPairingStore(path, 8, time.Hour)
	sender, err := reopened.Approve("telegram", code, "operator")
	require.NoError(t, err)
	assert.Equal(t, "alice", sender)
}

func TestGenerateCode_UsesFullAlphabet(t *testing.T) {
	// Sanity check the generator over many draws
	seen := make(map[rune]bool)
	for i := 0; i < 200; i++ {
		code, err := generateCode(8)
		require.NoError(t, err)
		for _, c := range code {
			seen[c] = true
			assert.True(t, strings.ContainsRune(codeAlphabet, c))
		}
	}
	assert.Greater(t, len(seen), 10)
}
