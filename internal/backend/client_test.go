// ABOUTME: Tests for the backend HTTP client using httptest servers.
// ABOUTME: Verifies request shapes, decoding, and error classification.

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateConversation(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/conversations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]string{"id": "conv-1", "title": gotBody["title"]})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	conv, err := c.CreateConversation(context.Background(), "telegram dm chat-42", "/srv/agent")
	require.NoError(t, err)

	assert.Equal(t, "conv-1", conv.ID)
	assert.Equal(t, "telegram dm chat-42", gotBody["title"])
	assert.Equal(t, "/srv/agent", gotBody["directory"])
}

func TestSendPrompt(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.SendPrompt(context.Background(), "conv-1", "hello"))
	assert.Equal(t, "/conversations/conv-1/messages", gotPath)
}

func TestListMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []Message{
				{Role: "user", Text: "hi", HasContentParts: true},
				{Role: "assistant", Text: "hello there", HasContentParts: true},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	msgs, err := c.ListMessages(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "hello there", msgs[1].Text)
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ListMessages(context.Background(), "conv-1")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestHealthCheck(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	assert.True(t, c.HealthCheck(context.Background()))

	healthy = false
	assert.False(t, c.HealthCheck(context.Background()))
}
