// ABOUTME: HTTP client for the AI backend process (conversations, prompts, polling).
// ABOUTME: The message list endpoint is the ground truth for response correlation.

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrBackendUnavailable indicates the backend rejected or failed the request.
var ErrBackendUnavailable = errors.New("backend unavailable")

// Conversation is an open conversation on the backend.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one entry in a conversation's ordered message list.
// HasContentParts is false while the backend is still streaming the
// assistant turn (a placeholder entry with no parts yet).
type Message struct {
	Role            string `json:"role"`
	Text            string `json:"text"`
	HasContentParts bool   `json:"hasContentParts"`
}

// Client talks to the backend AI service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateConversation opens a new conversation on the backend.
// The title hints at the originating channel/chat for operator-facing lists.
func (c *Client) CreateConversation(ctx context.Context, title, directoryHint string) (*Conversation, error) {
	body := map[string]string{"title": title}
	if directoryHint != "" {
		body["directory"] = directoryHint
	}

	var conv Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", body, &conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return &conv, nil
}

// SendPrompt submits a prompt to a conversation. Fire-and-forget: the
// response body is drained but never used for correlation — the caller
// polls ListMessages instead.
func (c *Client) SendPrompt(ctx context.Context, conversationID, text string) error {
	path := fmt.Sprintf("/conversations/%s/messages", conversationID)
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"text": text}, nil); err != nil {
		return fmt.Errorf("submitting prompt: %w", err)
	}
	return nil
}

// ListMessages fetches the ordered message list for a conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	path := fmt.Sprintf("/conversations/%s/messages", conversationID)

	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return out.Messages, nil
}

// HealthCheck reports whether the backend is reachable and healthy.
func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/health", nil, nil) == nil
}

// do performs one JSON request/response cycle against the backend.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
