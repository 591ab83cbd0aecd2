// ABOUTME: Durable registry mapping platform chats to backend conversation ids.
// ABOUTME: Persists the whole map to one flat JSON file on every mutation.

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ChatType distinguishes one-to-one from many-party conversations.
type ChatType string

const (
	ChatDM    ChatType = "dm"
	ChatGroup ChatType = "group"
)

// Entry maps one platform chat to its backend conversation.
// SenderID is frozen at creation; LastActiveAt bumps on every resolve.
type Entry struct {
	BackendSessionID string    `json:"backendSessionId"`
	ChannelID        string    `json:"channelId"`
	SenderID         string    `json:"senderId"`
	ChatID           string    `json:"chatId"`
	ChatType         ChatType  `json:"chatType"`
	CreatedAt        time.Time `json:"createdAt"`
	LastActiveAt     time.Time `json:"lastActiveAt"`
}

// ConversationCreator opens conversations on the backend. Implemented by
// backend.Client; narrowed here so tests can fake it.
type ConversationCreator interface {
	CreateConversation(ctx context.Context, title, directoryHint string) (id string, err error)
}

// Key derives the registry key for a chat. Exactly one entry exists per key.
func Key(channelID string, chatType ChatType, chatID string) string {
	return fmt.Sprintf("%s:%s:%s", channelID, chatType, chatID)
}

// Registry is the durable key→conversation map. Resolves for the same key
// are single-flighted so two racing inbound messages cannot each open a
// backend conversation and leak one.
type Registry struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	loaded  bool

	// per-key latches serializing Resolve for one chat
	inflight map[string]*sync.Mutex
}

// NewRegistry creates a registry persisting to the given file path.
// The file is loaded lazily on first use.
func NewRegistry(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		path:     path,
		logger:   logger.With("component", "sessions"),
		entries:  make(map[string]*Entry),
		inflight: make(map[string]*sync.Mutex),
	}
}

// Resolve returns the entry for (channelID, chatType, chatID), creating a
// backend conversation for it first if none exists. LastActiveAt is bumped
// and persisted on every call.
func (r *Registry) Resolve(ctx context.Context, channelID, senderID, chatID string, chatType ChatType, backend ConversationCreator) (*Entry, error) {
	key := Key(channelID, chatType, chatID)

	latch := r.keyLatch(key)
	latch.Lock()
	defer latch.Unlock()

	r.mu.Lock()
	r.loadLocked()
	entry, ok := r.entries[key]
	r.mu.Unlock()

	if ok {
		r.mu.Lock()
		entry.LastActiveAt = time.Now().UTC()
		err := r.persistLocked()
		r.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("persisting session map: %w", err)
		}
		return entry, nil
	}

	title := fmt.Sprintf("%s %s %s", channelID, chatType, chatID)
	id, err := backend.CreateConversation(ctx, title, "")
	if err != nil {
		return nil, fmt.Errorf("creating backend conversation: %w", err)
	}

	now := time.Now().UTC()
	entry = &Entry{
		BackendSessionID: id,
		ChannelID:        channelID,
		SenderID:         senderID,
		ChatID:           chatID,
		ChatType:         chatType,
		CreatedAt:        now,
		LastActiveAt:     now,
	}

	r.mu.Lock()
	r.entries[key] = entry
	err = r.persistLocked()
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("persisting session map: %w", err)
	}

	r.logger.Info("session created",
		"key", key,
		"backend_session_id", id,
	)
	return entry, nil
}

// FindBySessionID does a reverse lookup by backend conversation id.
// Used when a push event only knows the conversation id and the
// originating chat must be recovered.
func (r *Registry) FindBySessionID(id string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadLocked()

	for _, entry := range r.entries {
		if entry.BackendSessionID == id {
			return entry, true
		}
	}
	return nil, false
}

// List returns a snapshot of all entries keyed by registry key.
func (r *Registry) List() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadLocked()

	out := make(map[string]Entry, len(r.entries))
	for k, e := range r.entries {
		out[k] = *e
	}
	return out
}

// Reset deletes the mapping for key, forcing a fresh backend conversation
// on the next resolve. Returns false if no entry existed.
func (r *Registry) Reset(key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadLocked()

	if _, ok := r.entries[key]; !ok {
		return false, nil
	}
	delete(r.entries, key)
	if err := r.persistLocked(); err != nil {
		return false, fmt.Errorf("persisting session map: %w", err)
	}

	r.logger.Info("session reset", "key", key)
	return true, nil
}

// keyLatch returns the per-key mutex, creating it on first use.
func (r *Registry) keyLatch(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	latch, ok := r.inflight[key]
	if !ok {
		latch = &sync.Mutex{}
		r.inflight[key] = latch
	}
	return latch
}

// loadLocked reads the session file once. A missing or corrupt file is
// treated as an empty map: failing open only risks a redundant backend
// conversation, never an access-control bypass.
func (r *Registry) loadLocked() {
	if r.loaded {
		return
	}
	r.loaded = true

	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("session file unreadable, starting empty", "path", r.path, "error", err)
		}
		return
	}

	var entries map[string]*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		r.logger.Warn("session file corrupt, starting empty", "path", r.path, "error", err)
		return
	}
	r.entries = entries
}

// persistLocked serializes the whole map to the session file.
// Writes to a temp file and renames so a crash never leaves a torn file.
func (r *Registry) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session map: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return os.Rename(tmp, r.path)
}
