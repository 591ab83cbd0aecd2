// ABOUTME: Flat JSON file persistence shared by the pairing and allowlist stores.
// ABOUTME: Whole map is rewritten on every mutation; corrupt files fail open to empty.

package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// jsonFile holds one string-keyed map serialized to a single JSON file.
// Load happens once on first use; a missing or corrupt file yields an
// empty map rather than an error.
type jsonFile[V any] struct {
	path string

	mu     sync.Mutex
	data   map[string]V
	loaded bool
}

func newJSONFile[V any](path string) *jsonFile[V] {
	return &jsonFile[V]{
		path: path,
		data: make(map[string]V),
	}
}

// View calls fn with the current map. The map must not be mutated.
func (f *jsonFile[V]) View(fn func(map[string]V)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadLocked()
	fn(f.data)
}

// Update calls fn with the map and persists it if fn returns nil.
func (f *jsonFile[V]) Update(fn func(map[string]V) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadLocked()

	if err := fn(f.data); err != nil {
		return err
	}
	return f.persistLocked()
}

func (f *jsonFile[V]) loadLocked() {
	if f.loaded {
		return
	}
	f.loaded = true

	raw, err := os.ReadFile(f.path)
	if err != nil {
		return
	}

	var data map[string]V
	if err := json.Unmarshal(raw, &data); err != nil {
		return
	}
	f.data = data
}

func (f *jsonFile[V]) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state file: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return os.Rename(tmp, f.path)
}
