package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists transcripts, one JSON file per conversation key. The file
// shape is {"history": <serialized turns>}. Writes are whole-file
// replacements; the persisted copy is authoritative and callers reload it
// at every conversation boundary.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("transcript: store dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript: create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// historyFile is the persisted JSON shape. History holds the JSON-encoded
// turn array as a string, keeping the outer shape stable even as the turn
// schema evolves.
type historyFile struct {
	History string `json:"history"`
}

// Load reads the transcript for a conversation key. A missing file yields
// an empty transcript, not an error.
func (s *Store) Load(key string) (*Transcript, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return &Transcript{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: load %s: %w", key, err)
	}

	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("transcript: parse %s: %w", key, err)
	}

	var turns []Turn
	if file.History != "" {
		if err := json.Unmarshal([]byte(file.History), &turns); err != nil {
			return nil, fmt.Errorf("transcript: parse history %s: %w", key, err)
		}
	}
	return &Transcript{Turns: turns}, nil
}

// Save writes the transcript for a conversation key, replacing any prior file.
func (s *Store) Save(key string, t *Transcript) error {
	turns, err := json.Marshal(t.Turns)
	if err != nil {
		return fmt.Errorf("transcript: encode turns %s: %w", key, err)
	}
	data, err := json.Marshal(historyFile{History: string(turns)})
	if err != nil {
		return fmt.Errorf("transcript: encode %s: %w", key, err)
	}
	if err := os.WriteFile(s.path(key), data, 0o644); err != nil {
		return fmt.Errorf("transcript: save %s: %w", key, err)
	}
	return nil
}

// Clear removes the persisted transcript for a conversation key. Removing a
// transcript that does not exist is not an error.
func (s *Store) Clear(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("transcript: clear %s: %w", key, err)
	}
	return nil
}

// path maps a conversation key to its file, sanitizing path separators so
// platform-supplied keys cannot escape the store dir.
func (s *Store) path(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(s.dir, safe+".json")
}
