package attachments

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"
)

// state is the persisted per-conversation cache file:
// {"images": [...], "idle_count": n}.
type state struct {
	Images    []Entry `json:"images"`
	IdleCount int     `json:"idle_count"`
}

// loadState reads a conversation's cache state. A missing or corrupt file
// yields a fresh empty state: an inconsistent cache is discarded rather
// than trusted.
func (c *Cache) loadState(key string) state {
	data, err := os.ReadFile(c.statePath(key))
	if os.IsNotExist(err) {
		return state{}
	}
	if err != nil {
		log.Printf("attachments: read state %s: %v (resetting)", key, err)
		return state{}
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		log.Printf("attachments: parse state %s: %v (resetting)", key, err)
		return state{}
	}
	return st
}

// saveState writes a conversation's cache state as a whole-file replacement.
// On write failure the persisted state is reset to empty: bounded growth
// beats preserving an inconsistent cache.
func (c *Cache) saveState(key string, st state) {
	data, err := json.Marshal(st)
	if err == nil {
		err = os.WriteFile(c.statePath(key), data, 0o644)
	}
	if err != nil {
		log.Printf("attachments: save state %s: %v (resetting)", key, err)
		os.Remove(c.statePath(key))
	}
}

// SweepArtifacts removes stored payload files older than retention that are
// no longer referenced by any conversation's cache state. It returns the
// number of files removed. Called periodically and after each turn.
func (c *Cache) SweepArtifacts(retention time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-retention)

	// Collect every referenced payload path (persisted images and pending
	// in-memory documents).
	referenced := make(map[string]bool)
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		key := de.Name()
		if filepath.Ext(key) != ".json" {
			continue
		}
		st := c.loadState(key[:len(key)-len(".json")])
		for _, e := range st.Images {
			referenced[e.Ref] = true
		}
	}
	for _, docs := range c.docs {
		for _, e := range docs {
			referenced[e.Ref] = true
		}
	}

	removed := 0
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(c.dir, de.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			path := filepath.Join(c.dir, de.Name(), f.Name())
			if referenced[path] {
				continue
			}
			info, err := f.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	return removed
}
