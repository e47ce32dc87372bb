// Package attachments stores per-conversation uploads (images and
// documents) with idle-based eviction and a hard image cap.
package attachments

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Attachment kinds. Images persist across turns subject to eviction;
// documents are single-use context consumed by the next turn.
const (
	KindImage    = "image"
	KindDocument = "document"
)

// Entry is one cached attachment.
type Entry struct {
	Filename  string `json:"filename"`
	Ref       string `json:"content-ref"` // path of the stored payload
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"-"`
}

// Cache manages attachment state for all conversations. Image entries and
// the idle counter are persisted per conversation key; document entries are
// held in memory only, since they never outlive a turn.
type Cache struct {
	dir       string
	maxImages int
	maxIdle   int

	mu   sync.Mutex
	docs map[string][]Entry
}

// CacheOpts holds parameters for creating a Cache.
type CacheOpts struct {
	Dir       string // root directory for state files and payloads
	MaxImages int    // hard cap on image entries per conversation
	MaxIdle   int    // idle ticks before the oldest image is evicted
}

// NewCache creates a Cache rooted at opts.Dir, creating it if needed.
func NewCache(opts CacheOpts) (*Cache, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("attachments: dir is required")
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = 10
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = 10
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("attachments: create dir: %w", err)
	}
	return &Cache{
		dir:       opts.Dir,
		maxImages: opts.MaxImages,
		maxIdle:   opts.MaxIdle,
		docs:      make(map[string][]Entry),
	}, nil
}

// AddImage stores an image payload and appends its entry to the
// conversation's cache. A new image counts as a cache touch: the idle
// counter resets to 0. The hard cap is enforced immediately, evicting the
// oldest entries.
func (c *Cache) AddImage(key, filename string, payload []byte) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.writePayload(key, filename, payload)
	if err != nil {
		return Entry{}, err
	}
	entry.Kind = KindImage

	st := c.loadState(key)
	st.Images = append(st.Images, entry)
	st.IdleCount = 0
	for len(st.Images) > c.maxImages {
		st.Images = c.evictOldest(st.Images)
	}
	c.saveState(key, st)
	return entry, nil
}

// AddDocument stores a document payload for consumption by the next turn.
// Documents do not touch the idle counter.
func (c *Cache) AddDocument(key, filename string, payload []byte) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.writePayload(key, filename, payload)
	if err != nil {
		return Entry{}, err
	}
	entry.Kind = KindDocument
	c.docs[key] = append(c.docs[key], entry)
	return entry, nil
}

// Tick runs the per-turn idle check for a conversation and returns the
// number of evicted image entries. Policy, in order: increment the idle
// counter; above the idle limit evict the single oldest entry (the counter
// keeps climbing, so later ticks keep evicting one at a time); then enforce
// the hard image cap regardless of idle state.
func (c *Cache) Tick(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.loadState(key)
	st.IdleCount++

	evicted := 0
	if st.IdleCount > c.maxIdle && len(st.Images) > 0 {
		st.Images = c.evictOldest(st.Images)
		evicted++
	}
	for len(st.Images) > c.maxImages {
		st.Images = c.evictOldest(st.Images)
		evicted++
	}
	c.saveState(key, st)
	return evicted
}

// Images returns the conversation's image entries in arrival order.
func (c *Cache) Images(key string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.loadState(key)
	out := make([]Entry, len(st.Images))
	copy(out, st.Images)
	for i := range out {
		out[i].Kind = KindImage
	}
	return out
}

// IdleCount returns the conversation's current idle counter.
func (c *Cache) IdleCount(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadState(key).IdleCount
}

// ConsumeDocuments returns and removes the conversation's pending document
// entries. The payload files stay on disk until the post-turn sweep.
func (c *Cache) ConsumeDocuments(key string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs := c.docs[key]
	delete(c.docs, key)
	return docs
}

// Clear removes all cached state and payloads for a conversation. Idempotent.
func (c *Cache) Clear(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.docs, key)
	if err := os.Remove(c.statePath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("attachments: clear state %s: %w", key, err)
	}
	if err := os.RemoveAll(c.payloadDir(key)); err != nil {
		return fmt.Errorf("attachments: clear payloads %s: %w", key, err)
	}
	return nil
}

// RemovePayload deletes a stored payload file. Used by the post-turn cleanup
// for consumed documents.
func (c *Cache) RemovePayload(e Entry) {
	if e.Ref != "" {
		os.Remove(e.Ref)
	}
}

// writePayload persists raw bytes under the conversation's payload dir and
// returns an entry referencing the stored file.
func (c *Cache) writePayload(key, filename string, payload []byte) (Entry, error) {
	dir := c.payloadDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("attachments: create payload dir: %w", err)
	}
	ref := filepath.Join(dir, uuid.NewString()+"-"+sanitize(filename))
	if err := os.WriteFile(ref, payload, 0o644); err != nil {
		return Entry{}, fmt.Errorf("attachments: write payload: %w", err)
	}
	return Entry{Filename: filename, Ref: ref, Timestamp: time.Now().Unix()}, nil
}

// evictOldest removes the entry with the lowest timestamp (first on ties,
// preserving arrival order otherwise) and deletes its payload file.
func (c *Cache) evictOldest(entries []Entry) []Entry {
	if len(entries) == 0 {
		return entries
	}
	oldest := 0
	for i, e := range entries {
		if e.Timestamp < entries[oldest].Timestamp {
			oldest = i
		}
	}
	os.Remove(entries[oldest].Ref)
	return append(entries[:oldest], entries[oldest+1:]...)
}

func (c *Cache) payloadDir(key string) string {
	return filepath.Join(c.dir, sanitize(key))
}

func (c *Cache) statePath(key string) string {
	return filepath.Join(c.dir, sanitize(key)+".json")
}

func sanitize(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)
}
