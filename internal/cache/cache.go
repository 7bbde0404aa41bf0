package cache

import (
	"container/list"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/width"
)

const (
	DefaultTTL        = 24 * time.Hour
	DefaultMaxEntries = 1000
	DefaultMaxBytes   = 256 << 20 // 256MB
)

// Entry is a synthesized audio payload stored under a key.
// Entries are never mutated after creation.
type Entry struct {
	Key       string
	Audio     []byte
	CreatedAt time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries     int   `json:"entries"`
	Bytes       int64 `json:"bytes"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Expirations int64 `json:"expirations"`
	Evictions   int64 `json:"evictions"`
	MaxEntries  int   `json:"max_entries"`
	MaxBytes    int64 `json:"max_bytes"`
}

// Config holds cache limits. Zero values fall back to the defaults.
type Config struct {
	TTL        time.Duration
	MaxEntries int
	MaxBytes   int64
	Clock      func() time.Time // for tests; defaults to time.Now
}

// Cache is an in-memory audio cache with lazy TTL expiry and
// oldest-first eviction once either the entry or byte limit is exceeded.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	maxBytes   int64
	now        func() time.Time

	items map[string]*list.Element
	order *list.List // front = oldest insertion
	size  int64
	stats Stats
}

// New creates an empty cache.
func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Cache{
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		maxBytes:   cfg.MaxBytes,
		now:        cfg.Clock,
		items:      make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the entry for key if it exists and has not expired.
// Expired entries are removed when encountered.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return Entry{}, false
	}

	entry := elem.Value.(*Entry)
	if c.now().Sub(entry.CreatedAt) >= c.ttl {
		c.remove(elem)
		c.stats.Expirations++
		c.stats.Misses++
		return Entry{}, false
	}

	c.stats.Hits++
	return *entry, true
}

// Put stores audio under key, replacing any existing entry. The new entry
// counts as the newest for eviction purposes. Payloads larger than the
// byte budget are not stored; Put reports whether the audio was kept.
func (c *Cache) Put(key string, audio []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}

	n := int64(len(audio))
	if n > c.maxBytes {
		return false
	}

	entry := &Entry{Key: key, Audio: audio, CreatedAt: c.now()}
	c.items[key] = c.order.PushBack(entry)
	c.size += n

	for c.order.Len() > c.maxEntries || c.size > c.maxBytes {
		c.remove(c.order.Front())
		c.stats.Evictions++
	}
	return true
}

// Purge drops every entry and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.order.Len()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.size = 0
	return n
}

// PurgeExpired removes entries whose TTL has elapsed and returns how many
// were removed. Insertion order matches creation order, so the scan stops at
// the first live entry.
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for elem := c.order.Front(); elem != nil; elem = c.order.Front() {
		if now.Sub(elem.Value.(*Entry).CreatedAt) < c.ttl {
			break
		}
		c.remove(elem)
		c.stats.Expirations++
		n++
	}
	return n
}

// Len returns the number of stored entries, including expired ones not yet
// looked up.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = c.order.Len()
	s.Bytes = c.size
	s.MaxEntries = c.maxEntries
	s.MaxBytes = c.maxBytes
	return s
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) remove(elem *list.Element) {
	entry := elem.Value.(*Entry)
	c.order.Remove(elem)
	delete(c.items, entry.Key)
	c.size -= int64(len(entry.Audio))
}

// Key builds the cache key for a (text, speaker) pair. The text is length
// prefixed so that no two distinct pairs share a key.
func Key(text, speaker string) string {
	var b strings.Builder
	b.Grow(len(text) + len(speaker) + 8)
	b.WriteString(strconv.Itoa(len(text)))
	b.WriteByte(':')
	b.WriteString(text)
	b.WriteByte('|')
	b.WriteString(speaker)
	return b.String()
}

// FoldedKey is Key after trimming surrounding whitespace and folding
// full-width and half-width variants, so "ｱ" and "ア", or "Ａ" and "A",
// share an entry.
func FoldedKey(text, speaker string) string {
	return Key(width.Fold.String(strings.TrimSpace(text)), speaker)
}
