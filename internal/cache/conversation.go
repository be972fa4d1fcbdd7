// Package cache maps conversation fingerprints to upstream thread ids so
// follow-up turns continue the same upstream thread instead of starting a
// new one.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"e2bridge/pkg/models"
)

const (
	// DefaultMaxSize bounds the number of tracked conversations.
	DefaultMaxSize = 1024
	// DefaultTTL is how long an idle conversation stays resolvable.
	DefaultTTL = 12 * time.Hour
)

// Stats tracks cache effectiveness.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

type entry struct {
	threadID    string
	lastTouched time.Time
}

// ConversationCache is a bounded LRU+TTL mapping from conversation key to
// upstream thread id. Entries are evicted oldest-first once the size bound
// is hit, and lazily on lookup once their TTL has passed.
type ConversationCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string // LRU order, least recently used first
	maxSize int
	ttl     time.Duration
	stats   Stats
	now     func() time.Time
}

// NewConversationCache builds a cache with the given bounds. Non-positive
// arguments select the defaults.
func NewConversationCache(maxSize int, ttl time.Duration) *ConversationCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ConversationCache{
		entries: make(map[string]*entry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Resolve returns the thread id recorded for key, refreshing its recency.
func (c *ConversationCache) Resolve(key string) (string, bool) {
	if key == "" {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return "", false
	}
	if c.now().Sub(e.lastTouched) > c.ttl {
		c.remove(key)
		c.stats.Misses++
		c.stats.Evictions++
		return "", false
	}

	e.lastTouched = c.now()
	c.touch(key)
	c.stats.Hits++
	return e.threadID, true
}

// Record stores or overwrites the mapping for key, evicting the least
// recently used entry when the cache is full. Empty keys are ignored.
func (c *ConversationCache) Record(key, threadID string) {
	if key == "" || threadID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.threadID = threadID
		e.lastTouched = c.now()
		c.touch(key)
		return
	}

	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		c.remove(c.order[0])
		c.stats.Evictions++
	}

	c.entries[key] = &entry{threadID: threadID, lastTouched: c.now()}
	c.order = append(c.order, key)
}

// Len returns the number of live entries.
func (c *ConversationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *ConversationCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// remove deletes key from both the map and the order slice. Callers hold
// the lock.
func (c *ConversationCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// touch moves key to the most-recently-used end. Callers hold the lock.
func (c *ConversationCache) touch(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(append(c.order[:i], c.order[i+1:]...), key)
			break
		}
	}
}

// Fingerprint derives a stable conversation key from a message history.
// An empty history has no usable identity and yields the empty key, which
// the cache never stores: every fresh conversation gets its own thread.
func Fingerprint(history []models.ChatMessage) string {
	if len(history) == 0 {
		return ""
	}
	canonical, err := json.Marshal(history)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
