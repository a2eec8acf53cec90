package lookup

import (
	"strings"
	"sync"
	"time"
)

// Cache defaults
const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 6 * time.Hour
)

// CacheStats holds route cache statistics
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

type cacheEntry struct {
	result     Result
	expiration time.Time
	accessTime time.Time
	sequence   int64 // tiebreak when access times are equal
}

// RouteCache is a bounded LRU cache of lookup results keyed by callsign.
// Only definitive results (found or not found) are stored.
type RouteCache struct {
	mu        sync.Mutex
	entries   map[string]*cacheEntry
	maxSize   int
	ttl       time.Duration
	now       func() time.Time
	hits      int64
	misses    int64
	evictions int64
	sequence  int64
}

// NewRouteCache creates a cache. Non-positive size or ttl take the defaults;
// a nil clock uses time.Now.
func NewRouteCache(maxSize int, ttl time.Duration, now func() time.Time) *RouteCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &RouteCache{
		entries: make(map[string]*cacheEntry, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the cached result for callsign
func (c *RouteCache) Get(callsign string) (Result, bool) {
	key := cacheKey(callsign)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	now := c.now()
	if !ok || now.After(entry.expiration) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return Result{}, false
	}

	entry.accessTime = now
	entry.sequence = c.nextSequence()
	c.hits++
	return entry.result, true
}

// Set stores result for callsign. Transient and skipped results are ignored.
func (c *RouteCache) Set(callsign string, result Result) {
	if result.Outcome != OutcomeFound && result.Outcome != OutcomeNotFound {
		return
	}
	key := cacheKey(callsign)
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = &cacheEntry{
		result:     result,
		expiration: now.Add(c.ttl),
		accessTime: now,
		sequence:   c.nextSequence(),
	}
}

// Invalidate removes callsign from the cache
func (c *RouteCache) Invalidate(callsign string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(callsign))
}

// Clear removes all entries
func (c *RouteCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry, c.maxSize)
}

// Stats returns cache statistics
func (c *RouteCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}

// evictOldest removes the least recently used entry. Caller holds mu.
func (c *RouteCache) evictOldest() {
	var oldestKey string
	var oldest *cacheEntry
	for key, entry := range c.entries {
		if oldest == nil || entry.accessTime.Before(oldest.accessTime) ||
			(entry.accessTime.Equal(oldest.accessTime) && entry.sequence < oldest.sequence) {
			oldestKey, oldest = key, entry
		}
	}
	if oldest != nil {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

func (c *RouteCache) nextSequence() int64 {
	c.sequence++
	return c.sequence
}

func cacheKey(callsign string) string {
	return strings.ToUpper(strings.TrimSpace(callsign))
}
