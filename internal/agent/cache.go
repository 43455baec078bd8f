package agent

import (
	"sync"
	"time"
)

// responseCache keeps completed responses keyed by request id for the
// lifetime of the process, bounded by entry count and age so a long-lived
// process does not grow without limit.
type responseCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      []string // insertion order, oldest first
	maxEntries int
	ttl        time.Duration // zero means entries never expire
	now        func() time.Time
}

type cacheEntry struct {
	resp    Response
	addedAt time.Time
}

func newResponseCache(maxEntries int, ttl time.Duration) *responseCache {
	if maxEntries < 1 {
		maxEntries = 1024
	}
	return &responseCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns the cached response for a request id, if present and fresh.
func (c *responseCache) Get(requestID string) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[requestID]
	if !ok {
		return Response{}, false
	}
	if c.expired(entry) {
		delete(c.entries, requestID)
		return Response{}, false
	}
	return entry.resp, true
}

// Put stores a completed response, evicting expired entries and then the
// oldest entries until the size bound holds.
func (c *responseCache) Put(requestID string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[requestID]; ok {
		entry.resp = resp
		entry.addedAt = c.now()
		return
	}

	c.evictLocked()

	c.entries[requestID] = &cacheEntry{resp: resp, addedAt: c.now()}
	c.order = append(c.order, requestID)
}

// Len returns the number of live entries.
func (c *responseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *responseCache) expired(entry *cacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(entry.addedAt) > c.ttl
}

// evictLocked drops expired entries, then the oldest live entries until
// one slot is free. Must hold mu.
func (c *responseCache) evictLocked() {
	kept := c.order[:0]
	for _, id := range c.order {
		entry, ok := c.entries[id]
		if !ok {
			continue
		}
		if c.expired(entry) {
			delete(c.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}
