package service

import (
	"sync"
)

// DedupCache recognizes protocol-level event replays. It is a bounded
// recent-id set, oldest evicted first; it is not authoritative storage.
type DedupCache struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	cap   int
}

func NewDedupCache(capacity int) *DedupCache {
	return &DedupCache{
		seen: make(map[string]struct{}, capacity),
		cap:  capacity,
	}
}

// Seen marks key and reports whether it was already present.
func (c *DedupCache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[key]; ok {
		return true
	}

	c.seen[key] = struct{}{}
	c.order = append(c.order, key)

	if len(c.order) > c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.seen, oldest)
	}
	return false
}

func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
