package cache

import (
	"sync"
	"time"

	"github.com/cam3ron2/devboard/internal/report"
)

type memoryEntry struct {
	report    *report.AggregatedReport
	createdAt time.Time
}

// MemoryCache is the short-TTL in-process tier. Writes are last-writer-wins
// per key.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryCache creates the memory tier with an injected clock.
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the cached report when the entry is still fresh.
func (c *MemoryCache) Get(key Key) (*report.AggregatedReport, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key.String()]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.createdAt) >= c.ttl {
		return nil, false
	}
	return entry.report, true
}

// Put stores a report, stamping the entry with the current clock.
func (c *MemoryCache) Put(key Key, rep *report.AggregatedReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = memoryEntry{
		report:    rep,
		createdAt: c.now(),
	}
}

// Clear evicts every entry and reports how many were dropped.
func (c *MemoryCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := len(c.entries)
	c.entries = make(map[string]memoryEntry)
	return evicted
}
