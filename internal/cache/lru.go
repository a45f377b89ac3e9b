// Package cache provides the scored-result and velocity-counter caches.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// analysisKeyPrefix namespaces cached scoring results so they never
// collide with raw Get/Set users of the same cache.
const analysisKeyPrefix = "analysis:"

// LRUCache keeps scored results and velocity counters in process memory.
// Community tier cache, also the L1 of the two-phase setup.
type LRUCache struct {
	mu sync.RWMutex

	capacity int
	index    map[string]*list.Element
	recency  *list.List

	// Velocity counters live outside the LRU: evicting one under memory
	// pressure would silently reset an account's activity window.
	windows map[string]*windowCounter
}

type lruItem struct {
	key     string
	payload []byte
	deadAt  time.Time
}

type windowCounter struct {
	n       int64
	resetAt time.Time
}

// NewLRUCache creates a new LRU cache with the specified max size.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LRUCache{
		capacity: capacity,
		index:    make(map[string]*list.Element),
		recency:  list.New(),
		windows:  make(map[string]*windowCounter),
	}
}

// Get retrieves a value, or nil, nil on a miss or an expired entry.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[scope(tenantID, key)]
	if !ok {
		return nil, nil
	}

	item := elem.Value.(*lruItem)
	if time.Now().After(item.deadAt) {
		c.drop(elem)
		return nil, nil
	}

	c.recency.MoveToFront(elem)
	return item.payload, nil
}

// Set stores a value with a TTL, evicting the least recently used entries
// once the cache is full.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	scoped := scope(tenantID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[scoped]; ok {
		item := elem.Value.(*lruItem)
		item.payload = value
		item.deadAt = time.Now().Add(ttl)
		c.recency.MoveToFront(elem)
		return nil
	}

	c.index[scoped] = c.recency.PushFront(&lruItem{
		key:     scoped,
		payload: value,
		deadAt:  time.Now().Add(ttl),
	})

	for c.recency.Len() > c.capacity {
		if oldest := c.recency.Back(); oldest != nil {
			c.drop(oldest)
		}
	}

	return nil
}

// Delete removes a value. Deleting a missing key is not an error.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[scope(tenantID, key)]; ok {
		c.drop(elem)
	}
	return nil
}

// GetAnalysis retrieves a cached scoring result for a transaction id.
func (c *LRUCache) GetAnalysis(ctx context.Context, tenantID string, txID string) (*domain.AnalysisResult, error) {
	raw, err := c.Get(ctx, tenantID, analysisKeyPrefix+txID)
	if err != nil || raw == nil {
		return nil, err
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetAnalysis caches a scoring result so re-submissions of the same
// transaction are served without scoring again.
func (c *LRUCache) SetAnalysis(ctx context.Context, tenantID string, txID string, result *domain.AnalysisResult, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, analysisKeyPrefix+txID, raw, ttl)
}

// IncrementCounter advances a windowed counter and returns its new value.
// The first increment after the window elapses starts a fresh window at 1.
func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}

	scoped := scope(tenantID, "counter:"+key)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	w, ok := c.windows[scoped]
	if !ok || now.After(w.resetAt) {
		c.windows[scoped] = &windowCounter{n: 1, resetAt: now.Add(window)}
		return 1, nil
	}

	w.n++
	return w.n, nil
}

// GetCounter reads a windowed counter without advancing it.
func (c *LRUCache) GetCounter(ctx context.Context, tenantID string, key string) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}

	scoped := scope(tenantID, "counter:"+key)

	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.windows[scoped]
	if !ok || time.Now().After(w.resetAt) {
		return 0, nil
	}
	return w.n, nil
}

// Ping always succeeds for the in-process cache.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops all entries and counters.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*list.Element)
	c.recency = list.New()
	c.windows = make(map[string]*windowCounter)
	return nil
}

// Stats returns the current entry count and capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recency.Len(), c.capacity
}

func (c *LRUCache) drop(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.index, elem.Value.(*lruItem).key)
}

// scope prefixes keys with the tenant so tenants never see each other's
// entries.
func scope(tenantID, key string) string {
	return tenantID + ":" + key
}
