package domain

import (
	"container/list"
	"sync"

	"github.com/google/uuid"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
)

// DefaultCacheCapacity is the number of group keys kept when no capacity is configured.
const DefaultCacheCapacity = 50

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

type cacheEntry struct {
	key   KeyRef
	value *cryptoDomain.GroupKey
}

// KeyCache holds unwrapped group keys in memory.
//
// Eviction is first-in first-out: once full, inserting a new entry evicts the
// entry inserted earliest, regardless of how recently it was read. Replacing an
// existing entry keeps its original position. The cache stores and returns
// copies, and zeroes key material it drops. Safe for concurrent use.
type KeyCache struct {
	mu        sync.Mutex
	capacity  int
	order     *list.List
	entries   map[KeyRef]*list.Element
	hits      uint64
	misses    uint64
	evictions uint64
}

// NewKeyCache creates a KeyCache holding at most capacity keys.
func NewKeyCache(capacity int) (*KeyCache, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCacheCapacity
	}
	return &KeyCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[KeyRef]*list.Element, capacity),
	}, nil
}

// Get returns a copy of the cached key, or false on a miss.
func (c *KeyCache) Get(conversationID uuid.UUID, version uint) (*cryptoDomain.GroupKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[KeyRef{ConversationID: conversationID, Version: version}]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return clone(elem.Value.(*cacheEntry).value), true
}

// Put stores a copy of value. Returns ErrInvalidKeySize for a destroyed or empty key.
func (c *KeyCache) Put(conversationID uuid.UUID, version uint, value *cryptoDomain.GroupKey) error {
	stored := clone(value)
	if stored == nil {
		return cryptoDomain.ErrInvalidKeySize
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := KeyRef{ConversationID: conversationID, Version: version}
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value.Destroy()
		entry.value = stored
		return nil
	}

	for c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, value: stored})
	return nil
}

// Len returns the number of cached keys.
func (c *KeyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops every entry and zeroes its key material. Counters are kept.
func (c *KeyCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		elem.Value.(*cacheEntry).value.Destroy()
	}
	c.order.Init()
	c.entries = make(map[KeyRef]*list.Element, c.capacity)
}

// Stats returns the current counters.
func (c *KeyCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Len:       c.order.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// evictOldest must be called with mu held.
func (c *KeyCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	entry := c.order.Remove(front).(*cacheEntry)
	delete(c.entries, entry.key)
	entry.value.Destroy()
	c.evictions++
}

func clone(k *cryptoDomain.GroupKey) *cryptoDomain.GroupKey {
	raw := k.Bytes()
	if raw == nil {
		return nil
	}
	defer cryptoDomain.Zero(raw)

	out, err := cryptoDomain.NewGroupKey(raw)
	if err != nil {
		return nil
	}
	return out
}
