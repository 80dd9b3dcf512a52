// Package cachestore provides the generation-versioned response cache
// shared by every component of the edge worker. A Store holds one cache
// per generation identifier; activation evicts every generation except
// the current one, so at most one survives an upgrade.
package cachestore

import (
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is the key→entry mapping for a single generation. Implementations
// must be safe for concurrent use. Per-key writes are last-write-wins;
// batch operations carry no atomicity guarantees.
type Cache interface {
	// Put stores a clone of the entry under key, overwriting any prior
	// value. The entry's CachedAt is set to the insertion time.
	Put(key string, entry *Entry)

	// Get returns a clone of the entry stored under key.
	Get(key string) (*Entry, bool)

	// Delete removes the entry under key, reporting whether it existed.
	Delete(key string) bool

	// Keys returns all live keys, sorted.
	Keys() []string

	// Len returns the number of live entries.
	Len() int
}

// Store manages the caches of all known generations.
type Store interface {
	// Open returns the cache for the given generation, creating it if
	// needed.
	Open(generation string) Cache

	// Generations lists all known generation identifiers.
	Generations() ([]string, error)

	// EvictOthers deletes every generation except current, returning the
	// identifiers it deleted.
	EvictOthers(current string) ([]string, error)
}

// MemoryStore is the in-memory Store backed by go-cache, one cache per
// generation.
type MemoryStore struct {
	mu          sync.RWMutex
	generations map[string]*memoryCache

	defaultTTL      time.Duration
	cleanupInterval time.Duration
}

// NewMemoryStore creates a store whose caches expire entries after
// defaultTTL (zero means entries live as long as their generation) and
// sweep expired entries every cleanupInterval.
func NewMemoryStore(defaultTTL, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		generations:     make(map[string]*memoryCache),
		defaultTTL:      defaultTTL,
		cleanupInterval: cleanupInterval,
	}
}

// Open returns the cache for the given generation, creating it if needed.
func (s *MemoryStore) Open(generation string) Cache {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.generations[generation]; ok {
		return c
	}
	ttl := s.defaultTTL
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c := &memoryCache{c: gocache.New(ttl, s.cleanupInterval)}
	s.generations[generation] = c
	return c
}

// Generations lists all known generation identifiers, sorted.
func (s *MemoryStore) Generations() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.generations))
	for name := range s.generations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// EvictOthers deletes every generation except current.
func (s *MemoryStore) EvictOthers(current string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []string
	for name, c := range s.generations {
		if name == current {
			continue
		}
		c.c.Flush()
		delete(s.generations, name)
		deleted = append(deleted, name)
	}
	sort.Strings(deleted)
	return deleted, nil
}

type memoryCache struct {
	c *gocache.Cache
}

func (m *memoryCache) Put(key string, entry *Entry) {
	clone := entry.Clone()
	clone.CachedAt = time.Now()
	m.c.Set(key, clone, gocache.DefaultExpiration)
}

func (m *memoryCache) Get(key string) (*Entry, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Entry).Clone(), true
}

func (m *memoryCache) Delete(key string) bool {
	if _, ok := m.c.Get(key); !ok {
		return false
	}
	m.c.Delete(key)
	return true
}

func (m *memoryCache) Keys() []string {
	items := m.c.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *memoryCache) Len() int {
	return m.c.ItemCount()
}
