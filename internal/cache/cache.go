// Package cache provides short-lived memoization for role lookups and prime
// check results. Nothing stored here is authoritative: every caller must
// behave correctly when Get misses.
package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// Cache stores byte values with a per-entry time to live.
type Cache interface {
	// Get returns a copy of the value for key, or false when the key is
	// absent or expired.
	Get(key string) ([]byte, bool)

	// Set stores value under key for ttl. A non-positive ttl keeps the
	// entry until it is deleted.
	Set(key string, value []byte, ttl time.Duration)

	Delete(key string)
}

// GetJSON decodes the cached value for key into out. A value that no longer
// decodes is treated as a miss.
func GetJSON(c Cache, key string, out any) bool {
	data, ok := c.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Set(key, data, ttl)
	return nil
}

type entry struct {
	expires time.Time
	value   []byte
}

// MemoryCache is a Cache backed by a map. Expired entries are dropped
// lazily on access.
type MemoryCache struct {
	now  func() time.Time
	data map[string]entry
	mu   sync.RWMutex
}

type Option func(*MemoryCache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *MemoryCache) { m.now = now }
}

func NewMemoryCache(opts ...Option) *MemoryCache {
	m := &MemoryCache{
		now:  time.Now,
		data: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryCache) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.mu.Lock()
		if cur, ok := m.data[key]; ok && cur.expires.Equal(e.expires) {
			delete(m.data, key)
		}
		m.mu.Unlock()
		return nil, false
	}

	result := make([]byte, len(e.value))
	copy(result, e.value)
	return result, true
}

func (m *MemoryCache) Set(key string, value []byte, ttl time.Duration) {
	stored := make([]byte, len(value))
	copy(stored, value)

	e := entry{value: stored}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = e
}

func (m *MemoryCache) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
