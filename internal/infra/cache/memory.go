package cache

import (
	"errors"
	"sync"
	"time"
)

// ErrMiss возвращается при отсутствии ключа в кэше.
var ErrMiss = errors.New("ключ отсутствует в кэше")

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache — ограниченный по размеру in-memory кэш с TTL.
// При переполнении вытесняется самая старая запись.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	order      []string
	maxEntries int
	now        func() time.Time
}

// NewMemory создаёт кэш с ограничением на количество записей.
func NewMemory(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &MemoryCache{
		entries:    make(map[string]memoryEntry, maxEntries),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Once выполняет функцию, если ключ ещё не задан.
func (c *MemoryCache) Once(key string, ttl time.Duration, fn func() error) error {
	if _, err := c.Get(key); err == nil {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	return c.Set(key, []byte("1"), ttl)
}

// Set задаёт значение.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

// Get возвращает значение или ErrMiss, если ключ отсутствует либо протух.
func (c *MemoryCache) Get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if c.now().After(entry.expiresAt) {
		c.deleteLocked(key)
		return nil, ErrMiss
	}
	return entry.value, nil
}

func (c *MemoryCache) evictOldestLocked() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.deleteLocked(oldest)
}

func (c *MemoryCache) deleteLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
