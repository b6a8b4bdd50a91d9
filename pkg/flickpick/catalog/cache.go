package catalog

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Cache stores encoded catalog responses by key
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

type memoryEntry struct {
	key     string
	value   []byte
	expires time.Time
}

// MemoryCache is a bounded in-process LRU with a fixed TTL
type MemoryCache struct {
	mu    sync.Mutex
	size  int
	ttl   time.Duration
	ll    *list.List
	items map[string]*list.Element
	now   func() time.Time
}

// NewMemoryCache creates a cache holding at most size entries for ttl each
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 512
	}
	return &MemoryCache{
		size:  size,
		ttl:   ttl,
		ll:    list.New(),
		items: make(map[string]*list.Element),
		now:   time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if m.ttl > 0 && m.now().After(entry.expires) {
		m.ll.Remove(el)
		delete(m.items, key)
		return nil, false
	}
	m.ll.MoveToFront(el)
	return entry.value, true
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expires := m.now().Add(m.ttl)
	if el, ok := m.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.expires = expires
		m.ll.MoveToFront(el)
		return
	}

	m.items[key] = m.ll.PushFront(&memoryEntry{key: key, value: value, expires: expires})
	for m.ll.Len() > m.size {
		oldest := m.ll.Back()
		m.ll.Remove(oldest)
		delete(m.items, oldest.Value.(*memoryEntry).key)
	}
}

// Len returns the number of entries, expired ones included
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}
