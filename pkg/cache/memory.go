package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	key      string
	value    []byte
	expireAt time.Time
}

// MemoryCache is a bounded LRU with per-entry expiry. Expired entries are
// dropped lazily on access or when they reach the LRU tail.
type MemoryCache struct {
	mu         sync.Mutex
	ll         *list.List
	index      map[string]*list.Element
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
}

var _ Service = (*MemoryCache)(nil)

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &memoryConfig{maxEntries: 1000, defaultTTL: 24 * time.Hour, now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.maxEntries < 1 {
		cfg.maxEntries = 1
	}
	return &MemoryCache{
		ll:         list.New(),
		index:      make(map[string]*list.Element, cfg.maxEntries),
		maxEntries: cfg.maxEntries,
		defaultTTL: cfg.defaultTTL,
		now:        cfg.now,
	}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = mc.defaultTTL
	}
	// own the bytes; callers may reuse their buffer
	data = append([]byte(nil), data...)
	expireAt := mc.now().Add(ttl)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if el, ok := mc.index[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value, e.expireAt = data, expireAt
		mc.ll.MoveToFront(el)
		return nil
	}
	mc.index[key] = mc.ll.PushFront(&memoryEntry{key: key, value: data, expireAt: expireAt})
	for mc.ll.Len() > mc.maxEntries {
		mc.removeElement(mc.ll.Back())
	}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest any) error {
	mc.mu.Lock()
	el, ok := mc.index[key]
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	e := el.Value.(*memoryEntry)
	if !mc.now().Before(e.expireAt) {
		mc.removeElement(el)
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	mc.ll.MoveToFront(el)
	data := e.value
	mc.mu.Unlock()

	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if el, ok := mc.index[k]; ok {
			mc.removeElement(el)
		}
	}
	return nil
}

// Len reports the number of entries, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.ll.Len()
}

func (mc *MemoryCache) Ping(context.Context) error { return nil }

func (mc *MemoryCache) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.ll.Init()
	clear(mc.index)
	return nil
}

func (mc *MemoryCache) removeElement(el *list.Element) {
	mc.ll.Remove(el)
	delete(mc.index, el.Value.(*memoryEntry).key)
}
