package cache

import (
	"context"
	"errors"
	"time"
)

// LayeredCache keeps a process-local LRU (L1) in front of a shared cache (L2).
// Writes go to both; an L2 hit is promoted to L1.
type LayeredCache struct {
	l1     *MemoryCache
	l2     Service
	l1Size int
	l1TTL  time.Duration
}

var _ Service = (*LayeredCache)(nil)

func NewLayeredCache(remote Service, opts ...LayeredOption) *LayeredCache {
	lc := &LayeredCache{l2: remote, l1Size: 1000, l1TTL: 10 * time.Minute}
	for _, opt := range opts {
		opt(lc)
	}
	lc.l1 = NewMemoryCache(WithMemoryMaxSize(lc.l1Size), WithMemoryDefaultTTL(lc.l1TTL))
	return lc
}

// Set writes L2 first so L1 never holds a value the shared tier rejected.
func (lc *LayeredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if err := lc.l2.Set(ctx, key, data, ttl); err != nil {
		return err
	}
	return lc.l1.Set(ctx, key, data, lc.localTTL(ttl))
}

// Get answers from L1 when possible. L2 errors other than a miss are returned.
func (lc *LayeredCache) Get(ctx context.Context, key string, dest any) error {
	var data []byte
	if err := lc.l1.Get(ctx, key, &data); err == nil {
		return decode(data, dest)
	}
	if err := lc.l2.Get(ctx, key, &data); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, data, lc.l1TTL)
	return decode(data, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) Ping(ctx context.Context) error {
	return lc.l2.Ping(ctx)
}

func (lc *LayeredCache) Close() error {
	return errors.Join(lc.l1.Close(), lc.l2.Close())
}

func (lc *LayeredCache) localTTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < lc.l1TTL {
		return ttl
	}
	return lc.l1TTL
}
