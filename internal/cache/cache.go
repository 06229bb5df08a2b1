// Package cache provides a small TTL read-through cache with deduplicated
// loads.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultLoadTimeout bounds a shared load, which outlives the caller that
// started it.
const DefaultLoadTimeout = 30 * time.Second

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTL caches one value per key for a fixed duration. Concurrent misses on the
// same key share a single load. A zero or negative ttl disables caching.
type TTL[K comparable, V any] struct {
	ttl         time.Duration
	loadTimeout time.Duration
	now         func() time.Time
	group       singleflight.Group

	mu    sync.Mutex
	items map[K]entry[V]
	gens  map[K]uint64
}

func New[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{
		ttl:         ttl,
		loadTimeout: DefaultLoadTimeout,
		now:         time.Now,
		items:       make(map[K]entry[V]),
		gens:        make(map[K]uint64),
	}
}

// Get returns the cached value for key or calls load to fill it. A shared
// load is not cancelled with any one caller; a caller whose ctx is done stops
// waiting and gets ctx.Err().
func (c *TTL[K, V]) Get(ctx context.Context, key K, load func(context.Context) (V, error)) (V, error) {
	if c.ttl <= 0 {
		return load(ctx)
	}

	c.mu.Lock()
	if e, ok := c.items[key]; ok && c.now().Before(e.expires) {
		c.mu.Unlock()
		return e.value, nil
	}
	gen := c.gens[key]
	c.mu.Unlock()

	flight := fmt.Sprint(key)
	ch := c.group.DoChan(flight, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		val, err := load(loadCtx)
		if err != nil {
			return val, err
		}
		c.mu.Lock()
		// An Invalidate that raced with the load wins.
		if c.gens[key] == gen {
			c.items[key] = entry[V]{value: val, expires: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return val, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Invalidate drops key so the next Get reloads it.
func (c *TTL[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.gens[key]++
	c.mu.Unlock()
	c.group.Forget(fmt.Sprint(key))
}

func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
