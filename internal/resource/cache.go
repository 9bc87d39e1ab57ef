// Package resource loads the shared assets a model needs (textures and the
// sphere mesh) and memoizes them per key.
//
// A Cache starts at most one load per key at a time: requests that arrive
// while a load is in flight wait for that load instead of starting another.
// Successful loads are kept; failures are handed to every waiter and then
// forgotten, so the next request retries.
package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/helio/sungo/internal/metrics"
)

// LoadError reports a failed load of the resource at Key.
type LoadError struct {
	Key string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.Key, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Loader produces the resource for key.
type Loader[T any] func(ctx context.Context, key string) (T, error)

// Cache memoizes a Loader by key. Safe for concurrent use; distinct keys load
// in parallel.
type Cache[T any] struct {
	name   string
	load   Loader[T]
	logger *slog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	resolved map[string]T
}

// NewCache returns a cache named name (used in logs and metrics) backed by load.
func NewCache[T any](name string, load Loader[T], logger *slog.Logger) *Cache[T] {
	return &Cache[T]{
		name:     name,
		load:     load,
		logger:   logger.With("cache", name),
		resolved: make(map[string]T),
	}
}

// Get returns the resource for key, loading it if needed. If ctx ends while
// waiting, Get returns ctx.Err() but the load keeps running for the other
// waiters.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, error) {
	if v, ok := c.lookup(key); ok {
		metrics.IncCacheHit(c.name)
		return v, nil
	}
	metrics.IncCacheMiss(c.name)

	ch := c.group.DoChan(key, func() (any, error) {
		// A load for key may have finished between lookup and DoChan.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		return c.loadAndStore(context.WithoutCancel(ctx), key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *Cache[T]) loadAndStore(ctx context.Context, key string) (T, error) {
	start := time.Now()
	v, err := c.load(ctx, key)
	duration := time.Since(start)
	metrics.RecordLoad(c.name, duration, err)

	if err != nil {
		c.logger.Warn("resource load failed", "key", key, "duration_ms", duration.Milliseconds(), "error", err)
		var le *LoadError
		if !errors.As(err, &le) {
			err = &LoadError{Key: key, Err: err}
		}
		var zero T
		return zero, err
	}

	c.mu.Lock()
	c.resolved[key] = v
	n := len(c.resolved)
	c.mu.Unlock()
	metrics.SetCacheEntries(c.name, n)

	c.logger.Debug("resource loaded", "key", key, "duration_ms", duration.Milliseconds())
	return v, nil
}

func (c *Cache[T]) lookup(key string) (T, bool) {
	c.mu.RLock()
	v, ok := c.resolved[key]
	c.mu.RUnlock()
	return v, ok
}

// Forget drops the resolved entry for key. An in-flight load is unaffected.
func (c *Cache[T]) Forget(key string) {
	c.mu.Lock()
	delete(c.resolved, key)
	n := len(c.resolved)
	c.mu.Unlock()
	metrics.SetCacheEntries(c.name, n)
}

// Len returns the number of resolved entries.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.resolved)
}
