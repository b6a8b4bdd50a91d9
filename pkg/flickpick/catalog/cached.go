package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// Cached wraps a Catalog so identical lookups hit the upstream once.
// Concurrent callers for the same key share one in-flight request and
// errors are never stored.
type Cached struct {
	next      Catalog
	cache     Cache
	namespace string
	group     singleflight.Group
	logger    *slog.Logger
}

// NewCached decorates next. namespace separates entries for different
// regions or upstreams sharing one cache.
func NewCached(next Catalog, cache Cache, namespace string, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, cache: cache, namespace: namespace, logger: logger}
}

func (c *Cached) Configured() bool {
	return c.next.Configured()
}

func (c *Cached) FetchRankedPage(ctx context.Context, q PageQuery, page int) ([]Title, error) {
	key := fmt.Sprintf("%s:page:%s:%d", c.namespace, q.Key(), page)
	return cachedCall(ctx, c, key, func() ([]Title, error) {
		return c.next.FetchRankedPage(ctx, q, page)
	})
}

func (c *Cached) FetchProviders(ctx context.Context, titleID int) ([]string, error) {
	key := fmt.Sprintf("%s:providers:%d", c.namespace, titleID)
	return cachedCall(ctx, c, key, func() ([]string, error) {
		return c.next.FetchProviders(ctx, titleID)
	})
}

func (c *Cached) SearchByName(ctx context.Context, query string) ([]Title, error) {
	key := fmt.Sprintf("%s:search:%s", c.namespace, query)
	return cachedCall(ctx, c, key, func() ([]Title, error) {
		return c.next.SearchByName(ctx, query)
	})
}

func cachedCall[T any](ctx context.Context, c *Cached, key string, fetch func() (T, error)) (T, error) {
	if raw, ok := c.cache.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		c.logger.Warn("dropping undecodable catalog cache entry", "key", key)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		v, err := fetch()
		if err != nil {
			return v, err
		}
		if raw, err := json.Marshal(v); err == nil {
			c.cache.Set(ctx, key, raw)
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
