package loader

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/and161185/riffid/internal/principal"
)

type cachedData struct{ d *principal.Data }

// Cached memoizes another loader's results, including empty ones, for ttl.
// Errors are not cached.
type Cached struct {
	inner Loader
	cache *expirable.LRU[int64, cachedData]
}

var _ Loader = (*Cached)(nil)

// NewCached wraps inner with an LRU of at most size entries.
func NewCached(inner Loader, size int, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: expirable.NewLRU[int64, cachedData](size, nil, ttl),
	}
}

// Supports delegates to the wrapped loader.
func (c *Cached) Supports(strategy string) bool { return c.inner.Supports(strategy) }

// Load serves from cache or loads and stores.
func (c *Cached) Load(ctx context.Context, userID int64) (*principal.Data, error) {
	if v, ok := c.cache.Get(userID); ok {
		return v.d, nil
	}
	d, err := c.inner.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(userID, cachedData{d: d})
	return d, nil
}

// Invalidate drops the cached entry for userID.
func (c *Cached) Invalidate(userID int64) { c.cache.Remove(userID) }
