package fetch

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/opd-ai/picturebook/bookcompiler"
)

const (
	DefaultCacheTTL     = 10 * time.Minute
	DefaultCacheCleanup = 30 * time.Minute
)

// CachedSource remembers successful fetches of another source. Failures are
// never cached so a broken reference is retried on the next compile.
type CachedSource struct {
	next  bookcompiler.ImageSource
	cache *cache.Cache
}

// NewCachedSource wraps next with an in-memory cache. Zero durations select
// the defaults.
func NewCachedSource(next bookcompiler.ImageSource, ttl, cleanup time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if cleanup <= 0 {
		cleanup = DefaultCacheCleanup
	}
	return &CachedSource{
		next:  next,
		cache: cache.New(ttl, cleanup),
	}
}

// Fetch returns the cached blob for ref or fetches it from the wrapped source.
func (c *CachedSource) Fetch(ctx context.Context, ref string) (*bookcompiler.Blob, error) {
	if v, ok := c.cache.Get(ref); ok {
		if blob, ok := v.(*bookcompiler.Blob); ok {
			return blob, nil
		}
	}
	blob, err := c.next.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ref, blob, cache.DefaultExpiration)
	return blob, nil
}

// Forget drops ref from the cache.
func (c *CachedSource) Forget(ref string) {
	c.cache.Delete(ref)
}

// Len returns the number of cached references.
func (c *CachedSource) Len() int {
	return c.cache.ItemCount()
}
