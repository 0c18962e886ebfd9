package geo

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultReverseCacheSize bounds the reverse lookup cache.
const DefaultReverseCacheSize = 256

// CachedProvider memoises reverse lookups and collapses identical concurrent
// requests into one upstream call. Coordinates are keyed at 5 decimals
// (about a metre). Searches are collapsed but not cached.
type CachedProvider struct {
	next    Provider
	reverse *lru.Cache[string, string]
	group   singleflight.Group
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps next with a cache of size entries.
func NewCachedProvider(next Provider, size int) (*CachedProvider, error) {
	if size <= 0 {
		size = DefaultReverseCacheSize
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create reverse cache: %w", err)
	}
	return &CachedProvider{next: next, reverse: c}, nil
}

func (c *CachedProvider) Search(ctx context.Context, query string) ([]Candidate, error) {
	v, err, _ := c.group.Do("s:"+query, func() (interface{}, error) {
		return c.next.Search(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	src := v.([]Candidate)
	out := make([]Candidate, len(src))
	copy(out, src)
	return out, nil
}

func (c *CachedProvider) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	key := fmt.Sprintf("%.5f,%.5f", lat, lon)
	if addr, ok := c.reverse.Get(key); ok {
		return addr, nil
	}
	v, err, _ := c.group.Do("r:"+key, func() (interface{}, error) {
		addr, err := c.next.Reverse(ctx, lat, lon)
		if err != nil {
			return "", err
		}
		c.reverse.Add(key, addr)
		return addr, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Len returns the number of cached reverse lookups.
func (c *CachedProvider) Len() int {
	return c.reverse.Len()
}
