package api

import (
	"context"
	"strconv"
	"time"

	"github.com/git-pkgs/reposearch/internal/core"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCacheSize = 128
	DefaultCacheTTL  = time.Minute
)

// Searcher is the search half of core.Server.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) (*core.Page, error)
}

// CachedSearcher memoizes successful search pages for a bounded time.
// Failed searches are never cached.
type CachedSearcher struct {
	next  Searcher
	cache *expirable.LRU[string, *core.Page]
}

// NewCachedSearcher wraps next with an LRU of at most size pages, each kept for ttl.
func NewCachedSearcher(next Searcher, size int, ttl time.Duration) *CachedSearcher {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSearcher{
		next:  next,
		cache: expirable.NewLRU[string, *core.Page](size, nil, ttl),
	}
}

func (c *CachedSearcher) Search(ctx context.Context, query string, limit int) (*core.Page, error) {
	key := strconv.Itoa(limit) + "\x00" + query
	if page, ok := c.cache.Get(key); ok {
		return page, nil
	}

	page, err := c.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, page)
	return page, nil
}

// Purge drops every cached page.
func (c *CachedSearcher) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached pages.
func (c *CachedSearcher) Len() int {
	return c.cache.Len()
}
