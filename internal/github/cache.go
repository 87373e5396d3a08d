package github

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// CachedProvider memoizes metadata lookups in a bounded LRU keyed by
// (owner, repo, credential). Concurrent misses for the same key share one
// underlying fetch; errors are never cached.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, *RepositoryContext]
	group singleflight.Group
}

func NewCachedProvider(inner Provider, size int) (*CachedProvider, error) {
	if size <= 0 {
		size = 100
	}
	cache, err := lru.New[string, *RepositoryContext](size)
	if err != nil {
		return nil, err
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

func cacheKey(owner, repo, token string) string {
	return owner + "/" + repo + "\x00" + token
}

func (p *CachedProvider) Fetch(ctx context.Context, owner, repo, token string) (*RepositoryContext, error) {
	key := cacheKey(owner, repo, token)
	if rc, ok := p.cache.Get(key); ok {
		return rc, nil
	}
	v, err, _ := p.group.Do(key, func() (any, error) {
		if rc, ok := p.cache.Get(key); ok {
			return rc, nil
		}
		rc, err := p.inner.Fetch(ctx, owner, repo, token)
		if err != nil {
			return nil, err
		}
		p.cache.Add(key, rc)
		return rc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*RepositoryContext), nil
}
