package savedqueries

import (
	"context"

	"stormlightlabs.org/hoopscore/internal/cache"
	"stormlightlabs.org/hoopscore/internal/query"
)

// cachedResource is the resource name every cache key for this package is
// built under; keeping it a constant means CachedStore and any future
// cache-inspection tooling key on exactly the same string.
const cachedResource = "saved_query"

// CachedStore decorates a Store with a Redis-backed cache-aside layer:
// Get and List are served from cache on a hit, and every mutation
// invalidates the affected entity plus the whole list (a saved-queries
// listing is cheap enough, and rare enough to change, that a blunt
// invalidate-the-list beats tracking per-query membership).
type CachedStore struct {
	inner Store
	repo  *cache.CachedRepository
}

// NewCachedStore wraps inner with client's Entity/List caching helpers.
// If client is nil, the returned Store behaves exactly like inner (the
// helpers all no-op on a nil *cache.Client).
func NewCachedStore(inner Store, client *cache.Client) Store {
	return &CachedStore{inner: inner, repo: cache.NewCachedRepository(client, cachedResource)}
}

func (c *CachedStore) Create(ctx context.Context, name string, ir query.Query) (*SavedQuery, error) {
	sq, err := c.inner.Create(ctx, name, ir)
	if err != nil {
		return nil, err
	}
	_, _ = c.repo.List.InvalidateAll(ctx)
	return sq, nil
}

func (c *CachedStore) Get(ctx context.Context, id string) (*SavedQuery, error) {
	var cached SavedQuery
	if c.repo.Entity.Get(ctx, id, &cached) {
		return &cached, nil
	}

	sq, err := c.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = c.repo.Entity.Set(ctx, id, sq)
	return sq, nil
}

func (c *CachedStore) List(ctx context.Context) ([]*SavedQuery, error) {
	var cached []*SavedQuery
	if c.repo.List.Get(ctx, nil, &cached) {
		return cached, nil
	}

	sqs, err := c.inner.List(ctx)
	if err != nil {
		return nil, err
	}
	_ = c.repo.List.Set(ctx, nil, sqs)
	return sqs, nil
}

func (c *CachedStore) Update(ctx context.Context, id string, name string, ir query.Query, expectedVersion int) (*SavedQuery, error) {
	sq, err := c.inner.Update(ctx, id, name, ir, expectedVersion)
	if err != nil {
		return nil, err
	}
	_ = c.repo.Entity.Delete(ctx, id)
	_, _ = c.repo.List.InvalidateAll(ctx)
	return sq, nil
}

func (c *CachedStore) Delete(ctx context.Context, id string) error {
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	_ = c.repo.Entity.Delete(ctx, id)
	_, _ = c.repo.List.InvalidateAll(ctx)
	return nil
}

func (c *CachedStore) RecordResultRowCount(ctx context.Context, id string, rowCount int) error {
	if err := c.inner.RecordResultRowCount(ctx, id, rowCount); err != nil {
		return err
	}
	_ = c.repo.Entity.Delete(ctx, id)
	return nil
}
