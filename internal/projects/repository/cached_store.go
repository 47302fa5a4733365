package repository

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

// CachedStore fronts a ContextStore with an LRU of committed snapshots. Cached
// values are cloned on the way in and out so callers never share memory with
// the cache. It assumes it is the only writer to the backing store; writers in
// other processes (spacesctl purge on a shared database) are not observed.
//
// Only Put fills the cache. A cache-miss read never populates it, so a reader
// racing a commit cannot install a snapshot older than the committed one.
type CachedStore struct {
	next  ContextStore
	cache *lru.Cache[string, *domain.Project]
}

func NewCachedStore(next ContextStore, size int) (*CachedStore, error) {
	if size <= 0 {
		return nil, fmt.Errorf("snapshot cache size must be positive, got %d", size)
	}
	cache, err := lru.New[string, *domain.Project](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{next: next, cache: cache}, nil
}

func (c *CachedStore) Get(ctx context.Context, id string) (*domain.Project, error) {
	if p, ok := c.cache.Get(id); ok {
		return p.Clone(), nil
	}
	return c.next.Get(ctx, id)
}

func (c *CachedStore) Put(ctx context.Context, p *domain.Project) error {
	if err := c.next.Put(ctx, p); err != nil {
		c.cache.Remove(p.ID)
		return err
	}
	c.cache.Add(p.ID, p.Clone())
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, id string) error {
	c.cache.Remove(id)
	return c.next.Delete(ctx, id)
}

func (c *CachedStore) List(ctx context.Context) ([]Summary, error) {
	return c.next.List(ctx)
}

// Len reports the number of cached snapshots.
func (c *CachedStore) Len() int { return c.cache.Len() }

// IsNotFound reports whether err means the project does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrProjectNotFound)
}
