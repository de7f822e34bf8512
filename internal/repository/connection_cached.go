package repository

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/soochol/connreg/internal/cachemanager"
	"github.com/soochol/connreg/internal/connreg"
)

// CachedConnectionRepository wraps a backend with a read-through cache for
// FindByID. Writes go to the backend first and then invalidate. List and
// ExistsByName always hit the backend so uniqueness checks never see stale
// data.
//
// A read only fills the cache if no write finished while it was in flight.
type CachedConnectionRepository struct {
	next  ConnectionRepository
	cache cachemanager.CacheManager[*connreg.Connection]
	ttl   time.Duration
	group singleflight.Group

	mu  sync.Mutex
	gen uint64 // bumped after every write
}

func NewCachedConnectionRepository(next ConnectionRepository, cache cachemanager.CacheManager[*connreg.Connection], ttl time.Duration) *CachedConnectionRepository {
	return &CachedConnectionRepository{next: next, cache: cache, ttl: ttl}
}

func (r *CachedConnectionRepository) FindByID(ctx context.Context, id string) (*connreg.Connection, error) {
	// Fast path: cache.
	if c, ok := r.cache.Get(ctx, id); ok {
		return c.Clone(), nil
	}

	// Concurrent misses for one id share a single backend read.
	v, err, _ := r.group.Do(id, func() (any, error) {
		gen := r.generation()
		c, err := r.next.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		r.fill(ctx, id, c, gen)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*connreg.Connection).Clone(), nil
}

func (r *CachedConnectionRepository) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// fill caches c unless a write finished after gen was taken.
func (r *CachedConnectionRepository) fill(ctx context.Context, id string, c *connreg.Connection, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen == gen {
		r.cache.Set(ctx, id, c.Clone(), r.ttl)
	}
}

// invalidate drops id after a write. Later readers start a fresh flight
// instead of joining one that may have read the old value. Writes never
// store their result: two writes can finish in either order.
func (r *CachedConnectionRepository) invalidate(ctx context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.group.Forget(id)
	r.cache.Delete(ctx, id)
}

func (r *CachedConnectionRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	return r.next.ExistsByName(ctx, name)
}

func (r *CachedConnectionRepository) Create(ctx context.Context, opts connreg.ConnectionOptions) (*connreg.Connection, error) {
	return r.next.Create(ctx, opts)
}

func (r *CachedConnectionRepository) Update(ctx context.Context, id string, req connreg.UpdateRequest) (*connreg.Connection, error) {
	c, err := r.next.Update(ctx, id, req)
	r.invalidate(ctx, id)
	return c, err
}

func (r *CachedConnectionRepository) Delete(ctx context.Context, id string) error {
	err := r.next.Delete(ctx, id)
	r.invalidate(ctx, id)
	return err
}

func (r *CachedConnectionRepository) List(ctx context.Context) ([]*connreg.Connection, error) {
	return r.next.List(ctx)
}
