package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soochol/connreg/internal/connreg"
	memstore "github.com/soochol/connreg/internal/repository/memory"
)

// MemoryConnectionRepository is a thread-safe in-memory connection store.
// Writes are serialized so the name index and the records never disagree.
type MemoryConnectionRepository struct {
	mu    sync.Mutex
	store *memstore.Store[*connreg.Connection]
	names map[string]string // name -> id
	now   func() time.Time
}

func NewMemoryConnectionRepository() *MemoryConnectionRepository {
	return &MemoryConnectionRepository{
		store: memstore.New(func(c *connreg.Connection) string { return c.ID }),
		names: make(map[string]string),
		now:   time.Now,
	}
}

func (r *MemoryConnectionRepository) FindByID(ctx context.Context, id string) (*connreg.Connection, error) {
	c, err := r.store.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (r *MemoryConnectionRepository) ExistsByName(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[name]
	return ok, nil
}

func (r *MemoryConnectionRepository) Create(ctx context.Context, opts connreg.ConnectionOptions) (*connreg.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.names[opts.Name]; taken {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, opts.Name)
	}
	now := r.now().UTC()
	c := &connreg.Connection{
		ID:        connreg.NewConnectionID(),
		Name:      opts.Name,
		Host:      opts.Host,
		Port:      portOf(opts),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.Set(ctx, c); err != nil {
		return nil, err
	}
	r.names[c.Name] = c.ID
	return c.Clone(), nil
}

func (r *MemoryConnectionRepository) Update(ctx context.Context, id string, req connreg.UpdateRequest) (*connreg.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, err := r.store.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if req.Name != nil && *req.Name != cur.Name {
		if owner, taken := r.names[*req.Name]; taken && owner != id {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, *req.Name)
		}
	}

	next := cur.Clone()
	req.Apply(next)
	next.UpdatedAt = r.now().UTC()
	if err := r.store.Set(ctx, next); err != nil {
		return nil, err
	}
	if next.Name != cur.Name {
		delete(r.names, cur.Name)
		r.names[next.Name] = id
	}
	return next.Clone(), nil
}

func (r *MemoryConnectionRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, err := r.store.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	delete(r.names, cur.Name)
	return nil
}

// List returns every connection ordered by name.
func (r *MemoryConnectionRepository) List(ctx context.Context) ([]*connreg.Connection, error) {
	all, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*connreg.Connection, len(all))
	for i, c := range all {
		out[i] = c.Clone()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
