package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// CollectionStore implements domain.CollectionStore.
type CollectionStore struct {
	db *DB
}

// NewCollectionStore creates a CollectionStore over db.
func NewCollectionStore(db *DB) *CollectionStore {
	return &CollectionStore{db: db}
}

func (s *CollectionStore) Create(_ context.Context, name string) (domain.Collection, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	c := domain.Collection{
		ID:        s.db.nextCollection,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	s.db.collections[c.ID] = c
	s.db.nextCollection++
	return c, nil
}

func (s *CollectionStore) GetByID(_ context.Context, id uint64) (domain.Collection, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	c, ok := s.db.collections[id]
	if !ok {
		return domain.Collection{}, fmt.Errorf("memory: collection %d: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (s *CollectionStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Collection, error) {
	s.db.mu.RLock()
	out := make([]domain.Collection, 0, len(s.db.collections))
	for _, c := range s.db.collections {
		out = append(out, c)
	}
	s.db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, opts.Limit, opts.Offset), nil
}

var _ domain.CollectionStore = (*CollectionStore)(nil)
