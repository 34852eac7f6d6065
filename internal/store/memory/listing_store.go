package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// ListingStore implements domain.ListingStore.
type ListingStore struct {
	db *DB
}

// NewListingStore creates a ListingStore over db.
func NewListingStore(db *DB) *ListingStore {
	return &ListingStore{db: db}
}

func (s *ListingStore) Create(_ context.Context, l domain.Listing) (domain.Listing, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := time.Now().UTC()
	l = l.Clone()
	l.ID = s.db.nextListing
	l.Version = 1
	l.CreatedAt = now
	l.UpdatedAt = now
	s.db.listings[l.ID] = l
	s.db.nextListing++
	return l.Clone(), nil
}

func (s *ListingStore) GetByID(_ context.Context, id uint64) (domain.Listing, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	l, ok := s.db.listings[id]
	if !ok {
		return domain.Listing{}, fmt.Errorf("memory: listing %d: %w", id, domain.ErrNotFound)
	}
	return l.Clone(), nil
}

func (s *ListingStore) Update(_ context.Context, l domain.Listing) (domain.Listing, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	return s.db.putListing(l)
}

// putListing applies a versioned write. Callers hold db.mu.
func (db *DB) putListing(l domain.Listing) (domain.Listing, error) {
	cur, ok := db.listings[l.ID]
	if !ok {
		return domain.Listing{}, fmt.Errorf("memory: listing %d: %w", l.ID, domain.ErrNotFound)
	}
	if cur.Version != l.Version {
		return domain.Listing{}, fmt.Errorf("memory: listing %d at version %d, have %d: %w",
			l.ID, cur.Version, l.Version, domain.ErrConflict)
	}
	l = l.Clone()
	l.CreatedAt = cur.CreatedAt
	l.Version++
	l.UpdatedAt = time.Now().UTC()
	db.listings[l.ID] = l
	return l.Clone(), nil
}

func (s *ListingStore) List(_ context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	s.db.mu.RLock()
	out := make([]domain.Listing, 0, len(s.db.listings))
	for _, l := range s.db.listings {
		if filter.Match(l) {
			out = append(out, l.Clone())
		}
	}
	s.db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, filter.Limit, filter.Offset), nil
}

var _ domain.ListingStore = (*ListingStore)(nil)
