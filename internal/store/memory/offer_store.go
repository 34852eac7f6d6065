package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// OfferStore implements domain.OfferStore.
type OfferStore struct {
	db *DB
}

// NewOfferStore creates an OfferStore over db.
func NewOfferStore(db *DB) *OfferStore {
	return &OfferStore{db: db}
}

func (s *OfferStore) Create(_ context.Context, o domain.Offer) (domain.Offer, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := time.Now().UTC()
	o = o.Clone()
	o.ID = s.db.nextOffer
	o.Version = 1
	o.CreatedAt = now
	o.UpdatedAt = now
	s.db.offers[o.ID] = o
	s.db.nextOffer++
	return o.Clone(), nil
}

func (s *OfferStore) GetByID(_ context.Context, id uint64) (domain.Offer, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	o, ok := s.db.offers[id]
	if !ok {
		return domain.Offer{}, fmt.Errorf("memory: offer %d: %w", id, domain.ErrNotFound)
	}
	return o.Clone(), nil
}

func (s *OfferStore) Update(_ context.Context, o domain.Offer) (domain.Offer, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	return s.db.putOffer(o)
}

// putOffer applies a versioned write. Callers hold db.mu.
func (db *DB) putOffer(o domain.Offer) (domain.Offer, error) {
	cur, ok := db.offers[o.ID]
	if !ok {
		return domain.Offer{}, fmt.Errorf("memory: offer %d: %w", o.ID, domain.ErrNotFound)
	}
	if cur.Version != o.Version {
		return domain.Offer{}, fmt.Errorf("memory: offer %d at version %d, have %d: %w",
			o.ID, cur.Version, o.Version, domain.ErrConflict)
	}
	o = o.Clone()
	o.CreatedAt = cur.CreatedAt
	o.Version++
	o.UpdatedAt = time.Now().UTC()
	db.offers[o.ID] = o
	return o.Clone(), nil
}

func (s *OfferStore) ListByListing(_ context.Context, listingID uint64, opts domain.ListOpts) ([]domain.Offer, error) {
	s.db.mu.RLock()
	var out []domain.Offer
	for _, o := range s.db.offers {
		if o.ListingID == listingID {
			out = append(out, o.Clone())
		}
	}
	s.db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, opts.Limit, opts.Offset), nil
}

var _ domain.OfferStore = (*OfferStore)(nil)
