package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// SaleStore implements domain.SaleStore.
type SaleStore struct {
	db *DB
}

// NewSaleStore creates a SaleStore over db.
func NewSaleStore(db *DB) *SaleStore {
	return &SaleStore{db: db}
}

// Commit validates every version before writing anything, so a conflict
// leaves all tables untouched.
func (s *SaleStore) Commit(_ context.Context, c domain.SaleCommit) (domain.Listing, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	cur, ok := s.db.listings[c.Listing.ID]
	if !ok {
		return domain.Listing{}, fmt.Errorf("memory: listing %d: %w", c.Listing.ID, domain.ErrNotFound)
	}
	if cur.Version != c.Listing.Version {
		return domain.Listing{}, fmt.Errorf("memory: listing %d: %w", c.Listing.ID, domain.ErrConflict)
	}
	if c.Offer != nil {
		o, ok := s.db.offers[c.Offer.ID]
		if !ok {
			return domain.Listing{}, fmt.Errorf("memory: offer %d: %w", c.Offer.ID, domain.ErrNotFound)
		}
		if o.Version != c.Offer.Version {
			return domain.Listing{}, fmt.Errorf("memory: offer %d: %w", c.Offer.ID, domain.ErrConflict)
		}
	}
	if _, dup := s.db.sales[c.Sale.ID]; dup {
		return domain.Listing{}, fmt.Errorf("memory: sale %s: %w", c.Sale.ID, domain.ErrConflict)
	}

	l, err := s.db.putListing(c.Listing)
	if err != nil {
		return domain.Listing{}, err
	}
	if c.Offer != nil {
		if _, err := s.db.putOffer(*c.Offer); err != nil {
			return domain.Listing{}, err
		}
	}
	s.db.sales[c.Sale.ID] = cloneSale(c.Sale)
	s.db.saleOrder = append(s.db.saleOrder, c.Sale.ID)
	return l, nil
}

func (s *SaleStore) GetByID(_ context.Context, id string) (domain.Sale, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	sale, ok := s.db.sales[id]
	if !ok {
		return domain.Sale{}, fmt.Errorf("memory: sale %s: %w", id, domain.ErrNotFound)
	}
	return cloneSale(sale), nil
}

// List returns sales newest first.
func (s *SaleStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Sale, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]domain.Sale, 0, len(s.db.saleOrder))
	for i := len(s.db.saleOrder) - 1; i >= 0; i-- {
		sale := s.db.sales[s.db.saleOrder[i]]
		if opts.Since != nil && sale.SettledAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !sale.SettledAt.Before(*opts.Until) {
			continue
		}
		out = append(out, cloneSale(sale))
	}
	return page(out, opts.Limit, opts.Offset), nil
}

// ListBefore returns sales settled before the cutoff, oldest first.
func (s *SaleStore) ListBefore(_ context.Context, before time.Time) ([]domain.Sale, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []domain.Sale
	for _, id := range s.db.saleOrder {
		sale := s.db.sales[id]
		if sale.SettledAt.Before(before) {
			out = append(out, cloneSale(sale))
		}
	}
	return out, nil
}

func cloneSale(s domain.Sale) domain.Sale {
	out := s
	out.Price = domain.CloneAmount(s.Price)
	out.Fee = domain.CloneAmount(s.Fee)
	if s.OfferID != nil {
		out.OfferID = domain.U64(*s.OfferID)
	}
	return out
}

var _ domain.SaleStore = (*SaleStore)(nil)
