package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// GetCollection returns a collection by id.
func (m *Marketplace) GetCollection(ctx context.Context, id uint64) (domain.Collection, error) {
	c, err := m.collections.GetByID(ctx, id)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("marketplace: get collection %d: %w", id, err)
	}
	return c, nil
}

// ListCollections returns collections in id order.
func (m *Marketplace) ListCollections(ctx context.Context, opts domain.ListOpts) ([]domain.Collection, error) {
	cs, err := m.collections.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("marketplace: list collections: %w", err)
	}
	return cs, nil
}

// GetListing returns a listing by id, from the cache when one is attached.
func (m *Marketplace) GetListing(ctx context.Context, id uint64) (domain.Listing, error) {
	if m.cache != nil {
		if l, err := m.cache.Get(ctx, id); err == nil {
			return l, nil
		}
	}

	l, err := m.listings.GetByID(ctx, id)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("marketplace: get listing %d: %w", id, err)
	}
	if m.cache != nil {
		if err := m.cache.Set(ctx, l); err != nil {
			m.logger.DebugContext(ctx, "marketplace: cache fill failed",
				slog.Uint64("listing_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return l, nil
}

// ListListings enumerates listings by collection and for-sale status.
func (m *Marketplace) ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	ls, err := m.listings.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("marketplace: list listings: %w", err)
	}
	return ls, nil
}

// GetOffer returns an offer by id.
func (m *Marketplace) GetOffer(ctx context.Context, id uint64) (domain.Offer, error) {
	o, err := m.offers.GetByID(ctx, id)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("marketplace: get offer %d: %w", id, err)
	}
	return o, nil
}

// ListOffers returns the offers made against a listing.
func (m *Marketplace) ListOffers(ctx context.Context, listingID uint64, opts domain.ListOpts) ([]domain.Offer, error) {
	if _, err := m.listings.GetByID(ctx, listingID); err != nil {
		return nil, fmt.Errorf("marketplace: list offers of %d: %w", listingID, err)
	}
	os, err := m.offers.ListByListing(ctx, listingID, opts)
	if err != nil {
		return nil, fmt.Errorf("marketplace: list offers of %d: %w", listingID, err)
	}
	return os, nil
}

// ListSales returns settled sales, newest first.
func (m *Marketplace) ListSales(ctx context.Context, opts domain.ListOpts) ([]domain.Sale, error) {
	ss, err := m.sales.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("marketplace: list sales: %w", err)
	}
	return ss, nil
}
