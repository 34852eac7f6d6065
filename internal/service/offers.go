package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// MakeOffer records bidder's standing offer of price against a listing.
// Funds are not reserved until the offer is filled.
func (m *Marketplace) MakeOffer(ctx context.Context, bidder common.Address, listingID uint64, price *big.Int) (domain.Offer, error) {
	if bidder == (common.Address{}) {
		return domain.Offer{}, fmt.Errorf("marketplace: make offer: bidder is required: %w", domain.ErrInvalidInput)
	}
	if err := checkPrice(price); err != nil {
		return domain.Offer{}, fmt.Errorf("marketplace: make offer: %w", err)
	}

	unlock, err := m.lockListing(ctx, listingID)
	if err != nil {
		return domain.Offer{}, err
	}
	defer unlock()

	l, err := m.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("marketplace: make offer on %d: %w", listingID, err)
	}
	if l.Sold() {
		return domain.Offer{}, fmt.Errorf("marketplace: make offer on %d: %w", listingID, domain.ErrNotForSale)
	}
	owner, err := m.tokens.OwnerOf(ctx, l.TokenID)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("marketplace: owner of token %d: %w", l.TokenID, err)
	}
	if owner == bidder {
		return domain.Offer{}, fmt.Errorf("marketplace: make offer on %d: bidder owns the token: %w", listingID, domain.ErrInvalidInput)
	}
	if err := m.checkApproved(ctx, owner, l.TokenID); err != nil {
		return domain.Offer{}, fmt.Errorf("marketplace: make offer on %d: %w", listingID, err)
	}

	o, err := m.offers.Create(ctx, domain.Offer{
		ListingID: listingID,
		Bidder:    bidder,
		Price:     domain.CloneAmount(price),
		Status:    domain.OfferStatusOpen,
	})
	if err != nil {
		return domain.Offer{}, fmt.Errorf("marketplace: create offer: %w", err)
	}

	m.events.Emit(ctx, domain.Event{
		Type:      domain.EventOfferCreated,
		OfferID:   domain.U64(o.ID),
		ListingID: domain.U64(o.ListingID),
		Price:     domain.CloneAmount(o.Price),
	})
	m.logger.InfoContext(ctx, "marketplace: offer created",
		slog.Uint64("offer_id", o.ID),
		slog.Uint64("listing_id", o.ListingID),
		slog.String("bidder", bidder.Hex()),
		slog.String("price", o.Price.String()),
	)
	return o, nil
}

// FillOffer accepts an open offer. The caller must own the token; the
// bidder's funds are held and settled exactly as in BuyItem.
func (m *Marketplace) FillOffer(ctx context.Context, caller common.Address, offerID uint64) (domain.Sale, error) {
	o, unlock, err := m.lockOffer(ctx, offerID)
	if err != nil {
		return domain.Sale{}, err
	}
	defer unlock()

	if o.Terminal() {
		return domain.Sale{}, fmt.Errorf("marketplace: fill offer %d (%s): %w", offerID, o.Status, domain.ErrAlreadyTerminal)
	}
	l, err := m.listings.GetByID(ctx, o.ListingID)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("marketplace: fill offer %d: %w", offerID, err)
	}
	if l.Sold() {
		return domain.Sale{}, fmt.Errorf("marketplace: fill offer %d: listing %d: %w", offerID, l.ID, domain.ErrNotForSale)
	}
	owner, err := m.tokens.OwnerOf(ctx, l.TokenID)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("marketplace: owner of token %d: %w", l.TokenID, err)
	}
	if caller != owner {
		return domain.Sale{}, fmt.Errorf("marketplace: fill offer %d: caller is not the owner: %w", offerID, domain.ErrUnauthorized)
	}
	if o.Bidder == owner {
		return domain.Sale{}, fmt.Errorf("marketplace: fill offer %d: bidder already owns it: %w", offerID, domain.ErrInvalidInput)
	}
	if err := m.checkApproved(ctx, owner, l.TokenID); err != nil {
		return domain.Sale{}, fmt.Errorf("marketplace: fill offer %d: %w", offerID, err)
	}

	sale, l, err := m.settle(ctx, l, owner, o.Bidder, o.Price, &o)
	if err != nil && sale.ID == "" {
		return domain.Sale{}, fmt.Errorf("marketplace: fill offer %d: %w", offerID, err)
	}

	// A committed sale is announced even when token delivery is pending.
	m.events.Emit(ctx, domain.Event{
		Type:      domain.EventOfferFilled,
		OfferID:   domain.U64(o.ID),
		ListingID: domain.U64(l.ID),
		Buyer:     &o.Bidder,
		Price:     domain.CloneAmount(sale.Price),
	})
	m.logger.InfoContext(ctx, "marketplace: offer filled",
		slog.Uint64("offer_id", o.ID),
		slog.Uint64("listing_id", l.ID),
		slog.String("buyer", o.Bidder.Hex()),
		slog.String("price", sale.Price.String()),
	)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("marketplace: fill offer %d: %w", offerID, err)
	}
	return sale, nil
}

// CancelOffer withdraws an open offer. Only the bidder may cancel.
func (m *Marketplace) CancelOffer(ctx context.Context, caller common.Address, offerID uint64) (domain.Offer, error) {
	o, unlock, err := m.lockOffer(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	defer unlock()

	if caller != o.Bidder {
		return domain.Offer{}, fmt.Errorf("marketplace: cancel offer %d: caller is not the bidder: %w", offerID, domain.ErrUnauthorized)
	}
	if o.Terminal() {
		return domain.Offer{}, fmt.Errorf("marketplace: cancel offer %d (%s): %w", offerID, o.Status, domain.ErrAlreadyTerminal)
	}

	o.Status = domain.OfferStatusCancelled
	o, err = m.offers.Update(ctx, o)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("marketplace: cancel offer %d: %w", offerID, err)
	}

	m.events.Emit(ctx, domain.Event{
		Type:    domain.EventOfferCancelled,
		OfferID: domain.U64(o.ID),
	})
	m.logger.InfoContext(ctx, "marketplace: offer cancelled", slog.Uint64("offer_id", o.ID))
	return o, nil
}

// lockOffer takes the lock of the offer's listing and returns the offer as
// read under that lock.
func (m *Marketplace) lockOffer(ctx context.Context, offerID uint64) (domain.Offer, func(), error) {
	o, err := m.offers.GetByID(ctx, offerID)
	if err != nil {
		return domain.Offer{}, nil, fmt.Errorf("marketplace: offer %d: %w", offerID, err)
	}
	unlock, err := m.lockListing(ctx, o.ListingID)
	if err != nil {
		return domain.Offer{}, nil, err
	}
	o, err = m.offers.GetByID(ctx, offerID)
	if err != nil {
		unlock()
		return domain.Offer{}, nil, fmt.Errorf("marketplace: offer %d: %w", offerID, err)
	}
	return o, unlock, nil
}
