package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

const defaultLockTTL = 30 * time.Second

// MarketplaceConfig holds the settlement parameters of a Marketplace.
type MarketplaceConfig struct {
	// Escrow is the operator address the Token Provider must approve before
	// a token can be sold or receive offers.
	Escrow       common.Address
	FeeBps       int
	FeeRecipient common.Address
	LockTTL      time.Duration
}

// MarketplaceDeps are the collaborators a Marketplace orchestrates.
type MarketplaceDeps struct {
	Collections domain.CollectionStore
	Listings    domain.ListingStore
	Offers      domain.OfferStore
	Sales       domain.SaleStore
	Tokens      domain.TokenProvider
	Payments    domain.PaymentSettler
	Locks       domain.LockManager
	Events      *EventPublisher
	Cache       domain.ListingCache // optional
}

// Marketplace is the only component that mutates collections, listings and
// offers, and the only one that asks the Token Provider to move a token.
// Every mutation of a listing, and of the offers against it, runs under the
// listing's lock.
type Marketplace struct {
	collections domain.CollectionStore
	listings    domain.ListingStore
	offers      domain.OfferStore
	sales       domain.SaleStore
	tokens      domain.TokenProvider
	payments    domain.PaymentSettler
	locks       domain.LockManager
	events      *EventPublisher
	cache       domain.ListingCache
	cfg         MarketplaceConfig
	logger      *slog.Logger
}

// NewMarketplace creates a Marketplace.
func NewMarketplace(deps MarketplaceDeps, cfg MarketplaceConfig, logger *slog.Logger) (*Marketplace, error) {
	if cfg.Escrow == (common.Address{}) {
		return nil, fmt.Errorf("marketplace: escrow address is required: %w", domain.ErrInvalidInput)
	}
	if cfg.FeeBps < 0 || cfg.FeeBps > 10_000 {
		return nil, fmt.Errorf("marketplace: fee_bps %d out of range: %w", cfg.FeeBps, domain.ErrInvalidInput)
	}
	if cfg.FeeBps > 0 && cfg.FeeRecipient == (common.Address{}) {
		return nil, fmt.Errorf("marketplace: fee recipient is required with a fee: %w", domain.ErrInvalidInput)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}

	return &Marketplace{
		collections: deps.Collections,
		listings:    deps.Listings,
		offers:      deps.Offers,
		sales:       deps.Sales,
		tokens:      deps.Tokens,
		payments:    deps.Payments,
		locks:       deps.Locks,
		events:      deps.Events,
		cache:       deps.Cache,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "marketplace")),
	}, nil
}

// Escrow returns the operator address sellers must approve.
func (m *Marketplace) Escrow() common.Address { return m.cfg.Escrow }

// CreateCollection registers a new collection. Empty names are accepted.
func (m *Marketplace) CreateCollection(ctx context.Context, name string) (domain.Collection, error) {
	c, err := m.collections.Create(ctx, name)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("marketplace: create collection: %w", err)
	}

	m.events.Emit(ctx, domain.Event{
		Type:         domain.EventCollectionCreated,
		CollectionID: domain.U64(c.ID),
		Name:         c.Name,
	})
	m.logger.InfoContext(ctx, "marketplace: collection created",
		slog.Uint64("collection_id", c.ID),
		slog.String("name", c.Name),
	)
	return c, nil
}

// CreateMarketItem mints a token for creator and records an unlisted
// listing for it in the given collection.
func (m *Marketplace) CreateMarketItem(ctx context.Context, creator common.Address, collectionID uint64, uri string) (domain.Listing, error) {
	if creator == (common.Address{}) {
		return domain.Listing{}, fmt.Errorf("marketplace: create item: creator is required: %w", domain.ErrInvalidInput)
	}
	if _, err := m.collections.GetByID(ctx, collectionID); err != nil {
		return domain.Listing{}, fmt.Errorf("marketplace: create item in collection %d: %w", collectionID, err)
	}

	tokenID, err := m.tokens.Mint(ctx, creator, uri)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("marketplace: mint token: %w", err)
	}

	l, err := m.listings.Create(ctx, domain.Listing{
		TokenID:      tokenID,
		CollectionID: collectionID,
		URI:          uri,
		Price:        new(big.Int),
		Status:       domain.ListingStatusUnlisted,
		Creator:      creator,
		Seller:       creator,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "marketplace: token minted without listing",
			slog.Uint64("token_id", tokenID),
			slog.String("error", err.Error()),
		)
		return domain.Listing{}, fmt.Errorf("marketplace: create listing: %w", err)
	}
	m.cacheListing(ctx, l)

	m.events.Emit(ctx, domain.Event{
		Type:         domain.EventMarketNftCreated,
		ListingID:    domain.U64(l.ID),
		CollectionID: domain.U64(l.CollectionID),
		URI:          l.URI,
		TokenID:      domain.U64(l.TokenID),
	})
	m.logger.InfoContext(ctx, "marketplace: item created",
		slog.Uint64("listing_id", l.ID),
		slog.Uint64("token_id", l.TokenID),
		slog.Uint64("collection_id", l.CollectionID),
	)
	return l, nil
}

// ListItem puts a listing up for sale at price. Only the current token owner
// may list, and a sold listing cannot be relisted.
func (m *Marketplace) ListItem(ctx context.Context, caller common.Address, listingID uint64, price *big.Int) (domain.Listing, error) {
	unlock, err := m.lockListing(ctx, listingID)
	if err != nil {
		return domain.Listing{}, err
	}
	defer unlock()

	l, err := m.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("marketplace: list item %d: %w", listingID, err)
	}
	if l.Sold() {
		return domain.Listing{}, fmt.Errorf("marketplace: list item %d: %w", listingID, domain.ErrAlreadyTerminal)
	}
	if l.URI == "" {
		return domain.Listing{}, fmt.Errorf("marketplace: list item %d: token uri is empty: %w", listingID, domain.ErrInvalidInput)
	}
	if err := checkPrice(price); err != nil {
		return domain.Listing{}, fmt.Errorf("marketplace: list item %d: %w", listingID, err)
	}
	owner, err := m.tokens.OwnerOf(ctx, l.TokenID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("marketplace: owner of token %d: %w", l.TokenID, err)
	}
	if caller != owner {
		return domain.Listing{}, fmt.Errorf("marketplace: list item %d: caller is not the owner: %w", listingID, domain.ErrUnauthorized)
	}

	l.Price = domain.CloneAmount(price)
	l.Status = domain.ListingStatusForSale
	l.Seller = owner
	l, err = m.listings.Update(ctx, l)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("marketplace: list item %d: %w", listingID, err)
	}
	m.cacheListing(ctx, l)

	m.events.Emit(ctx, domain.Event{
		Type:      domain.EventItemListed,
		ListingID: domain.U64(l.ID),
		Price:     domain.CloneAmount(l.Price),
	})
	m.logger.InfoContext(ctx, "marketplace: item listed",
		slog.Uint64("listing_id", l.ID),
		slog.String("price", l.Price.String()),
	)
	return l, nil
}

// DelistItem withdraws a for-sale listing. The price is reset to zero.
func (m *Marketplace) DelistItem(ctx context.Context, caller common.Address, listingID uint64) (domain.Listing, error) {
	unlock, err := m.lockListing(ctx, listingID)
	if err != nil {
		return domain.Listing{}, err
	}
	defer unlock()

	l, err := m.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("marketplace: delist item %d: %w", listingID, err)
	}
	if !l.ForSale() {
		return domain.Listing{}, fmt.Errorf("marketplace: delist item %d: %w", listingID, domain.ErrNotForSale)
	}
	owner, err := m.tokens.OwnerOf(ctx, l.TokenID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("marketplace: owner of token %d: %w", l.TokenID, err)
	}
	if caller != owner {
		return domain.Listing{}, fmt.Errorf("marketplace: delist item %d: caller is not the owner: %w", listingID, domain.ErrUnauthorized)
	}

	l.Price = new(big.Int)
	l.Status = domain.ListingStatusUnlisted
	l, err = m.listings.Update(ctx, l)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("marketplace: delist item %d: %w", listingID, err)
	}
	m.cacheListing(ctx, l)

	m.events.Emit(ctx, domain.Event{
		Type:      domain.EventItemDelisted,
		ListingID: domain.U64(l.ID),
	})
	m.logger.InfoContext(ctx, "marketplace: item delisted", slog.Uint64("listing_id", l.ID))
	return l, nil
}

// BuyItem sells a for-sale listing to buyer at its listed price. payment
// must cover the price; only the price is charged.
//
// The listing's existence is checked before the buyer and payment arguments.
func (m *Marketplace) BuyItem(ctx context.Context, buyer common.Address, listingID uint64, payment *big.Int) (domain.Sale, error) {
	unlock, err := m.lockListing(ctx, listingID)
	if err != nil {
		return domain.Sale{}, err
	}
	defer unlock()

	l, err := m.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("marketplace: buy item %d: %w", listingID, err)
	}
	if buyer == (common.Address{}) {
		return domain.Sale{}, fmt.Errorf("marketplace: buy item %d: buyer is required: %w", listingID, domain.ErrInvalidInput)
	}
	if err := checkPrice(payment); err != nil {
		return domain.Sale{}, fmt.Errorf("marketplace: buy item %d: payment: %w", listingID, err)
	}
	if !l.ForSale() {
		return domain.Sale{}, fmt.Errorf("marketplace: buy item %d: %w", listingID, domain.ErrNotForSale)
	}
	if payment.Cmp(l.Price) < 0 {
		return domain.Sale{}, fmt.Errorf("marketplace: buy item %d: payment %s below price %s: %w",
			listingID, payment, l.Price, domain.ErrInvalidInput)
	}

	owner, err := m.tokens.OwnerOf(ctx, l.TokenID)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("marketplace: owner of token %d: %w", l.TokenID, err)
	}
	if owner != l.Seller {
		// The token changed hands after it was listed.
		return domain.Sale{}, fmt.Errorf("marketplace: buy item %d: listing is stale: %w", listingID, domain.ErrNotForSale)
	}
	if owner == buyer {
		return domain.Sale{}, fmt.Errorf("marketplace: buy item %d: buyer already owns it: %w", listingID, domain.ErrInvalidInput)
	}
	if err := m.checkApproved(ctx, owner, l.TokenID); err != nil {
		return domain.Sale{}, fmt.Errorf("marketplace: buy item %d: %w", listingID, err)
	}

	sale, l, err := m.settle(ctx, l, owner, buyer, l.Price, nil)
	if err != nil && sale.ID == "" {
		return domain.Sale{}, fmt.Errorf("marketplace: buy item %d: %w", listingID, err)
	}

	// A committed sale is announced even when token delivery is pending.
	m.events.Emit(ctx, domain.Event{
		Type:      domain.EventItemSold,
		ListingID: domain.U64(l.ID),
		TokenID:   domain.U64(l.TokenID),
		Buyer:     &buyer,
		Price:     domain.CloneAmount(sale.Price),
	})
	m.logger.InfoContext(ctx, "marketplace: item sold",
		slog.Uint64("listing_id", l.ID),
		slog.String("buyer", buyer.Hex()),
		slog.String("seller", owner.Hex()),
		slog.String("price", sale.Price.String()),
	)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("marketplace: buy item %d: %w", listingID, err)
	}
	return sale, nil
}

// lockListing serialises every mutation of a listing and its offers.
func (m *Marketplace) lockListing(ctx context.Context, listingID uint64) (func(), error) {
	unlock, err := m.locks.Acquire(ctx, fmt.Sprintf("listing:%d", listingID), m.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("marketplace: lock listing %d: %w", listingID, err)
	}
	return unlock, nil
}

// checkApproved fails with ErrNotApproved unless the escrow may move tokenID
// on owner's behalf.
func (m *Marketplace) checkApproved(ctx context.Context, owner common.Address, tokenID uint64) error {
	approved, err := m.tokens.GetApproved(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("approved for token %d: %w", tokenID, err)
	}
	if approved == m.cfg.Escrow {
		return nil
	}
	all, err := m.tokens.IsApprovedForAll(ctx, owner, m.cfg.Escrow)
	if err != nil {
		return fmt.Errorf("operator for %s: %w", owner.Hex(), err)
	}
	if !all {
		return fmt.Errorf("escrow %s is not approved for token %d: %w", m.cfg.Escrow.Hex(), tokenID, domain.ErrNotApproved)
	}
	return nil
}

func (m *Marketplace) cacheListing(ctx context.Context, l domain.Listing) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Set(ctx, l); err != nil {
		m.logger.WarnContext(ctx, "marketplace: cache listing failed, invalidating",
			slog.Uint64("listing_id", l.ID),
			slog.String("error", err.Error()),
		)
		// A stale entry would outlive the write; drop it.
		if err := m.cache.Invalidate(ctx, l.ID); err != nil {
			m.logger.ErrorContext(ctx, "marketplace: invalidate cached listing failed",
				slog.Uint64("listing_id", l.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func checkPrice(price *big.Int) error {
	if !domain.IsPositive(price) {
		return fmt.Errorf("price must be greater than 0: %w", domain.ErrInvalidInput)
	}
	if price.Cmp(domain.MaxPrice) > 0 {
		return fmt.Errorf("price exceeds 128 bits: %w", domain.ErrInvalidInput)
	}
	return nil
}

// isBusinessError reports whether err is a validation outcome rather than an
// infrastructure failure.
func isBusinessError(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidInput, domain.ErrNotFound, domain.ErrNotApproved,
		domain.ErrNotForSale, domain.ErrAlreadyTerminal, domain.ErrUnauthorized,
		domain.ErrInsufficientFunds,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
