package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListingStatus tracks the sale lifecycle of a listing.
type ListingStatus string

const (
	ListingStatusUnlisted ListingStatus = "unlisted"
	ListingStatusForSale  ListingStatus = "for_sale"
	ListingStatusSold     ListingStatus = "sold" // terminal
)

// Listing is the marketplace-visible record for one token.
type Listing struct {
	ID           uint64         `json:"id"`
	TokenID      uint64         `json:"token_id"`
	CollectionID uint64         `json:"collection_id"`
	URI          string         `json:"uri"`
	Price        *big.Int       `json:"price"` // sale price while listed, clearing price once sold
	Status       ListingStatus  `json:"status"`
	Creator      common.Address `json:"creator"`
	Seller       common.Address `json:"seller"`
	Buyer        common.Address `json:"buyer"`
	Version      int64          `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	SoldAt       *time.Time     `json:"sold_at,omitempty"`
}

// ForSale reports whether the listing can currently be bought.
func (l Listing) ForSale() bool {
	return l.Status == ListingStatusForSale
}

// Sold reports whether the listing has reached its terminal state.
func (l Listing) Sold() bool {
	return l.Status == ListingStatusSold
}

// Clone returns a copy that shares no mutable state with l.
func (l Listing) Clone() Listing {
	out := l
	out.Price = CloneAmount(l.Price)
	if l.SoldAt != nil {
		t := *l.SoldAt
		out.SoldAt = &t
	}
	return out
}

// ListingFilter narrows listing queries. Nil fields are not applied.
type ListingFilter struct {
	CollectionID *uint64
	ForSale      *bool
	Limit        int
	Offset       int
}

// Match reports whether l satisfies every set field of f.
func (f ListingFilter) Match(l Listing) bool {
	if f.CollectionID != nil && l.CollectionID != *f.CollectionID {
		return false
	}
	if f.ForSale != nil && l.ForSale() != *f.ForSale {
		return false
	}
	return true
}
