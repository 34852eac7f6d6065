package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OfferStatus tracks the offer lifecycle. Fulfilled and cancelled are both
// terminal and mutually exclusive.
type OfferStatus string

const (
	OfferStatusOpen      OfferStatus = "open"
	OfferStatusFulfilled OfferStatus = "fulfilled"
	OfferStatusCancelled OfferStatus = "cancelled"
)

// Offer is a standing bid against a listing. Funds are not reserved when the
// offer is made; the bidder's payment is held at fill time.
type Offer struct {
	ID        uint64         `json:"id"`
	ListingID uint64         `json:"listing_id"`
	Bidder    common.Address `json:"bidder"`
	Price     *big.Int       `json:"price"`
	Status    OfferStatus    `json:"status"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Fulfilled reports whether the offer was filled.
func (o Offer) Fulfilled() bool { return o.Status == OfferStatusFulfilled }

// Cancelled reports whether the bidder withdrew the offer.
func (o Offer) Cancelled() bool { return o.Status == OfferStatusCancelled }

// Terminal reports whether the offer can no longer change.
func (o Offer) Terminal() bool { return o.Status != OfferStatusOpen }

// Clone returns a copy that shares no mutable state with o.
func (o Offer) Clone() Offer {
	out := o
	out.Price = CloneAmount(o.Price)
	return out
}
