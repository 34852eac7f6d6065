package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Sale is the journal entry written for every completed settlement.
type Sale struct {
	ID        string         `json:"id"`
	ListingID uint64         `json:"listing_id"`
	TokenID   uint64         `json:"token_id"`
	OfferID   *uint64        `json:"offer_id,omitempty"`
	Seller    common.Address `json:"seller"`
	Buyer     common.Address `json:"buyer"`
	Price     *big.Int       `json:"price"`
	Fee       *big.Int       `json:"fee"`
	HoldID    string         `json:"hold_id"`
	SettledAt time.Time      `json:"settled_at"`
}
