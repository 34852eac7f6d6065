package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names a marketplace notification.
type EventType string

const (
	EventCollectionCreated EventType = "collection_created"
	EventMarketNftCreated  EventType = "market_nft_created"
	EventItemListed        EventType = "item_listed"
	EventItemDelisted      EventType = "item_delisted"
	EventOfferCreated      EventType = "offer_created"
	EventItemSold          EventType = "item_sold"
	EventOfferFilled       EventType = "offer_filled"
	EventOfferCancelled    EventType = "offer_cancelled"
)

// Event is emitted for every state change of the ledger. Only the fields
// relevant to Type are set.
type Event struct {
	ID           string          `json:"id"`
	Type         EventType       `json:"type"`
	CollectionID *uint64         `json:"collection_id,omitempty"`
	Name         string          `json:"name,omitempty"`
	ListingID    *uint64         `json:"listing_id,omitempty"`
	TokenID      *uint64         `json:"token_id,omitempty"`
	URI          string          `json:"uri,omitempty"`
	OfferID      *uint64         `json:"offer_id,omitempty"`
	Buyer        *common.Address `json:"buyer,omitempty"`
	Price        *big.Int        `json:"price,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// U64 returns a pointer to v, for the optional id fields of Event.
func U64(v uint64) *uint64 { return &v }
