// Package memory provides in-process implementations of the domain store
// interfaces. All stores created from the same DB share one lock, so a
// SaleCommit is applied atomically with respect to every other store call.
package memory

import (
	"sync"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// DB holds every table of the in-memory ledger.
type DB struct {
	mu sync.RWMutex

	collections map[uint64]domain.Collection
	listings    map[uint64]domain.Listing
	offers      map[uint64]domain.Offer
	sales       map[string]domain.Sale
	saleOrder   []string
	audit       []domain.AuditEntry

	nextCollection uint64
	nextListing    uint64
	nextOffer      uint64
	nextAudit      int64
}

// NewDB creates an empty ledger. Collection ids start at 1; listing and
// offer ids start at 0.
func NewDB() *DB {
	return &DB{
		collections:    make(map[uint64]domain.Collection),
		listings:       make(map[uint64]domain.Listing),
		offers:         make(map[uint64]domain.Offer),
		sales:          make(map[string]domain.Sale),
		nextCollection: 1,
		nextAudit:      1,
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
