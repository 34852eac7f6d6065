package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// CollectionStore persists collections. Create allocates the next id,
// starting at 1.
type CollectionStore interface {
	Create(ctx context.Context, name string) (Collection, error)
	GetByID(ctx context.Context, id uint64) (Collection, error)
	List(ctx context.Context, opts ListOpts) ([]Collection, error)
}

// ListingStore persists listings. Create allocates the next id, starting at
// 0. Update is a compare-and-swap on Version and returns ErrConflict when the
// stored version differs.
type ListingStore interface {
	Create(ctx context.Context, l Listing) (Listing, error)
	GetByID(ctx context.Context, id uint64) (Listing, error)
	Update(ctx context.Context, l Listing) (Listing, error)
	List(ctx context.Context, filter ListingFilter) ([]Listing, error)
}

// OfferStore persists offers. Ids are global across listings, starting at 0.
type OfferStore interface {
	Create(ctx context.Context, o Offer) (Offer, error)
	GetByID(ctx context.Context, id uint64) (Offer, error)
	Update(ctx context.Context, o Offer) (Offer, error)
	ListByListing(ctx context.Context, listingID uint64, opts ListOpts) ([]Offer, error)
}

// SaleCommit is the unit of work written when a settlement completes: the
// terminal listing, the fulfilled offer (if the sale filled one) and the
// journal entry.
type SaleCommit struct {
	Listing Listing
	Offer   *Offer
	Sale    Sale
}

// SaleStore journals settlements. Commit applies the whole SaleCommit or
// nothing, with the same version checks as the listing and offer stores.
type SaleStore interface {
	Commit(ctx context.Context, c SaleCommit) (Listing, error)
	GetByID(ctx context.Context, id string) (Sale, error)
	List(ctx context.Context, opts ListOpts) ([]Sale, error)
	ListBefore(ctx context.Context, before time.Time) ([]Sale, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}
