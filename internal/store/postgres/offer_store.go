package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// OfferStore implements domain.OfferStore using PostgreSQL.
type OfferStore struct {
	pool *pgxpool.Pool
}

// NewOfferStore creates an OfferStore backed by pool.
func NewOfferStore(pool *pgxpool.Pool) *OfferStore {
	return &OfferStore{pool: pool}
}

const offerCols = `id, listing_id, bidder, price::text, status, version, created_at, updated_at`

func (s *OfferStore) Create(ctx context.Context, o domain.Offer) (domain.Offer, error) {
	query := `
		INSERT INTO offers (listing_id, bidder, price, status)
		VALUES ($1, $2, $3::text::numeric, $4)
		RETURNING ` + offerCols

	out, err := scanOffer(s.pool.QueryRow(ctx, query,
		int64(o.ListingID), addrArg(o.Bidder), amountArg(o.Price), string(o.Status)))
	if err != nil {
		return domain.Offer{}, fmt.Errorf("postgres: create offer: %w", err)
	}
	return out, nil
}

func (s *OfferStore) GetByID(ctx context.Context, id uint64) (domain.Offer, error) {
	o, err := scanOffer(s.pool.QueryRow(ctx, `SELECT `+offerCols+` FROM offers WHERE id = $1`, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Offer{}, fmt.Errorf("postgres: offer %d: %w", id, domain.ErrNotFound)
		}
		return domain.Offer{}, fmt.Errorf("postgres: get offer %d: %w", id, err)
	}
	return o, nil
}

func (s *OfferStore) Update(ctx context.Context, o domain.Offer) (domain.Offer, error) {
	return updateOffer(ctx, s.pool, o)
}

func updateOffer(ctx context.Context, q querier, o domain.Offer) (domain.Offer, error) {
	query := `
		UPDATE offers SET status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING ` + offerCols

	out, err := scanOffer(q.QueryRow(ctx, query, int64(o.ID), o.Version, string(o.Status)))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Offer{}, fmt.Errorf("postgres: update offer %d: %w", o.ID, err)
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM offers WHERE id = $1)`, int64(o.ID)).Scan(&exists); err != nil {
		return domain.Offer{}, fmt.Errorf("postgres: update offer %d: %w", o.ID, err)
	}
	if !exists {
		return domain.Offer{}, fmt.Errorf("postgres: offer %d: %w", o.ID, domain.ErrNotFound)
	}
	return domain.Offer{}, fmt.Errorf("postgres: offer %d at version %d: %w", o.ID, o.Version, domain.ErrConflict)
}

func (s *OfferStore) ListByListing(ctx context.Context, listingID uint64, opts domain.ListOpts) ([]domain.Offer, error) {
	query, args := pageClause(`SELECT `+offerCols+` FROM offers WHERE listing_id = $1 ORDER BY id`,
		[]any{int64(listingID)}, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list offers of %d: %w", listingID, err)
	}
	defer rows.Close()

	var out []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan offer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOffer(row rowScanner) (domain.Offer, error) {
	var (
		o                     domain.Offer
		id, listingID         int64
		bidder, price, status string
	)
	if err := row.Scan(&id, &listingID, &bidder, &price, &status, &o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Offer{}, err
	}

	p, err := parseAmount(price)
	if err != nil {
		return domain.Offer{}, err
	}
	o.ID = uint64(id)
	o.ListingID = uint64(listingID)
	o.Bidder = parseAddr(bidder)
	o.Price = p
	o.Status = domain.OfferStatus(status)
	return o, nil
}

var _ domain.OfferStore = (*OfferStore)(nil)
