package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a ListingStore backed by pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const listingCols = `id, token_id, collection_id, uri, price::text, status,
	creator, seller, buyer, version, created_at, updated_at, sold_at`

func (s *ListingStore) Create(ctx context.Context, l domain.Listing) (domain.Listing, error) {
	query := `
		INSERT INTO listings (token_id, collection_id, uri, price, status, creator, seller, buyer)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $8)
		RETURNING ` + listingCols

	out, err := scanListing(s.pool.QueryRow(ctx, query,
		int64(l.TokenID), int64(l.CollectionID), l.URI, amountArg(l.Price), string(l.Status),
		addrArg(l.Creator), addrArg(l.Seller), addrArg(l.Buyer),
	))
	if err != nil {
		return domain.Listing{}, fmt.Errorf("postgres: create listing: %w", err)
	}
	return out, nil
}

func (s *ListingStore) GetByID(ctx context.Context, id uint64) (domain.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx, `SELECT `+listingCols+` FROM listings WHERE id = $1`, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, fmt.Errorf("postgres: listing %d: %w", id, domain.ErrNotFound)
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %d: %w", id, err)
	}
	return l, nil
}

func (s *ListingStore) Update(ctx context.Context, l domain.Listing) (domain.Listing, error) {
	return updateListing(ctx, s.pool, l)
}

// updateListing writes l if the stored version still equals l.Version.
func updateListing(ctx context.Context, q querier, l domain.Listing) (domain.Listing, error) {
	query := `
		UPDATE listings SET
			price = $3::text::numeric, status = $4, seller = $5, buyer = $6, sold_at = $7,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING ` + listingCols

	out, err := scanListing(q.QueryRow(ctx, query,
		int64(l.ID), l.Version, amountArg(l.Price), string(l.Status),
		addrArg(l.Seller), addrArg(l.Buyer), l.SoldAt,
	))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Listing{}, fmt.Errorf("postgres: update listing %d: %w", l.ID, err)
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1)`, int64(l.ID)).Scan(&exists); err != nil {
		return domain.Listing{}, fmt.Errorf("postgres: update listing %d: %w", l.ID, err)
	}
	if !exists {
		return domain.Listing{}, fmt.Errorf("postgres: listing %d: %w", l.ID, domain.ErrNotFound)
	}
	return domain.Listing{}, fmt.Errorf("postgres: listing %d at version %d: %w", l.ID, l.Version, domain.ErrConflict)
}

func (s *ListingStore) List(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	query, args := listingQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func listingQuery(f domain.ListingFilter) (string, []any) {
	query := `SELECT ` + listingCols + ` FROM listings WHERE 1=1`
	var args []any

	if f.CollectionID != nil {
		args = append(args, int64(*f.CollectionID))
		query += fmt.Sprintf(" AND collection_id = $%d", len(args))
	}
	if f.ForSale != nil {
		if *f.ForSale {
			query += " AND status = 'for_sale'"
		} else {
			query += " AND status <> 'for_sale'"
		}
	}
	query += " ORDER BY id"
	return pageClause(query, args, f.Limit, f.Offset)
}

func scanListing(row rowScanner) (domain.Listing, error) {
	var (
		l                       domain.Listing
		id, tokenID, collection int64
		price, status           string
		creator, seller, buyer  string
	)
	err := row.Scan(&id, &tokenID, &collection, &l.URI, &price, &status,
		&creator, &seller, &buyer, &l.Version, &l.CreatedAt, &l.UpdatedAt, &l.SoldAt)
	if err != nil {
		return domain.Listing{}, err
	}

	l.Price, err = parseAmount(price)
	if err != nil {
		return domain.Listing{}, err
	}
	l.ID = uint64(id)
	l.TokenID = uint64(tokenID)
	l.CollectionID = uint64(collection)
	l.Status = domain.ListingStatus(status)
	l.Creator = parseAddr(creator)
	l.Seller = parseAddr(seller)
	l.Buyer = parseAddr(buyer)
	return l, nil
}

var _ domain.ListingStore = (*ListingStore)(nil)
