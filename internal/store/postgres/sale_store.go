package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// SaleStore implements domain.SaleStore using PostgreSQL. Commit runs the
// listing update, the offer update and the sale insert in one transaction.
type SaleStore struct {
	pool *pgxpool.Pool
}

// NewSaleStore creates a SaleStore backed by pool.
func NewSaleStore(pool *pgxpool.Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

const saleCols = `id::text, listing_id, token_id, offer_id, seller, buyer, price::text, fee::text, hold_id, settled_at`

func (s *SaleStore) Commit(ctx context.Context, c domain.SaleCommit) (domain.Listing, error) {
	var sold domain.Listing
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		sold, err = updateListing(ctx, tx, c.Listing)
		if err != nil {
			return err
		}
		if c.Offer != nil {
			if _, err := updateOffer(ctx, tx, *c.Offer); err != nil {
				return err
			}
		}
		return insertSale(ctx, tx, c.Sale)
	})
	if err != nil {
		return domain.Listing{}, fmt.Errorf("postgres: commit sale %s: %w", c.Sale.ID, err)
	}
	return sold, nil
}

func insertSale(ctx context.Context, q querier, sale domain.Sale) error {
	const query = `
		INSERT INTO sales (id, listing_id, token_id, offer_id, seller, buyer, price, fee, hold_id, settled_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::text::numeric, $8::text::numeric, $9, $10)`

	var offerID *int64
	if sale.OfferID != nil {
		v := int64(*sale.OfferID)
		offerID = &v
	}
	_, err := q.Exec(ctx, query,
		sale.ID, int64(sale.ListingID), int64(sale.TokenID), offerID,
		addrArg(sale.Seller), addrArg(sale.Buyer),
		amountArg(sale.Price), amountArg(sale.Fee), sale.HoldID, sale.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

func (s *SaleStore) GetByID(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := scanSale(s.pool.QueryRow(ctx, `SELECT `+saleCols+` FROM sales WHERE id = $1::uuid`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Sale{}, fmt.Errorf("postgres: sale %s: %w", id, domain.ErrNotFound)
		}
		return domain.Sale{}, fmt.Errorf("postgres: get sale %s: %w", id, err)
	}
	return sale, nil
}

func (s *SaleStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Sale, error) {
	query := `SELECT ` + saleCols + ` FROM sales WHERE 1=1`
	var args []any
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND settled_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND settled_at < $%d", len(args))
	}
	query, args = pageClause(query+" ORDER BY settled_at DESC", args, opts.Limit, opts.Offset)
	return s.query(ctx, query, args...)
}

func (s *SaleStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Sale, error) {
	return s.query(ctx, `SELECT `+saleCols+` FROM sales WHERE settled_at < $1 ORDER BY settled_at`, before)
}

func (s *SaleStore) query(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sales: %w", err)
	}
	defer rows.Close()

	var out []domain.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan sale: %w", err)
		}
		out = append(out, sale)
	}
	return out, rows.Err()
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var (
		s                         domain.Sale
		listingID, tokenID        int64
		offerID                   *int64
		seller, buyer, price, fee string
	)
	err := row.Scan(&s.ID, &listingID, &tokenID, &offerID, &seller, &buyer, &price, &fee, &s.HoldID, &s.SettledAt)
	if err != nil {
		return domain.Sale{}, err
	}
	if s.Price, err = parseAmount(price); err != nil {
		return domain.Sale{}, err
	}
	if s.Fee, err = parseAmount(fee); err != nil {
		return domain.Sale{}, err
	}
	s.ListingID = uint64(listingID)
	s.TokenID = uint64(tokenID)
	if offerID != nil {
		s.OfferID = domain.U64(uint64(*offerID))
	}
	s.Seller = parseAddr(seller)
	s.Buyer = parseAddr(buyer)
	return s, nil
}

var _ domain.SaleStore = (*SaleStore)(nil)
