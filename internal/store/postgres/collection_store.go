package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// CollectionStore implements domain.CollectionStore using PostgreSQL.
type CollectionStore struct {
	pool *pgxpool.Pool
}

// NewCollectionStore creates a CollectionStore backed by pool.
func NewCollectionStore(pool *pgxpool.Pool) *CollectionStore {
	return &CollectionStore{pool: pool}
}

func (s *CollectionStore) Create(ctx context.Context, name string) (domain.Collection, error) {
	const query = `INSERT INTO collections (name) VALUES ($1) RETURNING id, name, created_at`

	c, err := scanCollection(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		return domain.Collection{}, fmt.Errorf("postgres: create collection: %w", err)
	}
	return c, nil
}

func (s *CollectionStore) GetByID(ctx context.Context, id uint64) (domain.Collection, error) {
	const query = `SELECT id, name, created_at FROM collections WHERE id = $1`

	c, err := scanCollection(s.pool.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Collection{}, fmt.Errorf("postgres: collection %d: %w", id, domain.ErrNotFound)
		}
		return domain.Collection{}, fmt.Errorf("postgres: get collection %d: %w", id, err)
	}
	return c, nil
}

func (s *CollectionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Collection, error) {
	query, args := pageClause(`SELECT id, name, created_at FROM collections ORDER BY id`, nil, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list collections: %w", err)
	}
	defer rows.Close()

	var out []domain.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCollection(row rowScanner) (domain.Collection, error) {
	var c domain.Collection
	var id int64
	if err := row.Scan(&id, &c.Name, &c.CreatedAt); err != nil {
		return domain.Collection{}, err
	}
	c.ID = uint64(id)
	return c, nil
}

var _ domain.CollectionStore = (*CollectionStore)(nil)
