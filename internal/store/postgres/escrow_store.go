package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// EscrowStore implements domain.EscrowLedger using PostgreSQL. Hold, Capture
// and Release each run in one transaction, so a crash between the balance
// update and the hold update leaves neither applied.
type EscrowStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewEscrowStore creates an EscrowStore backed by pool.
func NewEscrowStore(pool *pgxpool.Pool, logger *slog.Logger) *EscrowStore {
	return &EscrowStore{pool: pool, logger: logger.With(slog.String("component", "escrow"))}
}

func (s *EscrowStore) Deposit(ctx context.Context, addr common.Address, amount *big.Int) (*big.Int, error) {
	if !domain.IsPositive(amount) {
		return nil, fmt.Errorf("postgres: deposit must be positive: %w", domain.ErrInvalidInput)
	}
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("postgres: deposit to zero address: %w", domain.ErrInvalidInput)
	}
	bal, err := credit(ctx, s.pool, addr, amount)
	if err != nil {
		return nil, fmt.Errorf("postgres: deposit to %s: %w", addr.Hex(), err)
	}
	return bal, nil
}

func (s *EscrowStore) Withdraw(ctx context.Context, addr common.Address, amount *big.Int) (*big.Int, error) {
	if !domain.IsPositive(amount) {
		return nil, fmt.Errorf("postgres: withdrawal must be positive: %w", domain.ErrInvalidInput)
	}
	bal, err := debit(ctx, s.pool, addr, amount)
	if err != nil {
		return nil, fmt.Errorf("postgres: withdraw %s from %s: %w", amount, addr.Hex(), err)
	}
	return bal, nil
}

func (s *EscrowStore) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::text FROM escrow_balances WHERE address = $1`, addr.Hex()).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: balance of %s: %w", addr.Hex(), err)
	}
	return parseAmount(raw)
}

func (s *EscrowStore) Hold(ctx context.Context, payer common.Address, amount *big.Int) (domain.Hold, error) {
	if !domain.IsPositive(amount) {
		return domain.Hold{}, fmt.Errorf("postgres: hold must be positive: %w", domain.ErrInvalidInput)
	}

	h := domain.Hold{
		ID:        uuid.New().String(),
		Payer:     payer,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: time.Now().UTC(),
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := debit(ctx, tx, payer, amount); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO escrow_holds (id, payer, amount, created_at)
			VALUES ($1::uuid, $2, $3::text::numeric, $4)`,
			h.ID, payer.Hex(), amountArg(amount), h.CreatedAt)
		return err
	})
	if err != nil {
		return domain.Hold{}, fmt.Errorf("postgres: hold %s for %s: %w", amount, payer.Hex(), err)
	}

	s.logger.DebugContext(ctx, "escrow: funds held",
		slog.String("hold_id", h.ID),
		slog.String("payer", payer.Hex()),
		slog.String("amount", amount.String()),
	)
	return h, nil
}

func (s *EscrowStore) Capture(ctx context.Context, hold domain.Hold, payee common.Address, fee *big.Int, feeRecipient common.Address) (domain.Receipt, error) {
	if fee == nil {
		fee = new(big.Int)
	}

	var net *big.Int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, amount, err := lockHold(ctx, tx, hold.ID)
		if err != nil {
			return err
		}
		if fee.Sign() < 0 || fee.Cmp(amount) > 0 {
			return fmt.Errorf("fee %s exceeds hold %s: %w", fee, amount, domain.ErrInvalidInput)
		}
		if fee.Sign() > 0 && feeRecipient == (common.Address{}) {
			return fmt.Errorf("fee without recipient: %w", domain.ErrInvalidInput)
		}

		net = new(big.Int).Sub(amount, fee)
		if net.Sign() > 0 {
			if _, err := credit(ctx, tx, payee, net); err != nil {
				return err
			}
		}
		if fee.Sign() > 0 {
			if _, err := credit(ctx, tx, feeRecipient, fee); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `
			UPDATE escrow_holds
			SET status = 'captured', payee = $2, fee = $3::text::numeric, fee_recipient = $4, settled_at = NOW()
			WHERE id = $1::uuid`,
			hold.ID, payee.Hex(), amountArg(fee), addrArg(feeRecipient))
		return err
	})
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("postgres: capture hold %s: %w", hold.ID, err)
	}

	s.logger.DebugContext(ctx, "escrow: hold captured",
		slog.String("hold_id", hold.ID),
		slog.String("payee", payee.Hex()),
		slog.String("net", net.String()),
		slog.String("fee", fee.String()),
	)
	return domain.Receipt{
		HoldID:       hold.ID,
		Payee:        payee,
		Net:          net,
		Fee:          new(big.Int).Set(fee),
		FeeRecipient: feeRecipient,
	}, nil
}

func (s *EscrowStore) Release(ctx context.Context, hold domain.Hold) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		payer, amount, err := lockHold(ctx, tx, hold.ID)
		if err != nil {
			return err
		}
		if _, err := credit(ctx, tx, payer, amount); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE escrow_holds SET status = 'released', settled_at = NOW() WHERE id = $1::uuid`, hold.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres: release hold %s: %w", hold.ID, err)
	}
	s.logger.DebugContext(ctx, "escrow: hold released", slog.String("hold_id", hold.ID))
	return nil
}

// lockHold row-locks a live hold for the rest of the transaction.
func lockHold(ctx context.Context, tx pgx.Tx, id string) (common.Address, *big.Int, error) {
	if _, err := uuid.Parse(id); err != nil {
		return common.Address{}, nil, fmt.Errorf("hold %s: %w", id, domain.ErrNotFound)
	}
	var payer, raw string
	err := tx.QueryRow(ctx, `
		SELECT payer, amount::text FROM escrow_holds
		WHERE id = $1::uuid AND status = 'held'
		FOR UPDATE`, id).Scan(&payer, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return common.Address{}, nil, fmt.Errorf("hold %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("lock hold %s: %w", id, err)
	}
	amount, err := parseAmount(raw)
	if err != nil {
		return common.Address{}, nil, err
	}
	return parseAddr(payer), amount, nil
}

func credit(ctx context.Context, q querier, addr common.Address, amount *big.Int) (*big.Int, error) {
	var raw string
	err := q.QueryRow(ctx, `
		INSERT INTO escrow_balances (address, balance) VALUES ($1, $2::text::numeric)
		ON CONFLICT (address) DO UPDATE
		SET balance = escrow_balances.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance::text`, addr.Hex(), amountArg(amount)).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("credit %s: %w", addr.Hex(), err)
	}
	return parseAmount(raw)
}

// debit fails with ErrInsufficientFunds instead of driving a balance negative.
func debit(ctx context.Context, q querier, addr common.Address, amount *big.Int) (*big.Int, error) {
	var raw string
	err := q.QueryRow(ctx, `
		UPDATE escrow_balances
		SET balance = balance - $2::text::numeric, updated_at = NOW()
		WHERE address = $1 AND balance >= $2::text::numeric
		RETURNING balance::text`, addr.Hex(), amountArg(amount)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrInsufficientFunds
	}
	if err != nil {
		return nil, fmt.Errorf("debit %s: %w", addr.Hex(), err)
	}
	return parseAmount(raw)
}

var _ domain.EscrowLedger = (*EscrowStore)(nil)
