// Package escrow holds buyer funds while a sale settles.
package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Ledger is an in-memory balance ledger implementing domain.PaymentSettler.
// Held funds leave the payer's balance at Hold and are credited to the payee
// at Capture or back to the payer at Release.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	holds    map[string]domain.Hold
	logger   *slog.Logger
}

// NewLedger creates an empty Ledger.
func NewLedger(logger *slog.Logger) *Ledger {
	return &Ledger{
		balances: make(map[common.Address]*big.Int),
		holds:    make(map[string]domain.Hold),
		logger:   logger.With(slog.String("component", "escrow")),
	}
}

// Deposit credits amount to addr.
func (l *Ledger) Deposit(_ context.Context, addr common.Address, amount *big.Int) (*big.Int, error) {
	if !domain.IsPositive(amount) {
		return nil, fmt.Errorf("escrow: deposit must be positive: %w", domain.ErrInvalidInput)
	}
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("escrow: deposit to zero address: %w", domain.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.credit(addr, amount)
	return new(big.Int).Set(bal), nil
}

// Withdraw debits amount from addr.
func (l *Ledger) Withdraw(_ context.Context, addr common.Address, amount *big.Int) (*big.Int, error) {
	if !domain.IsPositive(amount) {
		return nil, fmt.Errorf("escrow: withdrawal must be positive: %w", domain.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balance(addr)
	if bal.Cmp(amount) < 0 {
		return nil, fmt.Errorf("escrow: withdraw %s from %s: %w", amount, addr.Hex(), domain.ErrInsufficientFunds)
	}
	bal.Sub(bal, amount)
	return new(big.Int).Set(bal), nil
}

// Balance returns the spendable balance of addr. Held funds are excluded.
func (l *Ledger) Balance(_ context.Context, addr common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return new(big.Int).Set(l.balance(addr)), nil
}

// Held returns the total of all live holds.
func (l *Ledger) Held() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := new(big.Int)
	for _, h := range l.holds {
		total.Add(total, h.Amount)
	}
	return total
}

func (l *Ledger) Hold(ctx context.Context, payer common.Address, amount *big.Int) (domain.Hold, error) {
	if !domain.IsPositive(amount) {
		return domain.Hold{}, fmt.Errorf("escrow: hold must be positive: %w", domain.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balance(payer)
	if bal.Cmp(amount) < 0 {
		return domain.Hold{}, fmt.Errorf("escrow: hold %s for %s (balance %s): %w",
			amount, payer.Hex(), bal, domain.ErrInsufficientFunds)
	}
	bal.Sub(bal, amount)

	h := domain.Hold{
		ID:        uuid.New().String(),
		Payer:     payer,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: time.Now().UTC(),
	}
	l.holds[h.ID] = h
	l.logger.DebugContext(ctx, "escrow: funds held",
		slog.String("hold_id", h.ID),
		slog.String("payer", payer.Hex()),
		slog.String("amount", amount.String()),
	)
	return h, nil
}

func (l *Ledger) Capture(ctx context.Context, hold domain.Hold, payee common.Address, fee *big.Int, feeRecipient common.Address) (domain.Receipt, error) {
	if fee == nil {
		fee = new(big.Int)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holds[hold.ID]
	if !ok {
		return domain.Receipt{}, fmt.Errorf("escrow: hold %s: %w", hold.ID, domain.ErrNotFound)
	}
	if fee.Sign() < 0 || fee.Cmp(h.Amount) > 0 {
		return domain.Receipt{}, fmt.Errorf("escrow: fee %s exceeds hold %s: %w", fee, h.Amount, domain.ErrInvalidInput)
	}
	if fee.Sign() > 0 && feeRecipient == (common.Address{}) {
		return domain.Receipt{}, fmt.Errorf("escrow: fee without recipient: %w", domain.ErrInvalidInput)
	}

	net := new(big.Int).Sub(h.Amount, fee)
	l.credit(payee, net)
	if fee.Sign() > 0 {
		l.credit(feeRecipient, fee)
	}
	delete(l.holds, h.ID)

	l.logger.DebugContext(ctx, "escrow: hold captured",
		slog.String("hold_id", h.ID),
		slog.String("payee", payee.Hex()),
		slog.String("net", net.String()),
		slog.String("fee", fee.String()),
	)
	return domain.Receipt{
		HoldID:       h.ID,
		Payee:        payee,
		Net:          net,
		Fee:          new(big.Int).Set(fee),
		FeeRecipient: feeRecipient,
	}, nil
}

func (l *Ledger) Release(ctx context.Context, hold domain.Hold) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holds[hold.ID]
	if !ok {
		return fmt.Errorf("escrow: hold %s: %w", hold.ID, domain.ErrNotFound)
	}
	l.credit(h.Payer, h.Amount)
	delete(l.holds, h.ID)

	l.logger.DebugContext(ctx, "escrow: hold released", slog.String("hold_id", h.ID))
	return nil
}

// balance returns the live balance pointer for addr. Callers hold l.mu.
func (l *Ledger) balance(addr common.Address) *big.Int {
	bal, ok := l.balances[addr]
	if !ok {
		bal = new(big.Int)
		l.balances[addr] = bal
	}
	return bal
}

func (l *Ledger) credit(addr common.Address, amount *big.Int) *big.Int {
	bal := l.balance(addr)
	return bal.Add(bal, amount)
}

var _ domain.EscrowLedger = (*Ledger)(nil)
