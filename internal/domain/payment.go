package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Hold is a reservation of a payer's funds held in escrow.
type Hold struct {
	ID        string         `json:"id"`
	Payer     common.Address `json:"payer"`
	Amount    *big.Int       `json:"amount"`
	CreatedAt time.Time      `json:"created_at"`
}

// Receipt describes how a captured hold was distributed.
type Receipt struct {
	HoldID       string         `json:"hold_id"`
	Payee        common.Address `json:"payee"`
	Net          *big.Int       `json:"net"`
	Fee          *big.Int       `json:"fee"`
	FeeRecipient common.Address `json:"fee_recipient"`
}

// PaymentSettler moves funds between marketplace participants in two
// phases. Hold reserves funds and may fail; Capture of a live hold is the
// commit point of a settlement and implementations must not fail it for
// business reasons. Release returns held funds to the payer.
type PaymentSettler interface {
	Hold(ctx context.Context, payer common.Address, amount *big.Int) (Hold, error)
	Capture(ctx context.Context, hold Hold, payee common.Address, fee *big.Int, feeRecipient common.Address) (Receipt, error)
	Release(ctx context.Context, hold Hold) error
}

// EscrowAccounts manages the spendable balances that holds draw from.
// Balances exclude funds under a live hold.
type EscrowAccounts interface {
	Deposit(ctx context.Context, addr common.Address, amount *big.Int) (*big.Int, error)
	Withdraw(ctx context.Context, addr common.Address, amount *big.Int) (*big.Int, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
}

// EscrowLedger is a settler together with the accounts it settles against.
type EscrowLedger interface {
	PaymentSettler
	EscrowAccounts
}
