package escrow

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	buyer  = common.HexToAddress("0xb0")
	seller = common.HexToAddress("0x5e")
	house  = common.HexToAddress("0xfe")
)

func newLedger() *Ledger {
	return NewLedger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func balanceOf(t *testing.T, l *Ledger, addr common.Address) *big.Int {
	t.Helper()
	bal, err := l.Balance(context.Background(), addr)
	require.NoError(t, err)
	return bal
}

func TestHoldCaptureWithFee(t *testing.T) {
	ctx := context.Background()
	l := newLedger()

	_, err := l.Deposit(ctx, buyer, big.NewInt(1000))
	require.NoError(t, err)

	h, err := l.Hold(ctx, buyer, big.NewInt(800))
	require.NoError(t, err)
	assert.Equal(t, "200", balanceOf(t, l, buyer).String())
	assert.Equal(t, "800", l.Held().String())

	r, err := l.Capture(ctx, h, seller, big.NewInt(20), house)
	require.NoError(t, err)
	assert.Equal(t, "780", r.Net.String())
	assert.Equal(t, "780", balanceOf(t, l, seller).String())
	assert.Equal(t, "20", balanceOf(t, l, house).String())
	assert.Zero(t, l.Held().Sign())

	_, err = l.Capture(ctx, h, seller, nil, house)
	assert.ErrorIs(t, err, domain.ErrNotFound, "a hold is captured once")
}

func TestHoldRelease(t *testing.T) {
	ctx := context.Background()
	l := newLedger()

	_, err := l.Deposit(ctx, buyer, big.NewInt(50))
	require.NoError(t, err)

	_, err = l.Hold(ctx, buyer, big.NewInt(51))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	h, err := l.Hold(ctx, buyer, big.NewInt(50))
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, h))
	assert.Equal(t, "50", balanceOf(t, l, buyer).String())
	assert.ErrorIs(t, l.Release(ctx, h), domain.ErrNotFound)
}

func TestDepositWithdraw(t *testing.T) {
	ctx := context.Background()
	l := newLedger()

	_, err := l.Deposit(ctx, buyer, big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	bal, err := l.Deposit(ctx, buyer, big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, "10", bal.String())

	_, err = l.Withdraw(ctx, buyer, big.NewInt(11))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	bal, err = l.Withdraw(ctx, buyer, big.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, "6", bal.String())
}
