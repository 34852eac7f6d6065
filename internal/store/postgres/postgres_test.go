package postgres

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/market?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "market", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestListingQuery(t *testing.T) {
	col := uint64(4)
	yes := true

	q, args := listingQuery(domain.ListingFilter{CollectionID: &col, ForSale: &yes, Limit: 10, Offset: 20})
	assert.Contains(t, q, "collection_id = $1")
	assert.Contains(t, q, "status = 'for_sale'")
	assert.Contains(t, q, "LIMIT $2")
	assert.Contains(t, q, "OFFSET $3")
	assert.Equal(t, []any{int64(4), 10, 20}, args)

	q, args = listingQuery(domain.ListingFilter{})
	assert.NotContains(t, q, "$1")
	assert.Empty(t, args)
}

func TestAmountAndAddressEncoding(t *testing.T) {
	v, err := parseAmount(amountArg(domain.MaxPrice))
	require.NoError(t, err)
	assert.Zero(t, v.Cmp(domain.MaxPrice))
	assert.Equal(t, "0", amountArg(nil))

	_, err = parseAmount("1.5")
	assert.Error(t, err)

	a := common.HexToAddress("0xb0b")
	assert.Equal(t, a, parseAddr(addrArg(a)))
	assert.Equal(t, "", addrArg(common.Address{}))
}

// newTestClient connects to NFTMARKET_TEST_POSTGRES_DSN, skipping when unset.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("NFTMARKET_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NFTMARKET_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.RunMigrations(ctx))
	return c
}

func TestLedgerRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	collections := NewCollectionStore(c.Pool())
	listings := NewListingStore(c.Pool())
	offers := NewOfferStore(c.Pool())
	sales := NewSaleStore(c.Pool())

	col, err := collections.Create(ctx, "bear")
	require.NoError(t, err)

	seller := common.HexToAddress("0x5e11e4")
	buyer := common.HexToAddress("0xb0b")
	l, err := listings.Create(ctx, domain.Listing{
		TokenID:      uint64(time.Now().UnixNano()),
		CollectionID: col.ID,
		URI:          "ipfs://bear/1.json",
		Price:        big.NewInt(0),
		Status:       domain.ListingStatusUnlisted,
		Creator:      seller,
		Seller:       seller,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), l.Version)

	stale := l
	l.Price = new(big.Int).Set(domain.MaxPrice)
	l.Status = domain.ListingStatusForSale
	l, err = listings.Update(ctx, l)
	require.NoError(t, err)
	assert.Zero(t, l.Price.Cmp(domain.MaxPrice))

	_, err = listings.Update(ctx, stale)
	assert.ErrorIs(t, err, domain.ErrConflict)

	o, err := offers.Create(ctx, domain.Offer{ListingID: l.ID, Bidder: buyer, Price: big.NewInt(5), Status: domain.OfferStatusOpen})
	require.NoError(t, err)

	now := time.Now().UTC()
	sold := l
	sold.Status = domain.ListingStatusSold
	sold.Buyer = buyer
	sold.SoldAt = &now
	filled := o
	filled.Status = domain.OfferStatusFulfilled

	saleID := uuid.New().String()
	got, err := sales.Commit(ctx, domain.SaleCommit{
		Listing: sold,
		Offer:   &filled,
		Sale: domain.Sale{
			ID: saleID, ListingID: l.ID, TokenID: l.TokenID, OfferID: domain.U64(o.ID),
			Seller: seller, Buyer: buyer, Price: big.NewInt(5), Fee: big.NewInt(0),
			HoldID: "h1", SettledAt: now,
		},
	})
	require.NoError(t, err)
	assert.True(t, got.Sold())
	assert.Equal(t, buyer, got.Buyer)

	sale, err := sales.GetByID(ctx, saleID)
	require.NoError(t, err)
	require.NotNil(t, sale.OfferID)
	assert.Equal(t, o.ID, *sale.OfferID)

	_, err = sales.Commit(ctx, domain.SaleCommit{Listing: sold, Sale: domain.Sale{ID: uuid.New().String()}})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// freshAddr returns an address no earlier run has used.
func freshAddr() common.Address {
	id := uuid.New()
	return common.BytesToAddress(id[:])
}

func TestEscrowStoreSettlement(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	escrow := NewEscrowStore(c.Pool(), slog.New(slog.NewJSONHandler(io.Discard, nil)))

	buyer, seller, house := freshAddr(), freshAddr(), freshAddr()
	balance := func(addr common.Address) int64 {
		t.Helper()
		bal, err := escrow.Balance(ctx, addr)
		require.NoError(t, err)
		return bal.Int64()
	}

	assert.Zero(t, balance(buyer), "unknown wallets have nothing")
	_, err := escrow.Deposit(ctx, buyer, big.NewInt(1000))
	require.NoError(t, err)

	_, err = escrow.Hold(ctx, buyer, big.NewInt(1001))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(1000), balance(buyer), "failed hold debits nothing")

	h, err := escrow.Hold(ctx, buyer, big.NewInt(800))
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance(buyer))

	r, err := escrow.Capture(ctx, h, seller, big.NewInt(20), house)
	require.NoError(t, err)
	assert.Equal(t, "780", r.Net.String())
	assert.Equal(t, int64(780), balance(seller))
	assert.Equal(t, int64(20), balance(house))

	_, err = escrow.Capture(ctx, h, seller, nil, house)
	assert.ErrorIs(t, err, domain.ErrNotFound, "a hold is captured once")
	assert.ErrorIs(t, escrow.Release(ctx, h), domain.ErrNotFound)

	h, err = escrow.Hold(ctx, buyer, big.NewInt(200))
	require.NoError(t, err)
	_, err = escrow.Capture(ctx, h, seller, big.NewInt(201), house)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, int64(780), balance(seller), "rejected capture rolls back")

	require.NoError(t, escrow.Release(ctx, h))
	assert.Equal(t, int64(200), balance(buyer))

	_, err = escrow.Withdraw(ctx, buyer, big.NewInt(201))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	bal, err := escrow.Withdraw(ctx, buyer, big.NewInt(200))
	require.NoError(t, err)
	assert.Zero(t, bal.Sign())
}
