package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	cachemem "github.com/alanyoungcy/nftmarket/internal/cache/memory"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/escrow"
	storemem "github.com/alanyoungcy/nftmarket/internal/store/memory"
	tokenmem "github.com/alanyoungcy/nftmarket/internal/token/memory"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	escrowAddr = common.HexToAddress("0xe5c0")
	feeAddr    = common.HexToAddress("0xfee0")
	creator    = common.HexToAddress("0xc0de")
	alice      = common.HexToAddress("0xa11ce")
	bob        = common.HexToAddress("0xb0b")
	bearPrice  = big.NewInt(400_000_000_000_000)
)

type harness struct {
	market *Marketplace
	tokens *tokenmem.Registry
	funds  *escrow.Ledger
	bus    *cachemem.SignalBus
	audit  *storemem.AuditStore
}

type harnessOpt func(*MarketplaceDeps, *MarketplaceConfig)

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	db := storemem.NewDB()
	h := &harness{
		tokens: tokenmem.NewRegistry(),
		funds:  escrow.NewLedger(logger),
		bus:    cachemem.NewSignalBus(),
		audit:  storemem.NewAuditStore(db),
	}
	deps := MarketplaceDeps{
		Collections: storemem.NewCollectionStore(db),
		Listings:    storemem.NewListingStore(db),
		Offers:      storemem.NewOfferStore(db),
		Sales:       storemem.NewSaleStore(db),
		Tokens:      h.tokens,
		Payments:    h.funds,
		Locks:       cachemem.NewLockManager(),
		Events:      NewEventPublisher(h.bus, h.audit, nil, logger),
	}
	cfg := MarketplaceConfig{Escrow: escrowAddr}
	for _, o := range opts {
		o(&deps, &cfg)
	}

	m, err := NewMarketplace(deps, cfg, logger)
	require.NoError(t, err)
	h.market = m
	return h
}

// listed creates a collection and an approved for-sale item owned by creator.
func (h *harness) listed(t *testing.T, price *big.Int) domain.Listing {
	t.Helper()
	ctx := context.Background()

	c, err := h.market.CreateCollection(ctx, "bear")
	require.NoError(t, err)
	l, err := h.market.CreateMarketItem(ctx, creator, c.ID, "ipfs://bear/1.json")
	require.NoError(t, err)
	require.NoError(t, h.tokens.Approve(ctx, creator, escrowAddr, l.TokenID))
	l, err = h.market.ListItem(ctx, creator, l.ID, price)
	require.NoError(t, err)
	return l
}

func (h *harness) fund(t *testing.T, who common.Address, amount *big.Int) {
	t.Helper()
	_, err := h.funds.Deposit(context.Background(), who, amount)
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, who common.Address) *big.Int {
	t.Helper()
	bal, err := h.funds.Balance(context.Background(), who)
	require.NoError(t, err)
	return bal
}

func (h *harness) owner(t *testing.T, tokenID uint64) common.Address {
	t.Helper()
	owner, err := h.tokens.OwnerOf(context.Background(), tokenID)
	require.NoError(t, err)
	return owner
}

func TestBearScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	c, err := h.market.CreateCollection(ctx, "bear")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.ID)
	got, err := h.market.GetCollection(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "bear", got.Name)

	l, err := h.market.CreateMarketItem(ctx, creator, 1, "https://example.com/bear/1.json")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), l.ID)
	assert.Zero(t, l.Price.Sign())
	assert.False(t, l.ForSale())

	require.NoError(t, h.tokens.Approve(ctx, creator, escrowAddr, l.TokenID))
	l, err = h.market.ListItem(ctx, creator, 0, bearPrice)
	require.NoError(t, err)
	assert.True(t, l.ForSale())
	assert.Zero(t, l.Price.Cmp(bearPrice))

	h.fund(t, alice, new(big.Int).Mul(bearPrice, big.NewInt(2)))
	sale, err := h.market.BuyItem(ctx, alice, 0, bearPrice)
	require.NoError(t, err)
	assert.Equal(t, alice, sale.Buyer)
	assert.Equal(t, creator, sale.Seller)
	assert.Equal(t, alice, h.owner(t, l.TokenID))

	l, err = h.market.GetListing(ctx, 0)
	require.NoError(t, err)
	assert.True(t, l.Sold())
	assert.Zero(t, l.Price.Cmp(bearPrice), "price is retained as the sale of record")
	assert.Zero(t, h.balance(t, creator).Cmp(bearPrice))
	assert.Zero(t, h.balance(t, alice).Cmp(bearPrice))

	h.fund(t, bob, bearPrice)
	_, err = h.market.BuyItem(ctx, bob, 0, bearPrice)
	assert.ErrorIs(t, err, domain.ErrNotForSale)
}

func TestCollectionIDsIncrease(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	for i, name := range []string{"a", "", "c"} {
		c, err := h.market.CreateCollection(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), c.ID)

		got, err := h.market.GetCollection(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, name, got.Name)
	}
}

func TestCreateMarketItemUnknownCollection(t *testing.T) {
	h := newHarness(t)
	_, err := h.market.CreateMarketItem(context.Background(), creator, 7, "ipfs://x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListItemRejectsNonPositivePrice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	c, err := h.market.CreateCollection(ctx, "bear")
	require.NoError(t, err)
	l, err := h.market.CreateMarketItem(ctx, creator, c.ID, "ipfs://bear/1.json")
	require.NoError(t, err)

	for _, price := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1)} {
		_, err := h.market.ListItem(ctx, creator, l.ID, price)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		got, err := h.market.GetListing(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, l.Version, got.Version)
		assert.Zero(t, got.Price.Sign())
		assert.False(t, got.ForSale())
	}
}

func TestListItemPreconditions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	c, err := h.market.CreateCollection(ctx, "bear")
	require.NoError(t, err)
	noURI, err := h.market.CreateMarketItem(ctx, creator, c.ID, "")
	require.NoError(t, err)
	item, err := h.market.CreateMarketItem(ctx, creator, c.ID, "ipfs://bear/2.json")
	require.NoError(t, err)

	tests := []struct {
		name      string
		caller    common.Address
		listingID uint64
		wantErr   error
	}{
		{"unknown listing", creator, 99, domain.ErrNotFound},
		{"empty uri", creator, noURI.ID, domain.ErrInvalidInput},
		{"not the owner", alice, item.ID, domain.ErrUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.market.ListItem(ctx, tc.caller, tc.listingID, big.NewInt(5))
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	l, err := h.market.ListItem(ctx, creator, item.ID, big.NewInt(5))
	require.NoError(t, err)
	l, err = h.market.ListItem(ctx, creator, item.ID, big.NewInt(6))
	require.NoError(t, err, "relisting overwrites the price")
	assert.Equal(t, int64(6), l.Price.Int64())
}

func TestRelistSoldItem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	l := h.listed(t, big.NewInt(10))
	h.fund(t, alice, big.NewInt(10))

	_, err := h.market.BuyItem(ctx, alice, l.ID, big.NewInt(10))
	require.NoError(t, err)

	_, err = h.market.ListItem(ctx, alice, l.ID, big.NewInt(20))
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
}

func TestDelistItem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	l := h.listed(t, big.NewInt(10))

	_, err := h.market.DelistItem(ctx, alice, l.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	l, err = h.market.DelistItem(ctx, creator, l.ID)
	require.NoError(t, err)
	assert.False(t, l.ForSale())
	assert.Zero(t, l.Price.Sign())

	h.fund(t, alice, big.NewInt(10))
	_, err = h.market.BuyItem(ctx, alice, l.ID, big.NewInt(10))
	assert.ErrorIs(t, err, domain.ErrNotForSale)

	_, err = h.market.DelistItem(ctx, creator, l.ID)
	assert.ErrorIs(t, err, domain.ErrNotForSale)
}

func TestBuyItemPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown listing", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.market.BuyItem(ctx, alice, 3, big.NewInt(1))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("existence checked before arguments", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.market.BuyItem(ctx, common.Address{}, 3, new(big.Int))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("zero buyer", func(t *testing.T) {
		h := newHarness(t)
		l := h.listed(t, big.NewInt(10))
		_, err := h.market.BuyItem(ctx, common.Address{}, l.ID, big.NewInt(10))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("underpayment", func(t *testing.T) {
		h := newHarness(t)
		l := h.listed(t, big.NewInt(10))
		h.fund(t, alice, big.NewInt(10))
		_, err := h.market.BuyItem(ctx, alice, l.ID, big.NewInt(9))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("not approved", func(t *testing.T) {
		h := newHarness(t)
		c, err := h.market.CreateCollection(ctx, "bear")
		require.NoError(t, err)
		l, err := h.market.CreateMarketItem(ctx, creator, c.ID, "ipfs://bear/1.json")
		require.NoError(t, err)
		_, err = h.market.ListItem(ctx, creator, l.ID, big.NewInt(10))
		require.NoError(t, err)

		h.fund(t, alice, big.NewInt(10))
		_, err = h.market.BuyItem(ctx, alice, l.ID, big.NewInt(10))
		assert.ErrorIs(t, err, domain.ErrNotApproved)
		assert.Equal(t, creator, h.owner(t, l.TokenID))
	})

	t.Run("operator approval is enough", func(t *testing.T) {
		h := newHarness(t)
		c, err := h.market.CreateCollection(ctx, "bear")
		require.NoError(t, err)
		l, err := h.market.CreateMarketItem(ctx, creator, c.ID, "ipfs://bear/1.json")
		require.NoError(t, err)
		require.NoError(t, h.tokens.SetApprovalForAll(ctx, creator, escrowAddr, true))
		_, err = h.market.ListItem(ctx, creator, l.ID, big.NewInt(10))
		require.NoError(t, err)

		h.fund(t, alice, big.NewInt(10))
		_, err = h.market.BuyItem(ctx, alice, l.ID, big.NewInt(10))
		require.NoError(t, err)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		h := newHarness(t)
		l := h.listed(t, big.NewInt(10))
		h.fund(t, alice, big.NewInt(5))
		_, err := h.market.BuyItem(ctx, alice, l.ID, big.NewInt(10))
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.Equal(t, creator, h.owner(t, l.TokenID))

		got, err := h.market.GetListing(ctx, l.ID)
		require.NoError(t, err)
		assert.True(t, got.ForSale())
	})

	t.Run("stale listing", func(t *testing.T) {
		h := newHarness(t)
		l := h.listed(t, big.NewInt(10))
		require.NoError(t, h.tokens.TransferFrom(ctx, creator, creator, bob, l.TokenID))

		h.fund(t, alice, big.NewInt(10))
		_, err := h.market.BuyItem(ctx, alice, l.ID, big.NewInt(10))
		assert.ErrorIs(t, err, domain.ErrNotForSale)
	})
}

func TestOverpaymentChargesPrice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	l := h.listed(t, big.NewInt(10))
	h.fund(t, alice, big.NewInt(50))

	sale, err := h.market.BuyItem(ctx, alice, l.ID, big.NewInt(25))
	require.NoError(t, err)
	assert.Equal(t, int64(10), sale.Price.Int64())
	assert.Equal(t, int64(40), h.balance(t, alice).Int64())
}

func TestFeeIsSplitAtCapture(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(_ *MarketplaceDeps, cfg *MarketplaceConfig) {
		cfg.FeeBps = 250
		cfg.FeeRecipient = feeAddr
	})
	l := h.listed(t, big.NewInt(1000))
	h.fund(t, alice, big.NewInt(1000))

	sale, err := h.market.BuyItem(ctx, alice, l.ID, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(25), sale.Fee.Int64())
	assert.Equal(t, int64(975), h.balance(t, creator).Int64())
	assert.Equal(t, int64(25), h.balance(t, feeAddr).Int64())
}

func TestConcurrentBuyersOneWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	l := h.listed(t, bearPrice)

	buyers := make([]common.Address, 8)
	for i := range buyers {
		buyers[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		h.fund(t, buyers[i], bearPrice)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []common.Address
		errs []error
	)
	for _, b := range buyers {
		wg.Add(1)
		go func(b common.Address) {
			defer wg.Done()
			_, err := h.market.BuyItem(ctx, b, l.ID, bearPrice)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins = append(wins, b)
				return
			}
			errs = append(errs, err)
		}(b)
	}
	wg.Wait()

	require.Len(t, wins, 1)
	for _, err := range errs {
		assert.True(t, errors.Is(err, domain.ErrNotForSale) || errors.Is(err, domain.ErrNotApproved), err)
	}
	assert.Equal(t, wins[0], h.owner(t, l.TokenID))
	assert.Zero(t, h.funds.Held().Sign())

	sales, err := h.market.ListSales(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestFillOffer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	l := h.listed(t, big.NewInt(100))

	o, err := h.market.MakeOffer(ctx, alice, l.ID, big.NewInt(80))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), o.ID)
	o2, err := h.market.MakeOffer(ctx, bob, l.ID, big.NewInt(70))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), o2.ID)

	h.fund(t, alice, big.NewInt(80))

	_, err = h.market.FillOffer(ctx, alice, o.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	sale, err := h.market.FillOffer(ctx, creator, o.ID)
	require.NoError(t, err)
	require.NotNil(t, sale.OfferID)
	assert.Equal(t, o.ID, *sale.OfferID)
	assert.Equal(t, alice, h.owner(t, l.TokenID))
	assert.Equal(t, int64(80), h.balance(t, creator).Int64())

	got, err := h.market.GetOffer(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.Fulfilled())

	lst, err := h.market.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, lst.Sold())
	assert.Equal(t, int64(80), lst.Price.Int64())

	_, err = h.market.FillOffer(ctx, alice, o2.ID)
	assert.ErrorIs(t, err, domain.ErrNotForSale)

	offers, err := h.market.ListOffers(ctx, l.ID, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, offers, 2)
}

func TestFillAndCancelAreExclusive(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel then fill", func(t *testing.T) {
		h := newHarness(t)
		l := h.listed(t, big.NewInt(100))
		o, err := h.market.MakeOffer(ctx, alice, l.ID, big.NewInt(80))
		require.NoError(t, err)

		_, err = h.market.CancelOffer(ctx, bob, o.ID)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)

		o, err = h.market.CancelOffer(ctx, alice, o.ID)
		require.NoError(t, err)
		assert.True(t, o.Cancelled())

		h.fund(t, alice, big.NewInt(80))
		_, err = h.market.FillOffer(ctx, creator, o.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
		_, err = h.market.CancelOffer(ctx, alice, o.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
		assert.Equal(t, creator, h.owner(t, l.TokenID))
	})

	t.Run("fill then cancel", func(t *testing.T) {
		h := newHarness(t)
		l := h.listed(t, big.NewInt(100))
		o, err := h.market.MakeOffer(ctx, alice, l.ID, big.NewInt(80))
		require.NoError(t, err)
		h.fund(t, alice, big.NewInt(80))

		_, err = h.market.FillOffer(ctx, creator, o.ID)
		require.NoError(t, err)
		_, err = h.market.CancelOffer(ctx, alice, o.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
	})

	t.Run("racing", func(t *testing.T) {
		h := newHarness(t)
		l := h.listed(t, big.NewInt(100))
		o, err := h.market.MakeOffer(ctx, alice, l.ID, big.NewInt(80))
		require.NoError(t, err)
		h.fund(t, alice, big.NewInt(80))

		var wg sync.WaitGroup
		var fillErr, cancelErr error
		wg.Add(2)
		go func() { defer wg.Done(); _, fillErr = h.market.FillOffer(ctx, creator, o.ID) }()
		go func() { defer wg.Done(); _, cancelErr = h.market.CancelOffer(ctx, alice, o.ID) }()
		wg.Wait()

		require.True(t, (fillErr == nil) != (cancelErr == nil), "fill=%v cancel=%v", fillErr, cancelErr)
		if fillErr != nil {
			assert.ErrorIs(t, fillErr, domain.ErrAlreadyTerminal)
		} else {
			assert.ErrorIs(t, cancelErr, domain.ErrAlreadyTerminal)
		}
	})
}

func TestMakeOfferPreconditions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	l := h.listed(t, big.NewInt(100))

	_, err := h.market.MakeOffer(ctx, alice, 42, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.market.MakeOffer(ctx, alice, l.ID, big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.market.MakeOffer(ctx, creator, l.ID, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	c, err := h.market.CreateCollection(ctx, "unapproved")
	require.NoError(t, err)
	other, err := h.market.CreateMarketItem(ctx, creator, c.ID, "ipfs://x")
	require.NoError(t, err)
	_, err = h.market.MakeOffer(ctx, alice, other.ID, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrNotApproved)
}

type failingTransfer struct {
	*tokenmem.Registry
	err error
}

func (f *failingTransfer) TransferFrom(context.Context, common.Address, common.Address, common.Address, uint64) error {
	return f.err
}

func TestTransferFailureChargesNothing(t *testing.T) {
	ctx := context.Background()
	transferErr := errors.New("rpc: connection reset")

	var tokens *tokenmem.Registry
	h := newHarness(t, func(deps *MarketplaceDeps, _ *MarketplaceConfig) {
		tokens = deps.Tokens.(*tokenmem.Registry)
		deps.Tokens = &failingTransfer{Registry: tokens, err: transferErr}
	})
	l := h.listed(t, big.NewInt(10))
	h.fund(t, alice, big.NewInt(10))

	_, err := h.market.BuyItem(ctx, alice, l.ID, big.NewInt(10))
	require.ErrorIs(t, err, transferErr)

	assert.Equal(t, int64(10), h.balance(t, alice).Int64())
	assert.Zero(t, h.funds.Held().Sign())
	assert.Equal(t, creator, h.owner(t, l.TokenID))

	got, err := h.market.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.ForSale())
	assert.Equal(t, l.Version, got.Version)
}

type failingCapture struct {
	*escrow.Ledger
}

func (f *failingCapture) Capture(context.Context, domain.Hold, common.Address, *big.Int, common.Address) (domain.Receipt, error) {
	return domain.Receipt{}, errors.New("ledger unavailable")
}

func TestCaptureFailureUnwinds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(deps *MarketplaceDeps, _ *MarketplaceConfig) {
		deps.Payments = &failingCapture{Ledger: deps.Payments.(*escrow.Ledger)}
	})
	l := h.listed(t, big.NewInt(10))
	h.fund(t, alice, big.NewInt(10))

	_, err := h.market.BuyItem(ctx, alice, l.ID, big.NewInt(10))
	require.ErrorIs(t, err, domain.ErrSettlement)
	assert.Equal(t, "settlement_failed", domain.Kind(err))

	assert.Equal(t, creator, h.owner(t, l.TokenID), "token returned to the seller")
	assert.Equal(t, int64(10), h.balance(t, alice).Int64())
	assert.Zero(t, h.funds.Held().Sign())

	got, err := h.market.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.ForSale())

	assert.Zero(t, h.balance(t, creator).Sign(), "seller not paid")

	sales, err := h.market.ListSales(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

// failingDelivery lets the seller -> escrow leg through and fails every
// transfer out of escrow custody to the buyer.
type failingDelivery struct {
	*tokenmem.Registry
	buyer common.Address
}

func (f *failingDelivery) TransferFrom(ctx context.Context, caller, from, to common.Address, tokenID uint64) error {
	if from == escrowAddr && to == f.buyer {
		return errors.New("rpc: nonce too low")
	}
	return f.Registry.TransferFrom(ctx, caller, from, to, tokenID)
}

func TestDeliveryFailureKeepsTokenInCustody(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(deps *MarketplaceDeps, _ *MarketplaceConfig) {
		deps.Tokens = &failingDelivery{Registry: deps.Tokens.(*tokenmem.Registry), buyer: alice}
	})
	l := h.listed(t, big.NewInt(10))
	h.fund(t, alice, big.NewInt(10))

	_, err := h.market.BuyItem(ctx, alice, l.ID, big.NewInt(10))
	require.ErrorIs(t, err, domain.ErrSettlement)

	assert.Equal(t, escrowAddr, h.owner(t, l.TokenID), "token held for the buyer")
	assert.Equal(t, int64(10), h.balance(t, creator).Int64())
	assert.Zero(t, h.balance(t, alice).Sign())

	got, err := h.market.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.Sold(), "the sale is recorded so the listing cannot sell twice")
	assert.Equal(t, alice, got.Buyer)

	sales, err := h.market.ListSales(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, alice, sales[0].Buyer)
}

func TestEventsArePublished(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	l := h.listed(t, big.NewInt(10))
	o, err := h.market.MakeOffer(ctx, bob, l.ID, big.NewInt(5))
	require.NoError(t, err)
	_, err = h.market.CancelOffer(ctx, bob, o.ID)
	require.NoError(t, err)
	h.fund(t, alice, big.NewInt(10))
	_, err = h.market.BuyItem(ctx, alice, l.ID, big.NewInt(10))
	require.NoError(t, err)

	msgs, err := h.bus.StreamRead(ctx, MarketStream, "", 0)
	require.NoError(t, err)

	var types []domain.EventType
	var sold domain.Event
	for _, msg := range msgs {
		var ev domain.Event
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		types = append(types, ev.Type)
		if ev.Type == domain.EventItemSold {
			sold = ev
		}
	}
	assert.Equal(t, []domain.EventType{
		domain.EventCollectionCreated,
		domain.EventMarketNftCreated,
		domain.EventItemListed,
		domain.EventOfferCreated,
		domain.EventOfferCancelled,
		domain.EventItemSold,
	}, types)
	require.NotNil(t, sold.Buyer)
	assert.Equal(t, alice, *sold.Buyer)
	assert.Equal(t, int64(10), sold.Price.Int64())

	entries, err := h.audit.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(domain.EventItemSold), entries[0].Event)
}

func TestNewMarketplaceValidatesConfig(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	_, err := NewMarketplace(MarketplaceDeps{}, MarketplaceConfig{}, logger)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewMarketplace(MarketplaceDeps{}, MarketplaceConfig{Escrow: escrowAddr, FeeBps: 100}, logger)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// flakyCache fails every write and records invalidations.
type flakyCache struct {
	mu          sync.Mutex
	entries     map[uint64]domain.Listing
	invalidated []uint64
}

func (c *flakyCache) Set(context.Context, domain.Listing) error {
	return errors.New("redis: connection pool timeout")
}

func (c *flakyCache) Get(_ context.Context, id uint64) (domain.Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.entries[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func (c *flakyCache) Invalidate(_ context.Context, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

func TestFailedCacheWriteInvalidates(t *testing.T) {
	ctx := context.Background()
	cache := &flakyCache{entries: make(map[uint64]domain.Listing)}
	h := newHarness(t, func(deps *MarketplaceDeps, _ *MarketplaceConfig) {
		deps.Cache = cache
	})
	l := h.listed(t, big.NewInt(10))

	// An entry cached before the outage still shows the listing for sale.
	cache.entries[l.ID] = l

	_, err := h.market.DelistItem(ctx, creator, l.ID)
	require.NoError(t, err)

	assert.Contains(t, cache.invalidated, l.ID)
	got, err := h.market.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, got.ForSale(), "stale cached listing not served")
}
