package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/config"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/escrow"
)

const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var devAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestWireMemoryStack(t *testing.T) {
	cfg := config.Defaults()
	cfg.Escrow.PrivateKey = devKey
	require.NoError(t, cfg.Validate())

	deps, cleanup, err := Wire(context.Background(), &cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, devAddr, deps.Escrow)
	require.NotNil(t, deps.Signer)
	assert.NotNil(t, deps.Marketplace)
	assert.Nil(t, deps.Cache)
	assert.IsType(t, &escrow.Ledger{}, deps.Funds, "memory backend keeps balances in process")
	assert.Nil(t, deps.Archiver, "server mode does not archive")
	assert.Nil(t, deps.Notifier)
	assert.Empty(t, deps.Checks)
	assert.Len(t, deps.sweepers, 2)

	c, err := deps.Marketplace.CreateCollection(context.Background(), "wired")
	require.NoError(t, err)
	assert.Equal(t, "wired", c.Name)
}

func TestWireAddressOnly(t *testing.T) {
	cfg := config.Defaults()
	cfg.Escrow.Address = "0x00000000000000000000000000000000000e5c01"

	deps, cleanup, err := Wire(context.Background(), &cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.Signer)
	assert.Equal(t, common.HexToAddress(cfg.Escrow.Address), deps.Escrow)
}

func TestWireRejectsMismatchedEscrowAddress(t *testing.T) {
	cfg := config.Defaults()
	cfg.Escrow.PrivateKey = devKey
	cfg.Escrow.Address = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	_, _, err := Wire(context.Background(), &cfg, discard())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestWireNotifierWhenConfigured(t *testing.T) {
	cfg := config.Defaults()
	cfg.Escrow.PrivateKey = devKey
	cfg.Notify.DiscordWebhookURL = "http://127.0.0.1:1/hook"

	deps, cleanup, err := Wire(context.Background(), &cfg, discard())
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, deps.Notifier)
}

type countingArchiver struct {
	sales, audit atomic.Int32
	cutoffs      chan time.Time
	failSales    bool
}

func (c *countingArchiver) ArchiveSales(_ context.Context, before time.Time) (int64, error) {
	c.sales.Add(1)
	c.cutoffs <- before
	if c.failSales {
		return 0, errors.New("bucket unavailable")
	}
	return 3, nil
}

func (c *countingArchiver) ArchiveAudit(context.Context, time.Time) (int64, error) {
	c.audit.Add(1)
	return 7, nil
}

func TestArchiveLoopRunsImmediatelyAndOnTick(t *testing.T) {
	arch := &countingArchiver{cutoffs: make(chan time.Time, 16), failSales: true}
	cutoff := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- archiveLoop(ctx, arch, 10*time.Millisecond, func() time.Time { return cutoff }, discard())
	}()

	for i := 0; i < 2; i++ {
		select {
		case got := <-arch.cutoffs:
			assert.Equal(t, cutoff, got)
		case <-time.After(2 * time.Second):
			t.Fatal("archive pass did not run")
		}
	}
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, arch.audit.Load(), int32(2), "audit still archived when sales fail")
}
