package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// settle swaps l's token for price paid by buyer. It runs under the listing
// lock and moves the token through escrow custody so that every reverse leg
// is signed by the token's current owner:
//
//  1. hold price from the buyer's escrow balance
//  2. transfer the token seller -> escrow with the escrow as approved operator
//  3. capture the hold to the seller, net of the marketplace fee
//  4. deliver the token escrow -> buyer
//  5. commit the sold listing, the fulfilled offer and the sale journal entry
//
// A failed custody transfer releases the hold. A failed capture releases the
// hold and returns the token escrow -> seller, leaving nobody charged and the
// listing unchanged. Once capture succeeds the exchange has happened: a
// failed delivery still commits the sale, with the token left in custody for
// the buyer, and any failure from here on is reported as ErrSettlement.
func (m *Marketplace) settle(
	ctx context.Context,
	l domain.Listing,
	seller, buyer common.Address,
	price *big.Int,
	offer *domain.Offer,
) (domain.Sale, domain.Listing, error) {
	hold, err := m.payments.Hold(ctx, buyer, price)
	if err != nil {
		return domain.Sale{}, domain.Listing{}, fmt.Errorf("hold funds: %w", err)
	}

	if err := m.tokens.TransferFrom(ctx, m.cfg.Escrow, seller, m.cfg.Escrow, l.TokenID); err != nil {
		level := slog.LevelError
		if isBusinessError(err) {
			level = slog.LevelWarn
		}
		m.logger.Log(ctx, level, "marketplace: token custody failed, releasing hold",
			slog.Uint64("listing_id", l.ID),
			slog.String("hold_id", hold.ID),
			slog.String("error", err.Error()),
		)
		if relErr := m.payments.Release(ctx, hold); relErr != nil {
			return domain.Sale{}, domain.Listing{}, errors.Join(
				fmt.Errorf("transfer token: %w", err),
				fmt.Errorf("release hold %s: %w", hold.ID, relErr),
				domain.ErrSettlement,
			)
		}
		return domain.Sale{}, domain.Listing{}, fmt.Errorf("transfer token: %w", err)
	}

	fee := domain.FeeFor(price, m.cfg.FeeBps)
	receipt, err := m.payments.Capture(ctx, hold, seller, fee, m.cfg.FeeRecipient)
	if err != nil {
		return domain.Sale{}, domain.Listing{}, m.unwind(ctx, l, seller, hold, err)
	}

	var errs []error
	if err := m.tokens.TransferFrom(ctx, m.cfg.Escrow, m.cfg.Escrow, buyer, l.TokenID); err != nil {
		m.logger.ErrorContext(ctx, "marketplace: token delivery failed, held in custody for buyer",
			slog.Uint64("listing_id", l.ID),
			slog.Uint64("token_id", l.TokenID),
			slog.String("buyer", buyer.Hex()),
			slog.String("error", err.Error()),
		)
		errs = append(errs, domain.ErrSettlement, fmt.Errorf("deliver token %d: %w", l.TokenID, err))
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:        uuid.New().String(),
		ListingID: l.ID,
		TokenID:   l.TokenID,
		Seller:    seller,
		Buyer:     buyer,
		Price:     domain.CloneAmount(price),
		Fee:       receipt.Fee,
		HoldID:    hold.ID,
		SettledAt: now,
	}

	sold := l.Clone()
	sold.Status = domain.ListingStatusSold
	sold.Price = domain.CloneAmount(price)
	sold.Seller = seller
	sold.Buyer = buyer
	sold.SoldAt = &now

	commit := domain.SaleCommit{Listing: sold, Sale: sale}
	if offer != nil {
		filled := offer.Clone()
		filled.Status = domain.OfferStatusFulfilled
		commit.Offer = &filled
		sale.OfferID = domain.U64(offer.ID)
		commit.Sale = sale
	}

	sold, err = m.sales.Commit(ctx, commit)
	if err != nil {
		m.logger.ErrorContext(ctx, "marketplace: settled sale not recorded",
			slog.Uint64("listing_id", l.ID),
			slog.String("sale_id", sale.ID),
			slog.String("hold_id", hold.ID),
			slog.String("buyer", buyer.Hex()),
			slog.String("error", err.Error()),
		)
		errs = append(errs, domain.ErrSettlement, fmt.Errorf("record sale %s: %w", sale.ID, err))
		return domain.Sale{}, domain.Listing{}, errors.Join(errs...)
	}
	m.cacheListing(ctx, sold)
	if len(errs) > 0 {
		return sale, sold, errors.Join(errs...)
	}
	return sale, sold, nil
}

// unwind returns a token held in custody to the seller after its payment
// could not be captured. The escrow owns the token at this point, so the
// return leg needs no approval from anyone.
func (m *Marketplace) unwind(
	ctx context.Context,
	l domain.Listing,
	seller common.Address,
	hold domain.Hold,
	captureErr error,
) error {
	errs := []error{domain.ErrSettlement, fmt.Errorf("capture hold %s: %w", hold.ID, captureErr)}

	if err := m.payments.Release(ctx, hold); err != nil {
		errs = append(errs, fmt.Errorf("release hold %s: %w", hold.ID, err))
	}
	if err := m.tokens.TransferFrom(ctx, m.cfg.Escrow, m.cfg.Escrow, seller, l.TokenID); err != nil {
		errs = append(errs, fmt.Errorf("return token %d: %w", l.TokenID, err))
	}

	err := errors.Join(errs...)
	m.logger.ErrorContext(ctx, "marketplace: capture failed, settlement unwound",
		slog.Uint64("listing_id", l.ID),
		slog.String("hold_id", hold.ID),
		slog.String("error", err.Error()),
	)
	return err
}
