package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// OfferService is the part of the marketplace the offer routes use.
type OfferService interface {
	GetOffer(ctx context.Context, id uint64) (domain.Offer, error)
	FillOffer(ctx context.Context, caller common.Address, offerID uint64) (domain.Sale, error)
	CancelOffer(ctx context.Context, caller common.Address, offerID uint64) (domain.Offer, error)
}

// OfferHandler serves /api/offers.
type OfferHandler struct {
	svc    OfferService
	logger *slog.Logger
}

func NewOfferHandler(svc OfferService, logger *slog.Logger) *OfferHandler {
	return &OfferHandler{svc: svc, logger: logger}
}

// GET /api/offers/{id}
func (h *OfferHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	o, err := h.svc.GetOffer(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Fill accepts the offer; the caller must own the token.
// POST /api/offers/{id}/fill
func (h *OfferHandler) Fill(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sale, err := h.svc.FillOffer(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

// Cancel withdraws the offer; the caller must be the bidder.
// POST /api/offers/{id}/cancel
func (h *OfferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	o, err := h.svc.CancelOffer(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
