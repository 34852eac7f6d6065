package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// ListingService is the part of the marketplace the listing routes use.
type ListingService interface {
	CreateMarketItem(ctx context.Context, creator common.Address, collectionID uint64, uri string) (domain.Listing, error)
	ListItem(ctx context.Context, caller common.Address, listingID uint64, price *big.Int) (domain.Listing, error)
	DelistItem(ctx context.Context, caller common.Address, listingID uint64) (domain.Listing, error)
	BuyItem(ctx context.Context, buyer common.Address, listingID uint64, payment *big.Int) (domain.Sale, error)
	GetListing(ctx context.Context, id uint64) (domain.Listing, error)
	ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error)
	MakeOffer(ctx context.Context, bidder common.Address, listingID uint64, price *big.Int) (domain.Offer, error)
	ListOffers(ctx context.Context, listingID uint64, opts domain.ListOpts) ([]domain.Offer, error)
}

// ListingHandler serves /api/listings.
type ListingHandler struct {
	svc    ListingService
	logger *slog.Logger
}

func NewListingHandler(svc ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{svc: svc, logger: logger}
}

type createItemRequest struct {
	CollectionID uint64 `json:"collection_id"`
	URI          string `json:"uri"`
}

// Create mints a token to the caller and records its unlisted listing.
// POST /api/listings {"collection_id": 1, "uri": "ipfs://..."}
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req createItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	l, err := h.svc.CreateMarketItem(r.Context(), caller, req.CollectionID, req.URI)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// GET /api/listings/{id}
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	l, err := h.svc.GetListing(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// List filters by collection_id and for_sale when given.
// GET /api/listings?collection_id=1&for_sale=true&limit=&offset=
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := parseListOpts(r)
	filter := domain.ListingFilter{Limit: opts.Limit, Offset: opts.Offset}

	if raw := q.Get("collection_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, r, h.logger, fmt.Errorf("collection_id %q: %w", raw, domain.ErrInvalidInput))
			return
		}
		filter.CollectionID = &id
	}
	if raw := q.Get("for_sale"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, h.logger, fmt.Errorf("for_sale %q: %w", raw, domain.ErrInvalidInput))
			return
		}
		filter.ForSale = &v
	}

	ls, err := h.svc.ListListings(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": nonNil(ls)})
}

type priceRequest struct {
	Price string `json:"price"`
}

// SetPrice puts the listing up for sale at price.
// POST /api/listings/{id}/price {"price": "1000"}
func (h *ListingHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}
	var req priceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	l, err := h.svc.ListItem(r.Context(), caller, id, price)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Delist takes the listing off sale.
// DELETE /api/listings/{id}/price
func (h *ListingHandler) Delist(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}
	l, err := h.svc.DelistItem(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

type buyRequest struct {
	Payment string `json:"payment"`
}

// Buy settles the listing to the caller, charging its price from the
// caller's escrow balance.
// POST /api/listings/{id}/buy {"payment": "1000"}
func (h *ListingHandler) Buy(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	payment, err := parseAmount("payment", req.Payment)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sale, err := h.svc.BuyItem(r.Context(), caller, id, payment)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

// MakeOffer records a standing bid by the caller.
// POST /api/listings/{id}/offers {"price": "900"}
func (h *ListingHandler) MakeOffer(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}
	var req priceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	o, err := h.svc.MakeOffer(r.Context(), caller, id, price)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// GET /api/listings/{id}/offers
func (h *ListingHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	offers, err := h.svc.ListOffers(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": nonNil(offers)})
}

func (h *ListingHandler) callerAndID(w http.ResponseWriter, r *http.Request) (common.Address, uint64, bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return common.Address{}, 0, false
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return common.Address{}, 0, false
	}
	return caller, id, true
}
