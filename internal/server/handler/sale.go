package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// SaleService lists the sales journal.
type SaleService interface {
	ListSales(ctx context.Context, opts domain.ListOpts) ([]domain.Sale, error)
}

// SaleHandler serves /api/sales.
type SaleHandler struct {
	svc    SaleService
	logger *slog.Logger
}

func NewSaleHandler(svc SaleService, logger *slog.Logger) *SaleHandler {
	return &SaleHandler{svc: svc, logger: logger}
}

// List returns sales newest first.
// GET /api/sales?limit=&offset=
func (h *SaleHandler) List(w http.ResponseWriter, r *http.Request) {
	sales, err := h.svc.ListSales(r.Context(), parseListOpts(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": nonNil(sales)})
}
