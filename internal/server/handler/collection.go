package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// CollectionService is the part of the marketplace the collection routes use.
type CollectionService interface {
	CreateCollection(ctx context.Context, name string) (domain.Collection, error)
	GetCollection(ctx context.Context, id uint64) (domain.Collection, error)
	ListCollections(ctx context.Context, opts domain.ListOpts) ([]domain.Collection, error)
}

// CollectionHandler serves /api/collections.
type CollectionHandler struct {
	svc    CollectionService
	logger *slog.Logger
}

func NewCollectionHandler(svc CollectionService, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{svc: svc, logger: logger}
}

type createCollectionRequest struct {
	Name string `json:"name"`
}

// Create registers a collection.
// POST /api/collections {"name": "..."}
func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireCaller(w, r); !ok {
		return
	}
	var req createCollectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.svc.CreateCollection(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GET /api/collections/{id}
func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.svc.GetCollection(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GET /api/collections?limit=&offset=
func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	cs, err := h.svc.ListCollections(r.Context(), parseListOpts(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": nonNil(cs)})
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
