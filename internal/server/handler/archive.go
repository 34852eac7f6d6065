package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// ArchiveHandler lists exported history files.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logger}
}

// List returns the archive objects for kind (sales or audit).
// GET /api/archives?kind=sales
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind != "sales" && kind != "audit" {
		writeError(w, r, h.logger, fmt.Errorf("kind %q: %w", kind, domain.ErrInvalidInput))
		return
	}
	infos, err := h.blobs.List(r.Context(), "archive/"+kind+"/")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": nonNil(infos)})
}
