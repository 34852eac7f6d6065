package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// ApprovalForAll is implemented by providers that let the server record an
// operator approval on the owner's behalf.
type ApprovalForAll interface {
	SetApprovalForAll(ctx context.Context, owner, operator common.Address, approved bool) error
}

// TokenHandler exposes ownership queries and, for providers that hold
// ownership in-process, the approval calls a wallet would make.
type TokenHandler struct {
	tokens domain.TokenProvider
	logger *slog.Logger
}

func NewTokenHandler(tokens domain.TokenProvider, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, logger: logger}
}

type tokenView struct {
	TokenID  uint64         `json:"token_id"`
	Owner    common.Address `json:"owner"`
	Approved common.Address `json:"approved"`
	URI      string         `json:"uri"`
}

// GET /api/tokens/{id}
func (h *TokenHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ctx := r.Context()
	v := tokenView{TokenID: id}
	if v.Owner, err = h.tokens.OwnerOf(ctx, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if v.Approved, err = h.tokens.GetApproved(ctx, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if v.URI, err = h.tokens.TokenURI(ctx, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type approveRequest struct {
	Operator string `json:"operator"`
	Approved *bool  `json:"approved,omitempty"`
}

func (req approveRequest) operator() (common.Address, error) {
	if !common.IsHexAddress(req.Operator) {
		return common.Address{}, fmt.Errorf("operator %q: %w", req.Operator, domain.ErrInvalidInput)
	}
	return common.HexToAddress(req.Operator), nil
}

// Approve grants operator the right to move one token of the caller.
// POST /api/tokens/{id}/approve {"operator": "0x..."}
func (h *TokenHandler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	op, err := req.operator()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.tokens.Approve(r.Context(), caller, op, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token_id": id, "approved": op})
}

// ApproveAll sets or clears operator for every token of the caller.
// POST /api/tokens/approve-all {"operator": "0x...", "approved": true}
func (h *TokenHandler) ApproveAll(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	setter, ok := h.tokens.(ApprovalForAll)
	if !ok {
		writeError(w, r, h.logger, fmt.Errorf("approve-all must be sent from the owner's wallet: %w", domain.ErrUnauthorized))
		return
	}
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	op, err := req.operator()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	approved := req.Approved == nil || *req.Approved
	if err := setter.SetApprovalForAll(r.Context(), caller, op, approved); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": caller, "operator": op, "approved": approved})
}
