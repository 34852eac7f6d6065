package handler

import (
	"fmt"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// EscrowHandler serves /api/escrow. Deposits are routed behind the operator
// credential; withdrawals act on the authenticated caller only.
type EscrowHandler struct {
	funds  domain.EscrowAccounts
	logger *slog.Logger
}

func NewEscrowHandler(funds domain.EscrowAccounts, logger *slog.Logger) *EscrowHandler {
	return &EscrowHandler{funds: funds, logger: logger}
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type balanceResponse struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
}

type depositRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// Deposit credits a wallet's balance on behalf of the operator.
// POST /api/escrow/deposit {"address": "0x...", "amount": "1000"}
func (h *EscrowHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, r, h.logger, fmt.Errorf("address %q: %w", req.Address, domain.ErrInvalidInput))
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	addr := common.HexToAddress(req.Address)
	bal, err := h.funds.Deposit(r.Context(), addr, amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: operator deposit",
		slog.String("address", addr.Hex()),
		slog.String("amount", amount.String()),
	)
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr, Balance: bal})
}

// Withdraw debits the caller's free balance.
// POST /api/escrow/withdraw {"amount": "1000"}
func (h *EscrowHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	bal, err := h.funds.Withdraw(r.Context(), caller, amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: caller, Balance: bal})
}

// GET /api/escrow/balances/{address}
func (h *EscrowHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	bal, err := h.funds.Balance(r.Context(), addr)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr, Balance: bal})
}
