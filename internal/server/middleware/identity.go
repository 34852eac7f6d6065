package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/crypto"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// Request headers carrying the caller's wallet identity.
const (
	HeaderWallet    = "X-Wallet-Address"
	HeaderSignature = "X-Signature"
	HeaderNonce     = "X-Nonce"
)

type callerKey struct{}

// WithCaller returns a context carrying the authenticated wallet.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// Caller returns the wallet set by Identity, if any.
func Caller(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// IdentityConfig controls wallet authentication.
type IdentityConfig struct {
	// RequireSignatures makes every mutating request carry an EIP-712
	// signature over (method, path, nonce) by the claimed wallet.
	RequireSignatures bool
	Verifier          *crypto.Verifier
	// Nonces rejects a (wallet, nonce) pair seen inside its window.
	Nonces domain.Deduper
	Logger *slog.Logger
}

// Identity reads the caller wallet from X-Wallet-Address. A malformed
// address is rejected; a missing one leaves the request anonymous.
func Identity(cfg IdentityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderWallet)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !common.IsHexAddress(raw) {
				writeError(w, http.StatusBadRequest, "invalid_input", "malformed "+HeaderWallet)
				return
			}
			wallet := common.HexToAddress(raw)

			if cfg.RequireSignatures && mutating(r.Method) {
				if status, kind, msg := verifySignature(r, wallet, cfg); status != 0 {
					writeError(w, status, kind, msg)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), wallet)))
		})
	}
}

func verifySignature(r *http.Request, wallet common.Address, cfg IdentityConfig) (int, string, string) {
	sig := r.Header.Get(HeaderSignature)
	nonceStr := r.Header.Get(HeaderNonce)
	if sig == "" || nonceStr == "" {
		return http.StatusUnauthorized, "unauthorized", "signature and nonce required"
	}
	nonce, err := strconv.ParseUint(nonceStr, 10, 64)
	if err != nil {
		return http.StatusBadRequest, "invalid_input", "malformed " + HeaderNonce
	}

	action := crypto.Action{Wallet: wallet, Action: r.Method, Path: r.URL.Path, Nonce: nonce}
	if err := cfg.Verifier.Verify(action, sig); err != nil {
		cfg.Logger.InfoContext(r.Context(), "identity: signature rejected",
			slog.String("wallet", wallet.Hex()),
			slog.String("error", err.Error()),
		)
		return http.StatusUnauthorized, "unauthorized", "invalid signature"
	}

	if cfg.Nonces != nil {
		seen, err := cfg.Nonces.Seen(r.Context(), "nonce:"+wallet.Hex()+":"+nonceStr)
		if err != nil {
			return http.StatusInternalServerError, "internal", "nonce check failed"
		}
		if seen {
			return http.StatusConflict, "duplicate_request", "nonce already used"
		}
	}
	return 0, "", ""
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// writeError writes the same {"error","kind"} body the handlers use.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": kind})
}
