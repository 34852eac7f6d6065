package middleware

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// HeaderIdempotencyKey lets a client retry a mutating request safely.
const HeaderIdempotencyKey = "Idempotency-Key"

// Idempotency rejects a repeated Idempotency-Key from the same caller with
// 409 so a retried buy or fill is never applied twice. Requests without the
// header pass through.
func Idempotency(keys domain.Deduper, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if keys == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idem := r.Header.Get(HeaderIdempotencyKey)
			if idem == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			scope := "anon"
			if caller, ok := Caller(r.Context()); ok {
				scope = caller.Hex()
			}

			seen, err := keys.Seen(r.Context(), "idem:"+scope+":"+idem)
			if err != nil {
				logger.WarnContext(r.Context(), "idempotency: dedup error", slog.String("error", err.Error()))
				writeError(w, http.StatusInternalServerError, "internal", "idempotency check failed")
				return
			}
			if seen {
				writeError(w, http.StatusConflict, "duplicate_request", "duplicate "+HeaderIdempotencyKey)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
