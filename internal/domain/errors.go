package domain

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrNotApproved       = errors.New("not approved")
	ErrNotForSale        = errors.New("not for sale")
	ErrAlreadyTerminal   = errors.New("already terminal")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrConflict          = errors.New("version conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSettlement        = errors.New("settlement failed")
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")
	ErrDuplicateRequest  = errors.New("duplicate request")
)

// kinds is ordered so the most specific sentinel wins when an error wraps
// several (errors.Join in the settlement path).
var kinds = []struct {
	err  error
	name string
}{
	{ErrSettlement, "settlement_failed"},
	{ErrInvalidInput, "invalid_input"},
	{ErrNotFound, "not_found"},
	{ErrNotApproved, "not_approved"},
	{ErrNotForSale, "not_for_sale"},
	{ErrAlreadyTerminal, "already_terminal"},
	{ErrUnauthorized, "unauthorized"},
	{ErrConflict, "conflict"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrRateLimited, "rate_limited"},
	{ErrLockHeld, "lock_held"},
	{ErrDuplicateRequest, "duplicate_request"},
}

// Kind returns the machine-readable kind of err, or "internal" when err does
// not wrap any of the package sentinels.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
