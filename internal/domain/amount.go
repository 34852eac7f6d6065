package domain

import (
	"fmt"
	"math/big"
)

// MaxPrice is the largest representable price (2^128 - 1).
var MaxPrice = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// CloneAmount returns an independent copy of v. A nil v yields nil.
func CloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// IsPositive reports whether v is non-nil and strictly greater than zero.
func IsPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// ParseAmount parses a base-10 amount and checks it fits in 128 bits.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q: %w", s, ErrInvalidInput)
	}
	if v.Sign() < 0 || v.Cmp(MaxPrice) > 0 {
		return nil, fmt.Errorf("amount %q out of range: %w", s, ErrInvalidInput)
	}
	return v, nil
}

// FeeFor returns amount * bps / 10_000, rounded down.
func FeeFor(amount *big.Int, bps int) *big.Int {
	if amount == nil || bps <= 0 {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return fee.Quo(fee, big.NewInt(10_000))
}
