package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), "internal"},
		{"direct", ErrNotForSale, "not_for_sale"},
		{"wrapped", fmt.Errorf("marketplace: buy item 3: %w", ErrNotApproved), "not_approved"},
		{"joined settlement wins", errors.Join(ErrSettlement, ErrNotApproved), "settlement_failed"},
		{"terminal", fmt.Errorf("x: %w", ErrAlreadyTerminal), "already_terminal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}
