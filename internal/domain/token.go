package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// TokenProvider is the external ownership and approval authority. The
// marketplace never stores ownership itself; it only calls into a provider.
type TokenProvider interface {
	// Mint allocates a new token owned by to.
	Mint(ctx context.Context, to common.Address, uri string) (uint64, error)
	OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error)
	GetApproved(ctx context.Context, tokenID uint64) (common.Address, error)
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
	// Approve grants operator the right to transfer tokenID. It fails unless
	// caller owns the token.
	Approve(ctx context.Context, caller, operator common.Address, tokenID uint64) error
	// TransferFrom moves tokenID from from to to. It fails unless caller is
	// the owner, the approved operator, or an operator for all of from's tokens.
	TransferFrom(ctx context.Context, caller, from, to common.Address, tokenID uint64) error
	TokenURI(ctx context.Context, tokenID uint64) (string, error)
}
