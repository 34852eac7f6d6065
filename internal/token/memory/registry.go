// Package memory is an in-process ERC-721 token registry.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Registry implements domain.TokenProvider with ERC-721 ownership and
// approval rules. Token ids are allocated sequentially from 0.
type Registry struct {
	mu        sync.RWMutex
	owners    map[uint64]common.Address
	approvals map[uint64]common.Address
	operators map[common.Address]map[common.Address]bool
	uris      map[uint64]string
	next      uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		owners:    make(map[uint64]common.Address),
		approvals: make(map[uint64]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
		uris:      make(map[uint64]string),
	}
}

func (r *Registry) Mint(_ context.Context, to common.Address, uri string) (uint64, error) {
	if to == (common.Address{}) {
		return 0, fmt.Errorf("token: mint to zero address: %w", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	r.owners[id] = to
	r.uris[id] = uri
	r.next++
	return id, nil
}

func (r *Registry) OwnerOf(_ context.Context, tokenID uint64) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.owners[tokenID]
	if !ok {
		return common.Address{}, fmt.Errorf("token: %d: %w", tokenID, domain.ErrNotFound)
	}
	return owner, nil
}

func (r *Registry) GetApproved(_ context.Context, tokenID uint64) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.owners[tokenID]; !ok {
		return common.Address{}, fmt.Errorf("token: %d: %w", tokenID, domain.ErrNotFound)
	}
	return r.approvals[tokenID], nil
}

func (r *Registry) IsApprovedForAll(_ context.Context, owner, operator common.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.operators[owner][operator], nil
}

// Approve sets the single approved address for tokenID. The caller must be
// the owner or one of the owner's operators.
func (r *Registry) Approve(_ context.Context, caller, operator common.Address, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[tokenID]
	if !ok {
		return fmt.Errorf("token: %d: %w", tokenID, domain.ErrNotFound)
	}
	if operator == owner {
		return fmt.Errorf("token: approve %d to its owner: %w", tokenID, domain.ErrInvalidInput)
	}
	if caller != owner && !r.operators[owner][caller] {
		return fmt.Errorf("token: %s may not approve %d: %w", caller.Hex(), tokenID, domain.ErrUnauthorized)
	}
	r.approvals[tokenID] = operator
	return nil
}

// SetApprovalForAll lets operator transfer every token owner holds.
func (r *Registry) SetApprovalForAll(_ context.Context, owner, operator common.Address, approved bool) error {
	if owner == operator {
		return fmt.Errorf("token: operator is owner: %w", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ops, ok := r.operators[owner]
	if !ok {
		ops = make(map[common.Address]bool)
		r.operators[owner] = ops
	}
	if approved {
		ops[operator] = true
	} else {
		delete(ops, operator)
	}
	return nil
}

// TransferFrom moves tokenID and clears its single approval.
func (r *Registry) TransferFrom(_ context.Context, caller, from, to common.Address, tokenID uint64) error {
	if to == (common.Address{}) {
		return fmt.Errorf("token: transfer to zero address: %w", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[tokenID]
	if !ok {
		return fmt.Errorf("token: %d: %w", tokenID, domain.ErrNotFound)
	}
	if owner != from {
		return fmt.Errorf("token: %d not owned by %s: %w", tokenID, from.Hex(), domain.ErrInvalidInput)
	}
	if caller != owner && r.approvals[tokenID] != caller && !r.operators[owner][caller] {
		return fmt.Errorf("token: %s may not transfer %d: %w", caller.Hex(), tokenID, domain.ErrUnauthorized)
	}

	delete(r.approvals, tokenID)
	r.owners[tokenID] = to
	return nil
}

func (r *Registry) TokenURI(_ context.Context, tokenID uint64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uri, ok := r.uris[tokenID]
	if !ok {
		return "", fmt.Errorf("token: %d: %w", tokenID, domain.ErrNotFound)
	}
	return uri, nil
}

var _ domain.TokenProvider = (*Registry)(nil)
