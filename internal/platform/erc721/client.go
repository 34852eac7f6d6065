// Package erc721 implements domain.TokenProvider against an ERC-721
// contract over JSON-RPC. Every state-changing call is signed by the
// escrow key, so the adapter can only act as the escrow operator.
package erc721

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// Backend is the RPC surface the client needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Client talks to a single ERC-721 contract.
type Client struct {
	backend  Backend
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	logger   *slog.Logger
}

// Dial connects to rpcURL and binds the contract at address.
func Dial(ctx context.Context, rpcURL string, address common.Address, key *ecdsa.PrivateKey, logger *slog.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("erc721: dial %s: %w", rpcURL, err)
	}
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("erc721: chain id: %w", err)
	}
	return New(ec, address, key, chainID, logger)
}

// New binds the contract at address over an existing backend.
func New(backend Backend, address common.Address, key *ecdsa.PrivateKey, chainID *big.Int, logger *slog.Logger) (*Client, error) {
	if key == nil {
		return nil, fmt.Errorf("erc721: %w: signing key required", domain.ErrInvalidInput)
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("erc721: %w: contract address required", domain.ErrInvalidInput)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("erc721: parse abi: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		backend:  backend,
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		logger:   logger.With(slog.String("component", "erc721")),
	}, nil
}

// Ping fetches the latest block header.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.backend.HeaderByNumber(ctx, nil); err != nil {
		return fmt.Errorf("erc721: latest header: %w", err)
	}
	return nil
}

// Operator returns the address that signs transactions.
func (c *Client) Operator() common.Address {
	return c.from
}

func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("erc721: call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("erc721: call %s: empty result", method)
	}
	return out, nil
}

// transact signs method with the escrow key and waits for the receipt.
func (c *Client) transact(ctx context.Context, method string, args ...any) (*types.Receipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("erc721: transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("erc721: send %s: %w", method, err)
	}
	c.logger.Debug("erc721: transaction sent", slog.String("method", method), slog.String("tx", tx.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("erc721: wait %s %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("erc721: %s %s reverted", method, tx.Hash().Hex())
	}
	return receipt, nil
}

func (c *Client) Mint(ctx context.Context, to common.Address, uri string) (uint64, error) {
	if to == (common.Address{}) {
		return 0, fmt.Errorf("erc721: %w: mint to zero address", domain.ErrInvalidInput)
	}
	receipt, err := c.transact(ctx, "safeMint", to, uri)
	if err != nil {
		return 0, err
	}
	id, err := c.mintedTokenID(receipt, to)
	if err != nil {
		return 0, err
	}
	c.logger.Info("erc721: minted", slog.Uint64("token_id", id), slog.String("to", to.Hex()))
	return id, nil
}

// mintedTokenID finds the Transfer(0, to, id) log emitted by safeMint.
func (c *Client) mintedTokenID(receipt *types.Receipt, to common.Address) (uint64, error) {
	transfer := c.abi.Events["Transfer"].ID
	for _, lg := range receipt.Logs {
		if lg.Address != c.address || len(lg.Topics) != 4 || lg.Topics[0] != transfer {
			continue
		}
		if common.BytesToAddress(lg.Topics[1].Bytes()) != (common.Address{}) ||
			common.BytesToAddress(lg.Topics[2].Bytes()) != to {
			continue
		}
		id := new(big.Int).SetBytes(lg.Topics[3].Bytes())
		if !id.IsUint64() {
			return 0, fmt.Errorf("erc721: token id %s out of range", id)
		}
		return id.Uint64(), nil
	}
	return 0, fmt.Errorf("erc721: no mint event in tx %s", receipt.TxHash.Hex())
}

func (c *Client) OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error) {
	out, err := c.call(ctx, "ownerOf", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *Client) GetApproved(ctx context.Context, tokenID uint64) (common.Address, error) {
	out, err := c.call(ctx, "getApproved", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *Client) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	out, err := c.call(ctx, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *Client) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	out, err := c.call(ctx, "tokenURI", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// Approve only succeeds when the escrow itself owns the token. Other owners
// approve the escrow from their own wallets.
func (c *Client) Approve(ctx context.Context, caller, operator common.Address, tokenID uint64) error {
	if caller != c.from {
		return fmt.Errorf("erc721: %w: %s must approve on-chain", domain.ErrUnauthorized, caller.Hex())
	}
	_, err := c.transact(ctx, "approve", operator, new(big.Int).SetUint64(tokenID))
	return err
}

func (c *Client) TransferFrom(ctx context.Context, caller, from, to common.Address, tokenID uint64) error {
	if caller != c.from {
		return fmt.Errorf("erc721: %w: transfers are signed by %s", domain.ErrUnauthorized, c.from.Hex())
	}
	if to == (common.Address{}) {
		return fmt.Errorf("erc721: %w: transfer to zero address", domain.ErrInvalidInput)
	}
	if _, err := c.transact(ctx, "transferFrom", from, to, new(big.Int).SetUint64(tokenID)); err != nil {
		return err
	}
	c.logger.Info("erc721: transferred",
		slog.Uint64("token_id", tokenID),
		slog.String("from", from.Hex()),
		slog.String("to", to.Hex()),
	)
	return nil
}

var _ domain.TokenProvider = (*Client)(nil)
