package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	domainName    = "NFTMarket"
	domainVersion = "1"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// Action(address wallet,string action,string path,uint256 nonce)
	actionTypeHash = ethcrypto.Keccak256(
		[]byte("Action(address wallet,string action,string path,uint256 nonce)"),
	)
)

// Action is the EIP-712 message a wallet signs to authorise one marketplace
// request. Action is the HTTP method, Path the request path.
type Action struct {
	Wallet common.Address
	Action string
	Path   string
	Nonce  uint64
}

// Signer holds the escrow key. It signs on-chain transactions through
// PrivateKey and marketplace actions through SignAction.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
	domainSep  []byte
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
		domainSep:  domainSeparator(chainID),
	}, nil
}

// Address returns the address of the escrow key.
func (s *Signer) Address() common.Address { return s.address }

// ChainID returns the chain the signer was configured for.
func (s *Signer) ChainID() int64 { return s.chainID }

// PrivateKey exposes the key for transaction signing.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey { return s.privateKey }

// SignAction signs a for this signer's own wallet. The Wallet field is
// overwritten with the signer address.
func (s *Signer) SignAction(a Action) (string, error) {
	a.Wallet = s.address
	sig, err := ethcrypto.Sign(eip712Hash(s.domainSep, actionStructHash(a)), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	// go-ethereum returns v in {0,1}; wallets produce {27,28}.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// Verifier checks wallet signatures over marketplace actions.
type Verifier struct {
	domainSep []byte
}

// NewVerifier creates a Verifier for the given chain.
func NewVerifier(chainID int64) *Verifier {
	return &Verifier{domainSep: domainSeparator(chainID)}
}

// Verify fails with domain.ErrUnauthorized unless sigHex is a signature of a
// by a.Wallet.
func (v *Verifier) Verify(a Action, sigHex string) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != 65 {
		return fmt.Errorf("crypto/verifier: malformed signature: %w", domain.ErrUnauthorized)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(eip712Hash(v.domainSep, actionStructHash(a)), sig)
	if err != nil {
		return fmt.Errorf("crypto/verifier: recover: %v: %w", err, domain.ErrUnauthorized)
	}
	if got := ethcrypto.PubkeyToAddress(*pub); got != a.Wallet {
		return fmt.Errorf("crypto/verifier: signed by %s, not %s: %w", got.Hex(), a.Wallet.Hex(), domain.ErrUnauthorized)
	}
	return nil
}

// domainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func domainSeparator(chainID int64) []byte {
	return ethcrypto.Keccak256(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte(domainName)),
		ethcrypto.Keccak256([]byte(domainVersion)),
		common.LeftPadBytes(big.NewInt(chainID).Bytes(), 32),
	)
}

func actionStructHash(a Action) []byte {
	return ethcrypto.Keccak256(
		actionTypeHash,
		common.LeftPadBytes(a.Wallet.Bytes(), 32),
		ethcrypto.Keccak256([]byte(a.Action)),
		ethcrypto.Keccak256([]byte(a.Path)),
		common.LeftPadBytes(new(big.Int).SetUint64(a.Nonce).Bytes(), 32),
	)
}

// eip712Hash computes keccak256("\x19\x01" || domainSeparator || structHash).
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash)
}
