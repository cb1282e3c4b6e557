// Package crypto holds the wallet key, EIP-712 signing for exchange orders
// and venue auth, and the HMAC headers for authenticated REST calls.
package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	authDomainName = "ClobAuthDomain"
	authVersion    = "1"
	authMessage    = "This message attests that I control the given wallet"

	exchangeDomainName = "Polymarket CTF Exchange"
	exchangeVersion    = "1"
)

var eip712Domain = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
}

var orderType = []apitypes.Type{
	{Name: "salt", Type: "uint256"},
	{Name: "maker", Type: "address"},
	{Name: "signer", Type: "address"},
	{Name: "taker", Type: "address"},
	{Name: "tokenId", Type: "uint256"},
	{Name: "makerAmount", Type: "uint256"},
	{Name: "takerAmount", Type: "uint256"},
	{Name: "expiration", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
	{Name: "feeRateBps", Type: "uint256"},
	{Name: "side", Type: "uint8"},
	{Name: "signatureType", Type: "uint8"},
}

// Order is the exchange order struct covered by the EIP-712 signature.
// Integers are decimal strings so they survive JSON untouched.
type Order struct {
	Salt          string
	Maker         string
	Signer        string
	Taker         string
	TokenID       string
	MakerAmount   string
	TakerAmount   string
	Expiration    string
	Nonce         string
	FeeRateBps    string
	Side          uint8 // 0 = BUY, 1 = SELL
	SignatureType uint8 // 0 = EOA, 1 = POLY_PROXY, 2 = POLY_GNOSIS_SAFE
}

// Signer signs typed data with a secp256k1 wallet key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID int64
}

// NewSigner parses a hex private key (0x prefix optional).
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if keyHex == "" {
		return nil, fmt.Errorf("crypto/signer: private key is required")
	}
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		key:     pk,
		address: ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID: chainID,
	}, nil
}

// Address returns the wallet address.
func (s *Signer) Address() common.Address { return s.address }

// ChainID returns the chain the signer was configured for.
func (s *Signer) ChainID() int64 { return s.chainID }

// PrivateKey exposes the key for transaction signing.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey { return s.key }

// SignTypedData hashes td per EIP-712 and returns a 0x-prefixed 65-byte
// signature with v in {27, 28}.
func (s *Signer) SignTypedData(td apitypes.TypedData) (string, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: typed data hash: %w", err)
	}
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: sign digest: %w", err)
	}
	sig[64] += 27
	return "0x" + common.Bytes2Hex(sig), nil
}

// SignAuth produces the L1 ClobAuth signature used to derive API creds.
func (s *Signer) SignAuth(timestamp, nonce int64) (string, error) {
	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712Domain,
			"ClobAuth": []apitypes.Type{
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain: apitypes.TypedDataDomain{
			Name:    authDomainName,
			Version: authVersion,
			ChainId: math.NewHexOrDecimal256(s.chainID),
		},
		Message: apitypes.TypedDataMessage{
			"address":   s.address.Hex(),
			"timestamp": strconv.FormatInt(timestamp, 10),
			"nonce":     big.NewInt(nonce),
			"message":   authMessage,
		},
	}
	return s.SignTypedData(td)
}

// SignOrder signs o against the exchange contract at verifyingContract.
func (s *Signer) SignOrder(o Order, verifyingContract string) (string, error) {
	msg := apitypes.TypedDataMessage{
		"maker":         o.Maker,
		"signer":        o.Signer,
		"taker":         o.Taker,
		"side":          new(big.Int).SetUint64(uint64(o.Side)),
		"signatureType": new(big.Int).SetUint64(uint64(o.SignatureType)),
	}
	for name, raw := range map[string]string{
		"salt":        o.Salt,
		"tokenId":     o.TokenID,
		"makerAmount": o.MakerAmount,
		"takerAmount": o.TakerAmount,
		"expiration":  o.Expiration,
		"nonce":       o.Nonce,
		"feeRateBps":  o.FeeRateBps,
	} {
		n, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return "", fmt.Errorf("crypto/signer: invalid %s %q", name, raw)
		}
		msg[name] = n
	}

	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": append(append([]apitypes.Type{}, eip712Domain...),
				apitypes.Type{Name: "verifyingContract", Type: "address"}),
			"Order": orderType,
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              exchangeDomainName,
			Version:           exchangeVersion,
			ChainId:           math.NewHexOrDecimal256(s.chainID),
			VerifyingContract: verifyingContract,
		},
		Message: msg,
	}
	return s.SignTypedData(td)
}
