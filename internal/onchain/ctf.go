// Package onchain reads Conditional Token Framework state on Polygon and
// redeems resolved Up/Down positions for USDC.e.
package onchain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// maxIndexSets bounds the index set search; binary conditions use 1 and 2.
const maxIndexSets = 8

var (
	ctfABI   abi.ABI
	erc20ABI abi.ABI
)

func init() {
	var err error
	ctfABI, err = abi.JSON(strings.NewReader(`[
		{"name":"payoutDenominator","type":"function","stateMutability":"view",
		 "inputs":[{"name":"conditionId","type":"bytes32"}],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"name":"payoutNumerators","type":"function","stateMutability":"view",
		 "inputs":[{"name":"conditionId","type":"bytes32"},{"name":"index","type":"uint256"}],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view",
		 "inputs":[{"name":"owner","type":"address"},{"name":"id","type":"uint256"}],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"name":"getCollectionId","type":"function","stateMutability":"view",
		 "inputs":[{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"indexSet","type":"uint256"}],
		 "outputs":[{"name":"","type":"bytes32"}]},
		{"name":"getPositionId","type":"function","stateMutability":"pure",
		 "inputs":[{"name":"collateralToken","type":"address"},{"name":"collectionId","type":"bytes32"}],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"name":"redeemPositions","type":"function","stateMutability":"nonpayable",
		 "inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"indexSets","type":"uint256[]"}],
		 "outputs":[]}
	]`))
	if err != nil {
		panic("onchain: ctf abi parse: " + err.Error())
	}

	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{"name":"balanceOf","type":"function","stateMutability":"view",
		 "inputs":[{"name":"account","type":"address"}],
		 "outputs":[{"name":"","type":"uint256"}]}
	]`))
	if err != nil {
		panic("onchain: erc20 abi parse: " + err.Error())
	}
}

// Caller executes read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dial connects to a Polygon JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain: dial rpc: %w", err)
	}
	return c, nil
}

// CTF reads the conditional token contract and the USDC.e collateral.
type CTF struct {
	caller Caller
	ctf    common.Address
	usdc   common.Address
}

// NewCTF binds to the CTF and USDC.e contracts at the given addresses.
func NewCTF(caller Caller, ctfAddress, usdcAddress string) *CTF {
	return &CTF{
		caller: caller,
		ctf:    common.HexToAddress(ctfAddress),
		usdc:   common.HexToAddress(usdcAddress),
	}
}

// Address returns the CTF contract address.
func (c *CTF) Address() common.Address { return c.ctf }

// Collateral returns the USDC.e token address.
func (c *CTF) Collateral() common.Address { return c.usdc }

// PayoutDenominator returns 0 while the condition is unresolved.
func (c *CTF) PayoutDenominator(ctx context.Context, conditionID [32]byte) (*big.Int, error) {
	return c.callUint(ctx, c.ctf, ctfABI, "payoutDenominator", conditionID)
}

// PayoutNumerator returns the payout for outcome index (0 = Up, 1 = Down).
func (c *CTF) PayoutNumerator(ctx context.Context, conditionID [32]byte, index int64) (*big.Int, error) {
	return c.callUint(ctx, c.ctf, ctfABI, "payoutNumerators", conditionID, big.NewInt(index))
}

// BalanceOf returns owner's raw (6-decimal) balance of position id.
func (c *CTF) BalanceOf(ctx context.Context, owner common.Address, positionID *big.Int) (*big.Int, error) {
	return c.callUint(ctx, c.ctf, ctfABI, "balanceOf", owner, positionID)
}

// CollectionID returns getCollectionId(0x0, conditionID, indexSet).
func (c *CTF) CollectionID(ctx context.Context, conditionID [32]byte, indexSet uint64) ([32]byte, error) {
	out, err := c.call(ctx, c.ctf, ctfABI, "getCollectionId", [32]byte{}, conditionID, new(big.Int).SetUint64(indexSet))
	if err != nil {
		return [32]byte{}, err
	}
	id, ok := out[0].([32]byte)
	if !ok {
		return [32]byte{}, fmt.Errorf("onchain: getCollectionId: unexpected type %T", out[0])
	}
	return id, nil
}

// PositionID returns getPositionId(USDC.e, collectionID).
func (c *CTF) PositionID(ctx context.Context, collectionID [32]byte) (*big.Int, error) {
	return c.callUint(ctx, c.ctf, ctfABI, "getPositionId", c.usdc, collectionID)
}

// FindIndexSet searches the index sets 1<<0 .. 1<<7 for the one whose
// position id equals assetID. ok is false when none matches.
func (c *CTF) FindIndexSet(ctx context.Context, conditionID [32]byte, assetID *big.Int) (indexSet uint64, ok bool, err error) {
	for i := 0; i < maxIndexSets; i++ {
		set := uint64(1) << i
		coll, err := c.CollectionID(ctx, conditionID, set)
		if err != nil {
			return 0, false, err
		}
		pos, err := c.PositionID(ctx, coll)
		if err != nil {
			return 0, false, err
		}
		if pos.Cmp(assetID) == 0 {
			return set, true, nil
		}
	}
	return 0, false, nil
}

// USDCBalance returns owner's USDC.e balance in whole units.
func (c *CTF) USDCBalance(ctx context.Context, owner common.Address) (float64, error) {
	raw, err := c.callUint(ctx, c.usdc, erc20ABI, "balanceOf", owner)
	if err != nil {
		return 0, err
	}
	return FromMicro(raw), nil
}

func (c *CTF) callUint(ctx context.Context, to common.Address, a abi.ABI, method string, args ...any) (*big.Int, error) {
	out, err := c.call(ctx, to, a, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("onchain: %s: unexpected type %T", method, out[0])
	}
	return v, nil
}

func (c *CTF) call(ctx context.Context, to common.Address, a abi.ABI, method string, args ...any) ([]any, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("onchain: pack %s: %w", method, err)
	}
	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("onchain: call %s: %w", method, err)
	}
	out, err := a.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("onchain: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("onchain: %s: empty result", method)
	}
	return out, nil
}

// ParseConditionID decodes a 0x-prefixed 32-byte hex condition id.
func ParseConditionID(s string) ([32]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 64 {
		return [32]byte{}, fmt.Errorf("onchain: condition id: expected 64 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, fmt.Errorf("onchain: condition id: %w", err)
	}
	var out [32]byte
	copy(out[:], b)
	return out, nil
}

// ParseAssetID decodes a decimal CLOB token id.
func ParseAssetID(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("onchain: asset id %q is not a decimal integer", s)
	}
	return v, nil
}

// FromMicro converts a 6-decimal raw amount to whole units.
func FromMicro(raw *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6)).Float64()
	return f
}
