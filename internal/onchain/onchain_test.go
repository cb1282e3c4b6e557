package onchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingertjp/polymarket/internal/domain"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	ctfAddr  = common.HexToAddress("0x4D97DCd97eC945f40CF65F87097ACe5EA0476045")
	usdcAddr = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func cidHex(b byte) string { return fmt.Sprintf("0x%064x", b) }

func cidBytes(b byte) [32]byte {
	var c [32]byte
	c[31] = b
	return c
}

// collectionFor is the fake chain's getCollectionId.
func collectionFor(cid [32]byte, set uint64) [32]byte {
	c := cid
	c[0] = 0xC0
	c[1] = byte(set)
	return c
}

func assetFor(cid byte, set uint64) string {
	coll := collectionFor(cidBytes(cid), set)
	return new(big.Int).SetBytes(coll[:]).String()
}

type fakeChain struct {
	mu       sync.Mutex
	denom    map[[32]byte]int64
	winner   map[[32]byte]int64 // outcome index paid 1
	balances map[string]*big.Int
	usdc     *big.Int
	nonce    uint64
	gasPrice *big.Int
	revert   bool
	sent     []*types.Transaction
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		denom:    map[[32]byte]int64{},
		winner:   map[[32]byte]int64{},
		balances: map[string]*big.Int{},
		usdc:     big.NewInt(10_000_000),
		nonce:    7,
		gasPrice: big.NewInt(100_000_000_000),
	}
}

func (f *fakeChain) resolve(cid byte, winner int64) {
	f.denom[cidBytes(cid)] = 1
	f.winner[cidBytes(cid)] = winner
}

func (f *fakeChain) hold(asset string, raw int64) { f.balances[asset] = big.NewInt(raw) }

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if *msg.To == usdcAddr {
		m, err := erc20ABI.MethodById(msg.Data[:4])
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(new(big.Int).Set(f.usdc))
	}

	m, err := ctfABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := m.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case "payoutDenominator":
		return m.Outputs.Pack(big.NewInt(f.denom[args[0].([32]byte)]))
	case "payoutNumerators":
		cid := args[0].([32]byte)
		idx := args[1].(*big.Int).Int64()
		num := int64(0)
		if f.denom[cid] > 0 && f.winner[cid] == idx {
			num = 1
		}
		return m.Outputs.Pack(big.NewInt(num))
	case "balanceOf":
		bal, ok := f.balances[args[1].(*big.Int).String()]
		if !ok {
			bal = new(big.Int)
		}
		return m.Outputs.Pack(new(big.Int).Set(bal))
	case "getCollectionId":
		return m.Outputs.Pack(collectionFor(args[1].([32]byte), args[2].(*big.Int).Uint64()))
	case "getPositionId":
		coll := args[1].([32]byte)
		return m.Outputs.Pack(new(big.Int).SetBytes(coll[:]))
	}
	return nil, fmt.Errorf("unexpected method %s", m.Name)
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := ctfABI.MethodById(tx.Data()[:4])
	if err != nil {
		return err
	}
	args, err := m.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return err
	}
	cid := args[2].([32]byte)
	sets := args[3].([]*big.Int)
	coll := collectionFor(cid, sets[0].Uint64())
	asset := new(big.Int).SetBytes(coll[:]).String()
	if !f.revert {
		if bal, ok := f.balances[asset]; ok {
			f.usdc.Add(f.usdc, bal)
			f.balances[asset] = new(big.Int)
		}
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sent {
		if tx.Hash() == hash {
			status := types.ReceiptStatusSuccessful
			if f.revert {
				status = types.ReceiptStatusFailed
			}
			return &types.Receipt{Status: status, TxHash: hash}, nil
		}
	}
	return nil, ethereum.NotFound
}

type staticTrades []domain.TradeRecord

func (s staticTrades) TradeRecords(context.Context) ([]domain.TradeRecord, error) { return s, nil }

type redeemedRecorder struct {
	calls []string
}

func (r *redeemedRecorder) Redeemed(cid, tx string, amount float64) {
	r.calls = append(r.calls, fmt.Sprintf("%s %.4f", cid, amount))
}

func TestCandidatesDedup(t *testing.T) {
	got := Candidates([]domain.TradeRecord{
		{Market: "a", AssetID: "1"},
		{Market: "a", AssetID: "1"},
		{Market: "a", AssetID: "2"},
		{Market: "", AssetID: "3"},
		{Market: "b", AssetID: ""},
		{Market: "b", AssetID: "1"},
	})
	require.Len(t, got, 3)
	assert.Equal(t, "2", got[1].AssetID)
	assert.Equal(t, "b", got[2].Market)
}

func TestClassify(t *testing.T) {
	one, zero := big.NewInt(1), big.NewInt(0)
	tests := []struct {
		name    string
		outcome string
		balance *big.Int
		denom   *big.Int
		up, dn  *big.Int
		want    domain.PositionStatus
	}{
		{"unresolved", "Up", one, zero, nil, nil, domain.PositionActive},
		{"held winner", "Up", one, one, one, zero, domain.PositionRedeemable},
		{"held loser", "Down", one, one, one, zero, domain.PositionLost},
		{"redeemed winner", "Down", zero, one, zero, one, domain.PositionRedeemed},
		{"empty loser", "Up", zero, one, zero, one, domain.PositionLost},
		{"payout unknown", "Up", one, one, nil, nil, domain.PositionLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.outcome, tt.balance, tt.denom, tt.up, tt.dn))
		})
	}
}

func TestFindIndexSet(t *testing.T) {
	ctf := NewCTF(newFakeChain(), ctfAddr.Hex(), usdcAddr.Hex())
	asset, err := ParseAssetID(assetFor(9, 2))
	require.NoError(t, err)

	set, ok, err := ctf.FindIndexSet(context.Background(), cidBytes(9), asset)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(2), set)

	_, ok, err = ctf.FindIndexSet(context.Background(), cidBytes(9), big.NewInt(12345))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseConditionID(t *testing.T) {
	got, err := ParseConditionID(cidHex(5))
	require.NoError(t, err)
	assert.Equal(t, cidBytes(5), got)

	_, err = ParseConditionID("0x1234")
	assert.Error(t, err)
}

func newRedeemer(t *testing.T, chain *fakeChain, trades staticTrades) *Redeemer {
	t.Helper()
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	ctf := NewCTF(chain, ctfAddr.Hex(), usdcAddr.Hex())
	return NewRedeemer(chain, ctf, trades, key, RedeemerConfig{
		ReceiptTimeout: time.Second,
		ReceiptPoll:    5 * time.Millisecond,
	}, quietLogger())
}

func TestRedeemPending(t *testing.T) {
	chain := newFakeChain()
	chain.resolve(1, 0) // Up won
	chain.hold(assetFor(1, 1), 2_500_000)
	chain.hold(assetFor(2, 1), 1_000_000) // unresolved
	chain.resolve(3, 1)                   // Down won, we hold Up
	chain.hold(assetFor(3, 1), 1_000_000)
	chain.resolve(4, 0) // already redeemed

	trades := staticTrades{
		{Market: cidHex(1), AssetID: assetFor(1, 1), Outcome: "Up"},
		{Market: cidHex(1), AssetID: assetFor(1, 1), Outcome: "Up"},
		{Market: cidHex(2), AssetID: assetFor(2, 1), Outcome: "Up"},
		{Market: cidHex(3), AssetID: assetFor(3, 1), Outcome: "Up"},
		{Market: cidHex(4), AssetID: assetFor(4, 1), Outcome: "Up"},
	}
	r := newRedeemer(t, chain, trades)
	rec := &redeemedRecorder{}
	r.AddObserver(rec)

	res, err := r.RedeemPending(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Redemptions, 1)
	assert.Equal(t, 1, res.Confirmed())
	assert.InDelta(t, 10.0, res.Before, 1e-9)
	assert.InDelta(t, 12.5, res.After, 1e-9)
	assert.InDelta(t, 2.5, res.Gained(), 1e-9)
	assert.Equal(t, []string{cidHex(1) + " 2.5000"}, rec.calls)

	require.Len(t, chain.sent, 1)
	tx := chain.sent[0]
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(200_000), tx.Gas())
	assert.Equal(t, big.NewInt(120_000_000_000), tx.GasPrice())
	assert.Equal(t, ctfAddr, *tx.To())
	assert.Equal(t, big.NewInt(137), tx.ChainId())

	from, err := types.Sender(types.NewEIP155Signer(big.NewInt(137)), tx)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), from)

	args, err := ctfABI.Methods["redeemPositions"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, usdcAddr, args[0].(common.Address))
	assert.Equal(t, [32]byte{}, args[1].([32]byte))
	assert.Equal(t, cidBytes(1), args[2].([32]byte))
	assert.Equal(t, []*big.Int{big.NewInt(1)}, args[3].([]*big.Int))
}

func TestRedeemConsecutiveNonces(t *testing.T) {
	chain := newFakeChain()
	chain.resolve(1, 0)
	chain.hold(assetFor(1, 1), 1_000_000)
	chain.resolve(2, 1)
	chain.hold(assetFor(2, 2), 3_000_000)

	r := newRedeemer(t, chain, staticTrades{
		{Market: cidHex(1), AssetID: assetFor(1, 1), Outcome: "Up"},
		{Market: cidHex(2), AssetID: assetFor(2, 2), Outcome: "Down"},
	})

	res, err := r.RedeemPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Confirmed())
	require.Len(t, chain.sent, 2)
	assert.Equal(t, uint64(7), chain.sent[0].Nonce())
	assert.Equal(t, uint64(8), chain.sent[1].Nonce())
	assert.InDelta(t, 4.0, res.Gained(), 1e-9)
}

func TestRedeemRevertIsReported(t *testing.T) {
	chain := newFakeChain()
	chain.revert = true
	chain.resolve(1, 0)
	chain.hold(assetFor(1, 1), 1_000_000)

	r := newRedeemer(t, chain, staticTrades{{Market: cidHex(1), AssetID: assetFor(1, 1), Outcome: "Up"}})
	rec := &redeemedRecorder{}
	r.AddObserver(rec)

	res, err := r.RedeemPending(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Redemptions, 1)
	assert.False(t, res.Redemptions[0].Confirmed)
	assert.Error(t, res.Redemptions[0].Err)
	assert.Empty(t, rec.calls)
}

func TestRedeemNothingPending(t *testing.T) {
	chain := newFakeChain()
	r := newRedeemer(t, chain, nil)

	res, err := r.RedeemPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Redemptions)
	assert.Empty(t, chain.sent)
}

type failingTrades struct{}

func (failingTrades) TradeRecords(context.Context) ([]domain.TradeRecord, error) {
	return nil, errors.New("clob down")
}

func TestRedeemTradeFailure(t *testing.T) {
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	chain := newFakeChain()
	r := NewRedeemer(chain, NewCTF(chain, ctfAddr.Hex(), usdcAddr.Hex()), failingTrades{}, key, RedeemerConfig{}, quietLogger())

	_, err = r.RedeemPending(context.Background())
	assert.ErrorContains(t, err, "clob down")
}

func TestWalletReport(t *testing.T) {
	chain := newFakeChain()
	chain.resolve(1, 0)
	chain.hold(assetFor(1, 1), 2_500_000) // redeemable
	chain.hold(assetFor(2, 1), 1_000_000) // active
	chain.resolve(3, 1)
	chain.hold(assetFor(3, 1), 1_000_000) // lost
	chain.resolve(4, 0)                   // redeemed, zero balance

	trades := staticTrades{
		{Market: cidHex(4), AssetID: assetFor(4, 1), Outcome: "Up"},
		{Market: cidHex(3), AssetID: assetFor(3, 1), Outcome: "Up"},
		{Market: cidHex(2), AssetID: assetFor(2, 1), Outcome: "Up"},
		{Market: cidHex(1), AssetID: assetFor(1, 1), Outcome: "Up"},
	}
	owner := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	w := NewWallet(NewCTF(chain, ctfAddr.Hex(), usdcAddr.Hex()), trades, owner, quietLogger())

	report, err := w.Report(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Positions, 4)
	var statuses []domain.PositionStatus
	for _, p := range report.Positions {
		statuses = append(statuses, p.Status)
	}
	assert.Equal(t, []domain.PositionStatus{
		domain.PositionRedeemable, domain.PositionActive, domain.PositionLost, domain.PositionRedeemed,
	}, statuses)
	assert.InDelta(t, 2.5, report.Positions[0].Balance, 1e-9)
	assert.InDelta(t, 10.0, report.USDC, 1e-9)

	var buf bytes.Buffer
	require.NoError(t, report.Render(&buf))
	out := buf.String()
	assert.Contains(t, out, owner.Hex())
	assert.Contains(t, out, "2.5000")
	assert.Contains(t, out, "4 position(s)  (1 redeemable  1 active  1 lost  1 redeemed)")
	assert.Contains(t, out, "USDC.e balance: 10.0000")
}

func TestWalletRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WalletReport{}.Render(&buf))
	assert.Contains(t, buf.String(), "no open positions")
}
