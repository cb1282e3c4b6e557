package onchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/bits"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wingertjp/polymarket/internal/domain"
)

// Backend is the chain access the Redeemer needs. *ethclient.Client
// satisfies it.
type Backend interface {
	Caller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// RedeemObserver is told about each confirmed redemption.
type RedeemObserver interface {
	Redeemed(conditionID, tx string, amount float64)
}

// RedeemerConfig holds transaction parameters.
type RedeemerConfig struct {
	ChainID        int64
	GasLimit       uint64
	GasMultiplier  float64
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration
}

func (c *RedeemerConfig) defaults() {
	if c.ChainID == 0 {
		c.ChainID = 137
	}
	if c.GasLimit == 0 {
		c.GasLimit = 200_000
	}
	if c.GasMultiplier < 1 {
		c.GasMultiplier = 1.2
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = 90 * time.Second
	}
	if c.ReceiptPoll <= 0 {
		c.ReceiptPoll = 3 * time.Second
	}
}

// Redemption is one redeemPositions transaction.
type Redemption struct {
	Position  domain.Position
	TxHash    string
	Confirmed bool
	Err       error
}

// RedeemResult summarizes one pass.
type RedeemResult struct {
	Redemptions []Redemption
	Before      float64
	After       float64
}

// Gained is the USDC.e balance change over the pass.
func (r RedeemResult) Gained() float64 { return r.After - r.Before }

// Confirmed counts redemptions with a successful receipt.
func (r RedeemResult) Confirmed() int {
	n := 0
	for _, rd := range r.Redemptions {
		if rd.Confirmed {
			n++
		}
	}
	return n
}

// Redeemer finds resolved winning positions still held by the wallet and
// redeems them through the CTF.
type Redeemer struct {
	backend   Backend
	ctf       *CTF
	trades    TradeSource
	key       *ecdsa.PrivateKey
	owner     common.Address
	cfg       RedeemerConfig
	logger    *slog.Logger
	observers []RedeemObserver
}

// NewRedeemer creates a Redeemer signing with key.
func NewRedeemer(backend Backend, ctf *CTF, trades TradeSource, key *ecdsa.PrivateKey, cfg RedeemerConfig, logger *slog.Logger) *Redeemer {
	cfg.defaults()
	return &Redeemer{
		backend: backend,
		ctf:     ctf,
		trades:  trades,
		key:     key,
		owner:   crypto.PubkeyToAddress(key.PublicKey),
		cfg:     cfg,
		logger:  logger.With("component", "redeem"),
	}
}

// AddObserver registers o.
func (r *Redeemer) AddObserver(o RedeemObserver) { r.observers = append(r.observers, o) }

// Run redeems every interval until ctx is cancelled. Pass errors are logged.
func (r *Redeemer) Run(ctx context.Context, every time.Duration) error {
	r.logger.Info("redeem loop started", "poll_interval", every)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if _, err := r.RedeemPending(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("redeem pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Pending returns resolved winning positions with a non-zero balance and a
// known index set.
func (r *Redeemer) Pending(ctx context.Context) ([]domain.Position, error) {
	trades, err := r.trades.TradeRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("onchain: redeem trades: %w", err)
	}

	var out []domain.Position
	for _, t := range Candidates(trades) {
		log := r.logger.With("cid", shortID(t.Market), "outcome", t.Outcome)
		cid, err := ParseConditionID(t.Market)
		if err != nil {
			continue
		}
		asset, err := ParseAssetID(t.AssetID)
		if err != nil {
			continue
		}

		denom, err := r.ctf.PayoutDenominator(ctx, cid)
		if err != nil {
			log.Debug("payoutDenominator failed", "error", err)
			continue
		}
		if denom.Sign() == 0 {
			continue
		}
		balance, err := r.ctf.BalanceOf(ctx, r.owner, asset)
		if err != nil {
			log.Debug("balanceOf failed", "error", err)
			continue
		}
		if balance.Sign() == 0 {
			continue
		}
		set, ok, err := r.ctf.FindIndexSet(ctx, cid, asset)
		if err != nil {
			log.Warn("index set lookup failed", "error", err)
			continue
		}
		if !ok {
			log.Warn("index set not found", "asset_id", t.AssetID)
			continue
		}
		payout, err := r.ctf.PayoutNumerator(ctx, cid, int64(bits.TrailingZeros64(set)))
		if err != nil {
			log.Warn("payoutNumerators failed", "error", err)
			continue
		}
		if payout.Sign() == 0 {
			log.Debug("losing position, nothing to redeem")
			continue
		}

		p := domain.Position{
			ConditionID: t.Market,
			AssetID:     t.AssetID,
			Outcome:     t.Outcome,
			Balance:     FromMicro(balance),
			Status:      domain.PositionRedeemable,
			IndexSet:    set,
		}
		log.Info("redeemable", "balance", p.Balance, "index_set", set)
		out = append(out, p)
	}
	return out, nil
}

// RedeemPending runs one scan-and-redeem pass. Transactions are sent
// sequentially with consecutive nonces; a failed redemption does not stop
// the others.
func (r *Redeemer) RedeemPending(ctx context.Context) (RedeemResult, error) {
	r.logger.Info("scanning for redeemable positions", "wallet", r.owner.Hex())

	pending, err := r.Pending(ctx)
	if err != nil {
		return RedeemResult{}, err
	}
	if len(pending) == 0 {
		r.logger.Info("no redeemable positions")
		return RedeemResult{}, nil
	}

	var res RedeemResult
	if res.Before, err = r.ctf.USDCBalance(ctx, r.owner); err != nil {
		return res, err
	}
	nonce, err := r.backend.PendingNonceAt(ctx, r.owner)
	if err != nil {
		return res, fmt.Errorf("onchain: nonce: %w", err)
	}
	gasPrice, err := r.gasPrice(ctx)
	if err != nil {
		return res, err
	}

	for i, p := range pending {
		rd := r.redeem(ctx, p, nonce, gasPrice)
		if rd.TxHash != "" {
			nonce++
		}
		res.Redemptions = append(res.Redemptions, rd)

		log := r.logger.With("n", fmt.Sprintf("%d/%d", i+1, len(pending)), "outcome", p.Outcome, "tx", rd.TxHash)
		switch {
		case rd.Confirmed:
			log.Warn("position redeemed", "event", "REDEEMED", "amount", p.Balance)
			for _, o := range r.observers {
				o.Redeemed(p.ConditionID, rd.TxHash, p.Balance)
			}
		default:
			log.Error("redeem failed", "error", rd.Err)
		}
	}

	if res.After, err = r.ctf.USDCBalance(ctx, r.owner); err != nil {
		return res, err
	}
	if res.Gained() > 0 {
		r.logger.Warn("redemption complete", "event", "REDEEMED", "gained", res.Gained(), "balance", res.After)
	} else {
		r.logger.Info("redemption complete", "balance", res.After)
	}
	return res, nil
}

func (r *Redeemer) redeem(ctx context.Context, p domain.Position, nonce uint64, gasPrice *big.Int) Redemption {
	rd := Redemption{Position: p}

	cid, err := ParseConditionID(p.ConditionID)
	if err != nil {
		rd.Err = err
		return rd
	}
	data, err := ctfABI.Pack("redeemPositions", r.ctf.Collateral(), [32]byte{}, cid, []*big.Int{new(big.Int).SetUint64(p.IndexSet)})
	if err != nil {
		rd.Err = fmt.Errorf("onchain: pack redeemPositions: %w", err)
		return rd
	}

	to := r.ctf.Address()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      r.cfg.GasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(r.cfg.ChainID)), r.key)
	if err != nil {
		rd.Err = fmt.Errorf("onchain: sign redeem: %w", err)
		return rd
	}
	if err := r.backend.SendTransaction(ctx, signed); err != nil {
		rd.Err = fmt.Errorf("onchain: send redeem: %w", err)
		return rd
	}
	rd.TxHash = signed.Hash().Hex()
	r.logger.Info("redeem sent, waiting", "tx", rd.TxHash, "outcome", p.Outcome)

	receipt, err := r.waitReceipt(ctx, signed.Hash())
	if err != nil {
		rd.Err = err
		return rd
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		rd.Err = fmt.Errorf("onchain: redeem %s reverted", rd.TxHash)
		return rd
	}
	rd.Confirmed = true
	return rd
}

// gasPrice is the suggested price scaled by the configured multiplier.
func (r *Redeemer) gasPrice(ctx context.Context) (*big.Int, error) {
	suggested, err := r.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("onchain: gas price: %w", err)
	}
	scaled := new(big.Int).Mul(suggested, big.NewInt(int64(r.cfg.GasMultiplier*1000)))
	return scaled.Div(scaled, big.NewInt(1000)), nil
}

var errReceiptTimeout = errors.New("onchain: receipt timeout")

// waitReceipt polls until the receipt is available or ReceiptTimeout passes.
func (r *Redeemer) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReceiptTimeout)
	defer cancel()

	t := time.NewTicker(r.cfg.ReceiptPoll)
	defer t.Stop()
	for {
		if receipt, err := r.backend.TransactionReceipt(ctx, hash); err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", errReceiptTimeout, hash.Hex())
			}
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
