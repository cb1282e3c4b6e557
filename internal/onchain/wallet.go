package onchain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"

	"github.com/wingertjp/polymarket/internal/domain"
)

// WalletReport lists every discovered holding and the collateral balance.
type WalletReport struct {
	Address   common.Address
	Positions []domain.Position // sorted by status rank
	USDC      float64
}

// Count returns how many positions have status s.
func (r WalletReport) Count(s domain.PositionStatus) int {
	n := 0
	for _, p := range r.Positions {
		if p.Status == s {
			n++
		}
	}
	return n
}

// Render writes the report: a table of holdings with a non-zero balance
// followed by the status summary and the USDC.e balance.
func (r WalletReport) Render(w io.Writer) error {
	fmt.Fprintf(w, "\nwallet: %s\n\n", r.Address.Hex())

	visible := 0
	table := tablewriter.NewWriter(w)
	table.Header("cid", "outcome", "balance", "status")
	for _, p := range r.Positions {
		if p.Balance <= 0 {
			continue
		}
		visible++
		if err := table.Append(shortID(p.ConditionID), p.Outcome, fmt.Sprintf("%.4f", p.Balance), string(p.Status)); err != nil {
			return fmt.Errorf("onchain: render wallet: %w", err)
		}
	}
	if visible == 0 {
		fmt.Fprintln(w, "no open positions")
	} else if err := table.Render(); err != nil {
		return fmt.Errorf("onchain: render wallet: %w", err)
	}

	fmt.Fprintf(w, "\n  %d position(s)  (%d redeemable  %d active  %d lost  %d redeemed)\n",
		len(r.Positions),
		r.Count(domain.PositionRedeemable),
		r.Count(domain.PositionActive),
		r.Count(domain.PositionLost),
		r.Count(domain.PositionRedeemed),
	)
	fmt.Fprintf(w, "  USDC.e balance: %.4f\n\n", r.USDC)
	return nil
}

func shortID(cid string) string {
	const width = 13
	if len(cid) <= width {
		return cid
	}
	return cid[:width] + "…"
}

// Wallet builds WalletReports for one address.
type Wallet struct {
	ctf    *CTF
	trades TradeSource
	owner  common.Address
	logger *slog.Logger
}

// NewWallet creates a Wallet for owner.
func NewWallet(ctf *CTF, trades TradeSource, owner common.Address, logger *slog.Logger) *Wallet {
	return &Wallet{ctf: ctf, trades: trades, owner: owner, logger: logger.With("component", "redeem")}
}

// Report reads every traded position on-chain. A failed balance read skips
// the position; a failed payout read leaves it unresolved.
func (w *Wallet) Report(ctx context.Context) (WalletReport, error) {
	trades, err := w.trades.TradeRecords(ctx)
	if err != nil {
		return WalletReport{}, fmt.Errorf("onchain: wallet trades: %w", err)
	}

	report := WalletReport{Address: w.owner}
	for _, t := range Candidates(trades) {
		p, ok := w.position(ctx, t)
		if ok {
			report.Positions = append(report.Positions, p)
		}
	}
	sort.SliceStable(report.Positions, func(i, j int) bool {
		return report.Positions[i].Status.Rank() < report.Positions[j].Status.Rank()
	})

	report.USDC, err = w.ctf.USDCBalance(ctx, w.owner)
	if err != nil {
		return report, err
	}
	return report, nil
}

func (w *Wallet) position(ctx context.Context, t domain.TradeRecord) (domain.Position, bool) {
	log := w.logger.With("cid", shortID(t.Market), "outcome", t.Outcome)

	cid, err := ParseConditionID(t.Market)
	if err != nil {
		log.Warn("skipping trade", "error", err)
		return domain.Position{}, false
	}
	asset, err := ParseAssetID(t.AssetID)
	if err != nil {
		log.Warn("skipping trade", "error", err)
		return domain.Position{}, false
	}

	balance, err := w.ctf.BalanceOf(ctx, w.owner, asset)
	if err != nil {
		log.Warn("balanceOf failed", "error", err)
		return domain.Position{}, false
	}
	denom, err := w.ctf.PayoutDenominator(ctx, cid)
	if err != nil {
		log.Warn("payoutDenominator failed", "error", err)
		denom = new(big.Int)
	}

	var upNum, downNum *big.Int
	if denom.Sign() > 0 {
		upNum, err = w.ctf.PayoutNumerator(ctx, cid, 0)
		if err == nil {
			downNum, err = w.ctf.PayoutNumerator(ctx, cid, 1)
		}
		if err != nil {
			log.Warn("payoutNumerators failed", "error", err)
			upNum, downNum = nil, nil
		}
	}

	return domain.Position{
		ConditionID: t.Market,
		AssetID:     t.AssetID,
		Outcome:     t.Outcome,
		Balance:     FromMicro(balance),
		Status:      Classify(t.Outcome, balance, denom, upNum, downNum),
	}, true
}
