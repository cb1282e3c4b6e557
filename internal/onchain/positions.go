package onchain

import (
	"context"
	"math/big"

	"github.com/wingertjp/polymarket/internal/domain"
)

// TradeSource lists the wallet's CLOB fills. Positions are discovered from
// trade history because the CTF has no enumeration of holdings.
type TradeSource interface {
	TradeRecords(ctx context.Context) ([]domain.TradeRecord, error)
}

// Candidates dedupes trades by (market, asset id), dropping rows missing
// either, and keeps first-seen order.
func Candidates(trades []domain.TradeRecord) []domain.TradeRecord {
	type key struct{ market, asset string }
	seen := make(map[key]bool, len(trades))
	out := make([]domain.TradeRecord, 0, len(trades))
	for _, t := range trades {
		k := key{t.Market, t.AssetID}
		if k.market == "" || k.asset == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}

// Classify derives a holding's status. A zero denominator means the
// condition is unresolved. The outcome won when its payout numerator equals
// the denominator; index 0 is Up and index 1 is Down.
func Classify(outcome string, balance, denom, upNum, downNum *big.Int) domain.PositionStatus {
	if denom == nil || denom.Sign() == 0 {
		return domain.PositionActive
	}
	won := false
	switch domain.Outcome(outcome) {
	case domain.OutcomeUp:
		won = upNum != nil && upNum.Cmp(denom) == 0
	case domain.OutcomeDown:
		won = downNum != nil && downNum.Cmp(denom) == 0
	}
	held := balance != nil && balance.Sign() > 0
	switch {
	case held && won:
		return domain.PositionRedeemable
	case won:
		return domain.PositionRedeemed
	default:
		return domain.PositionLost
	}
}
