package signal

import "github.com/wingertjp/polymarket/internal/domain"

// OBI returns (bid volume - ask volume) / (bid volume + ask volume) over at
// most n levels per side. It is zero when both sides are empty.
func OBI(bids, asks []domain.PriceLevel, n int) float64 {
	bidVol := depth(bids, n)
	askVol := depth(asks, n)
	total := bidVol + askVol
	if total <= 0 {
		return 0
	}
	return (bidVol - askVol) / total
}

func depth(levels []domain.PriceLevel, n int) float64 {
	if n > 0 && len(levels) > n {
		levels = levels[:n]
	}
	var sum float64
	for _, l := range levels {
		if l.Size > 0 {
			sum += l.Size
		}
	}
	return sum
}

// Decide maps OBI and velocity onto a direction under the given rule.
func Decide(rule domain.DirectionRule, threshold, obi, velocity float64) domain.Direction {
	switch {
	case obi > threshold:
		if rule == domain.RuleOBIAndVelocity && velocity < 0 {
			return domain.DirectionNone
		}
		return domain.DirectionUp
	case obi < -threshold:
		if rule == domain.RuleOBIAndVelocity && velocity > 0 {
			return domain.DirectionNone
		}
		return domain.DirectionDown
	}
	return domain.DirectionNone
}
