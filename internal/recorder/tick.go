// Package recorder writes per-window book and price ticks to local files and
// optional export sinks.
package recorder

import (
	"math"
	"time"

	"github.com/wingertjp/polymarket/internal/book"
	"github.com/wingertjp/polymarket/internal/domain"
)

// Tick is one recorded sample. Nil fields were unavailable.
type Tick struct {
	TS        float64  `json:"ts"`
	Remaining float64  `json:"remaining"`
	UpMid     *float64 `json:"up_mid"`
	DownMid   *float64 `json:"down_mid"`
	BTC       *float64 `json:"btc"`
}

// NewTick samples both books and the secondary price at now. Mids use the
// complement-aware PairMid rounded to 4 decimals; the price is the filtered
// trade price rounded to 2 decimals.
func NewTick(now time.Time, w domain.MarketWindow, books domain.BookSource, sig domain.SignalSnapshot) Tick {
	up, down := books.Book(domain.OutcomeUp), books.Book(domain.OutcomeDown)
	t := Tick{
		TS:        float64(now.UnixNano()) / 1e9,
		Remaining: w.SecondsRemaining(now),
	}
	if mid, _, ok := book.PairMid(up, down); ok {
		t.UpMid = ptr(round(mid, 4))
	}
	if mid, _, ok := book.PairMid(down, up); ok {
		t.DownMid = ptr(round(mid, 4))
	}
	if sig.Trades > 0 && !sig.Stale && sig.FilteredPrice > 0 {
		t.BTC = ptr(round(sig.FilteredPrice, 2))
	}
	return t
}

// Fields returns the tick as a flat map with nil for missing values.
func (t Tick) Fields() map[string]any {
	return map[string]any{
		"ts":        t.TS,
		"remaining": t.Remaining,
		"up_mid":    deref(t.UpMid),
		"down_mid":  deref(t.DownMid),
		"btc":       deref(t.BTC),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func ptr(v float64) *float64 { return &v }

func deref(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
