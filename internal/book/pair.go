package book

import (
	"github.com/wingertjp/polymarket/internal/domain"
)

// MidSource tags how PairMid arrived at its estimate.
type MidSource string

const (
	MidFull      MidSource = "full"
	MidCrossFull MidSource = "cross_full"
	MidCrossBid  MidSource = "cross_bid"
	MidCrossAsk  MidSource = "cross_ask"
	MidBidOnly   MidSource = "bid_only"
	MidAskOnly   MidSource = "ask_only"
)

// PairMid estimates a token's midpoint, falling back on the complementary
// token's book when one of its own sides is empty (Up + Down prices sum to
// one).
func PairMid(own, comp domain.BookSnapshot) (float64, MidSource, bool) {
	bid, hasBid := own.BestBid()
	ask, hasAsk := own.BestAsk()
	if hasBid && hasAsk {
		return (bid + ask) / 2, MidFull, true
	}

	cbid, hasCBid := comp.BestBid()
	cask, hasCAsk := comp.BestAsk()

	switch {
	case hasBid:
		if hasCBid && hasCAsk {
			return (bid + (1 - (cbid+cask)/2)) / 2, MidCrossFull, true
		}
		if hasCBid {
			return (bid + (1 - cbid)) / 2, MidCrossBid, true
		}
		return bid, MidBidOnly, true
	case hasAsk:
		if hasCBid && hasCAsk {
			return ((1 - (cbid+cask)/2) + ask) / 2, MidCrossFull, true
		}
		if hasCAsk {
			return ((1 - cask) + ask) / 2, MidCrossAsk, true
		}
		return ask, MidAskOnly, true
	}
	return 0, "", false
}

// Pair is the arena of both token books for one window. It is created at
// rollover and discarded as a whole when the next window is live.
type Pair struct {
	window  domain.MarketWindow
	up      *Store
	down    *Store
	changed chan struct{}
}

// NewPair builds empty books for both of the window's tokens.
func NewPair(w domain.MarketWindow) *Pair {
	return &Pair{
		window:  w,
		up:      NewStore(w.UpTokenID),
		down:    NewStore(w.DownTokenID),
		changed: make(chan struct{}, 1),
	}
}

// Window returns the window the pair was built for.
func (p *Pair) Window() domain.MarketWindow { return p.window }

// Store returns the mutable book for a token, or nil for a foreign token.
// Only the feed reader may call it.
func (p *Pair) Store(tokenID string) *Store {
	switch tokenID {
	case p.up.tokenID:
		return p.up
	case p.down.tokenID:
		return p.down
	}
	return nil
}

// Stores returns both books, Up first.
func (p *Pair) Stores() []*Store { return []*Store{p.up, p.down} }

// Book returns the latest published snapshot for an outcome.
func (p *Pair) Book(o domain.Outcome) domain.BookSnapshot {
	if o == domain.OutcomeUp {
		return p.up.Latest()
	}
	return p.down.Latest()
}

// Mid returns PairMid for an outcome using both latest snapshots.
func (p *Pair) Mid(o domain.Outcome) (float64, MidSource, bool) {
	return PairMid(p.Book(o), p.Book(o.Opposite()))
}

// Notify signals readers that at least one book changed. It never blocks.
func (p *Pair) Notify() {
	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// Changed returns the coalescing change-notification channel.
func (p *Pair) Changed() <-chan struct{} { return p.changed }
