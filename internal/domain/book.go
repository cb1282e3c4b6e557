package domain

import "time"

// BookSide selects the bid or ask side of a token book.
type BookSide string

const (
	SideBid BookSide = "bids"
	SideAsk BookSide = "asks"
)

// SideFromWire maps the venue's BUY/SELL delta side onto a book side.
func SideFromWire(s string) (BookSide, bool) {
	switch s {
	case "BUY", "buy":
		return SideBid, true
	case "SELL", "sell":
		return SideAsk, true
	}
	return "", false
}

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookSnapshot is an immutable copy of one token's book. Bids are sorted
// descending and asks ascending.
type BookSnapshot struct {
	TokenID   string       `json:"token_id"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Available bool         `json:"available"`
	Seq       uint64       `json:"seq"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// BestBid returns the highest bid, or false when the bid side is empty or
// the book is unavailable.
func (s BookSnapshot) BestBid() (float64, bool) {
	if !s.Available || len(s.Bids) == 0 {
		return 0, false
	}
	return s.Bids[0].Price, true
}

// BestAsk returns the lowest ask, or false when the ask side is empty or the
// book is unavailable.
func (s BookSnapshot) BestAsk() (float64, bool) {
	if !s.Available || len(s.Asks) == 0 {
		return 0, false
	}
	return s.Asks[0].Price, true
}

// Midpoint is (best bid + best ask) / 2 when both sides are present.
func (s BookSnapshot) Midpoint() (float64, bool) {
	bid, okb := s.BestBid()
	ask, oka := s.BestAsk()
	if !okb || !oka {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Top returns at most n levels from each side.
func (s BookSnapshot) Top(n int) (bids, asks []PriceLevel) {
	bids, asks = s.Bids, s.Asks
	if len(bids) > n {
		bids = bids[:n]
	}
	if len(asks) > n {
		asks = asks[:n]
	}
	return bids, asks
}

// PriceChange is an incremental orderbook level update.
type PriceChange struct {
	AssetID string
	Side    BookSide
	Price   float64
	Size    float64 // 0 means remove level
}

// BookEvent is a decoded primary-venue message for one token.
type BookEvent struct {
	AssetID  string
	Snapshot bool
	Bids     []PriceLevel
	Asks     []PriceLevel
	Changes  []PriceChange
	At       time.Time
}
