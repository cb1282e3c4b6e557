package domain

import "time"

// TradeRecord is one fill from the CLOB trade history. Market is the
// condition id of the window the asset belongs to.
type TradeRecord struct {
	ID        string
	Market    string
	AssetID   string
	Outcome   string
	Side      string
	Price     float64
	Size      float64
	MatchTime time.Time
}
