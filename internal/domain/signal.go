package domain

import "time"

// Direction is the discrete output of signal fusion.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
	DirectionNone Direction = "NONE"
)

// DirectionRule selects how OBI and velocity combine into a Direction.
type DirectionRule string

const (
	RuleOBIOnly        DirectionRule = "obi_only"
	RuleOBIAndVelocity DirectionRule = "obi_and_velocity"
)

// SignalSnapshot is the immutable state published by the fusion worker.
// Raw inputs are exposed so direction policy can be tuned externally.
type SignalSnapshot struct {
	OBI           float64   `json:"obi"`
	FilteredPrice float64   `json:"filtered_price"`
	Velocity      float64   `json:"velocity"` // price units per second
	CandleOpen    float64   `json:"candle_open"`
	Direction     Direction `json:"direction"`
	Stale         bool      `json:"stale"`
	Trades        uint64    `json:"trades"`
	Depths        uint64    `json:"depths"`
	LastEventAt   time.Time `json:"last_event_at"`
}

// Usable reports whether the snapshot can be trusted for a directional
// decision.
func (s SignalSnapshot) Usable() bool {
	return !s.Stale && !s.LastEventAt.IsZero()
}

// DepthUpdate is a top-N depth snapshot from the secondary venue.
type DepthUpdate struct {
	Bids []PriceLevel
	Asks []PriceLevel
	At   time.Time
}

// TradePrint is one aggregated trade from the secondary venue.
type TradePrint struct {
	Price    float64
	Quantity float64
	Time     time.Time
}

// BotStatus is a summary of the bot's current operational state.
type BotStatus struct {
	Mode          string         `json:"mode"`
	DryRun        bool           `json:"dry_run"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Window        *MarketWindow  `json:"window,omitempty"`
	Remaining     float64        `json:"remaining"`
	Bet           *BetState      `json:"bet,omitempty"`
	Signal        SignalSnapshot `json:"signal"`
}
