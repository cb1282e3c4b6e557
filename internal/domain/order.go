package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
)

// IntentReason tags why the decision engine produced an order.
type IntentReason string

const (
	ReasonSnipe  IntentReason = "SNIPE"
	ReasonRescue IntentReason = "RESCUE"
)

// OrderIntent is an ephemeral request from the decision engine. Price is the
// token's best ask at decision time, zero when the ask side is empty; the
// live executor uses it as the marketable limit. TickSize is the market's
// price increment, zero when discovery did not report one.
type OrderIntent struct {
	ID         string
	WindowSlug string
	TokenID    string
	Outcome    Outcome
	Side       OrderSide
	Type       OrderType
	Price      float64
	TickSize   float64
	AmountUSDC float64
	Reason     IntentReason
	Remaining  float64
	CreatedAt  time.Time
}

// FillStatus is the terminal result of a FOK order.
type FillStatus string

const (
	FillFilled    FillStatus = "FILLED"
	FillNotFilled FillStatus = "NOT_FILLED"
	FillFailed    FillStatus = "FAILED"
)

// OrderOutcome is what an executor reports for one intent. Err carries the
// cause for FAILED and for timed-out NOT_FILLED results.
type OrderOutcome struct {
	Status    FillStatus
	OrderID   string
	Simulated bool
	Err       error
	Latency   time.Duration
}

// Reason returns a printable cause, empty when the order filled cleanly.
func (o OrderOutcome) Reason() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	if o.Simulated {
		return "simulated"
	}
	return ""
}

// LimitOrder is a resting GTC order posted by the market-maker.
type LimitOrder struct {
	TokenID string
	Side    OrderSide
	Price   float64
	Size    float64
}
