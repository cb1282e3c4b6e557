package domain

import "time"

// Outcome names one side of a binary Up/Down market.
type Outcome string

const (
	OutcomeUp   Outcome = "Up"
	OutcomeDown Outcome = "Down"
)

// Opposite returns the complementary outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeUp {
		return OutcomeDown
	}
	return OutcomeUp
}

// Direction maps an outcome onto the signal direction that confirms it.
func (o Outcome) Direction() Direction {
	if o == OutcomeUp {
		return DirectionUp
	}
	return DirectionDown
}

// MarketWindow is one resolved fixed-duration settlement window. It is
// immutable once returned by discovery and superseded at rollover.
type MarketWindow struct {
	Slug        string    `json:"slug"`
	Title       string    `json:"title,omitempty"`
	ConditionID string    `json:"condition_id"`
	UpTokenID   string    `json:"up_token_id"`
	DownTokenID string    `json:"down_token_id"`
	TickSize    float64   `json:"tick_size,omitempty"`
	OpenAt      time.Time `json:"open_at"`
	CloseAt     time.Time `json:"close_at"`
}

// SecondsRemaining returns close_at - now in seconds, clamped at zero.
func (w MarketWindow) SecondsRemaining(now time.Time) float64 {
	rem := w.CloseAt.Sub(now).Seconds()
	if rem < 0 {
		return 0
	}
	return rem
}

// TokenID returns the token identifier for the given outcome.
func (w MarketWindow) TokenID(o Outcome) string {
	if o == OutcomeUp {
		return w.UpTokenID
	}
	return w.DownTokenID
}

// OutcomeOf maps a token identifier back onto its outcome.
func (w MarketWindow) OutcomeOf(tokenID string) (Outcome, bool) {
	switch tokenID {
	case w.UpTokenID:
		return OutcomeUp, true
	case w.DownTokenID:
		return OutcomeDown, true
	}
	return "", false
}

// Tokens returns both token identifiers, Up first.
func (w MarketWindow) Tokens() []string {
	return []string{w.UpTokenID, w.DownTokenID}
}
