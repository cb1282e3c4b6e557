package domain

import "time"

// Phase is the per-window decision state.
type Phase string

const (
	PhaseWaiting    Phase = "WAITING"
	PhaseBetOpen    Phase = "BET_OPEN"
	PhaseRescueOpen Phase = "RESCUE_OPEN"
	PhaseSettled    Phase = "SETTLED"
)

// BetState is the decision state for exactly one window.
type BetState struct {
	WindowSlug   string     `json:"window_slug"`
	Phase        Phase      `json:"phase"`
	Side         Outcome    `json:"side,omitempty"`
	EntryPrice   float64    `json:"entry_price,omitempty"`
	Size         float64    `json:"size,omitempty"`
	RescueFired  bool       `json:"rescue_fired"`
	RescuePrice  float64    `json:"rescue_price,omitempty"`
	OpenedAt     time.Time  `json:"opened_at,omitempty"`
	SettledAt    time.Time  `json:"settled_at,omitempty"`
	SnipeResult  FillStatus `json:"snipe_result,omitempty"`
	RescueResult FillStatus `json:"rescue_result,omitempty"`
}
