package domain

// PositionStatus classifies a conditional-token holding.
type PositionStatus string

const (
	PositionActive     PositionStatus = "active"
	PositionRedeemable PositionStatus = "redeemable"
	PositionLost       PositionStatus = "lost"
	PositionRedeemed   PositionStatus = "redeemed"
)

// Rank orders statuses for the wallet report.
func (s PositionStatus) Rank() int {
	switch s {
	case PositionRedeemable:
		return 0
	case PositionActive:
		return 1
	case PositionLost:
		return 2
	default:
		return 3
	}
}

// Position is one on-chain CTF holding discovered from trade history.
type Position struct {
	ConditionID string
	AssetID     string
	Outcome     string
	Balance     float64 // shares, 6-decimal units divided out
	Status      PositionStatus
	IndexSet    uint64
}
