package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// IntentRecord pairs an intent with the outcome the executor reported.
type IntentRecord struct {
	Intent  OrderIntent
	Outcome OrderOutcome
	DryRun  bool
}

// BetStore persists per-window bets and the intents they produced.
type BetStore interface {
	SaveBet(ctx context.Context, bet BetState) error
	RecordIntent(ctx context.Context, rec IntentRecord) error
	ListBets(ctx context.Context, opts ListOpts) ([]BetState, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
