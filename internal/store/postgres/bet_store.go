package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wingertjp/polymarket/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL. Bets are keyed by
// window slug; intents by their id.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// SaveBet upserts the bet for its window.
func (s *BetStore) SaveBet(ctx context.Context, b domain.BetState) error {
	const query = `
		INSERT INTO bets (
			window_slug, phase, side, entry_price, size, rescue_fired,
			rescue_price, snipe_result, rescue_result, opened_at, settled_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (window_slug) DO UPDATE SET
			phase = EXCLUDED.phase,
			side = EXCLUDED.side,
			entry_price = EXCLUDED.entry_price,
			size = EXCLUDED.size,
			rescue_fired = EXCLUDED.rescue_fired,
			rescue_price = EXCLUDED.rescue_price,
			snipe_result = EXCLUDED.snipe_result,
			rescue_result = EXCLUDED.rescue_result,
			opened_at = EXCLUDED.opened_at,
			settled_at = EXCLUDED.settled_at,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		b.WindowSlug, string(b.Phase), string(b.Side), b.EntryPrice, b.Size, b.RescueFired,
		b.RescuePrice, string(b.SnipeResult), string(b.RescueResult),
		nullTime(b.OpenedAt), nullTime(b.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: save bet %s: %w", b.WindowSlug, err)
	}
	return nil
}

// RecordIntent inserts an executed intent. Re-recording the same id is a
// no-op.
func (s *BetStore) RecordIntent(ctx context.Context, rec domain.IntentRecord) error {
	const query = `
		INSERT INTO intents (
			id, window_slug, reason, outcome, token_id, price, amount_usdc,
			remaining, status, order_id, cause, dry_run, latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`

	in, out := rec.Intent, rec.Outcome
	_, err := s.pool.Exec(ctx, query,
		in.ID, in.WindowSlug, string(in.Reason), string(in.Outcome), in.TokenID, in.Price, in.AmountUSDC,
		in.Remaining, string(out.Status), out.OrderID, out.Reason(), rec.DryRun, out.Latency.Milliseconds(), in.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record intent %s: %w", in.ID, err)
	}
	return nil
}

// ListBets returns bets, most recently updated first.
func (s *BetStore) ListBets(ctx context.Context, opts domain.ListOpts) ([]domain.BetState, error) {
	query, args := listQuery(`
		SELECT window_slug, phase, side, entry_price, size, rescue_fired,
			rescue_price, snipe_result, rescue_result, opened_at, settled_at
		FROM bets WHERE 1=1`, "updated_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.BetState
	for rows.Next() {
		var (
			b                          domain.BetState
			phase, side, snipe, rescue string
			openedAt, settledAt        *time.Time
		)
		if err := rows.Scan(&b.WindowSlug, &phase, &side, &b.EntryPrice, &b.Size, &b.RescueFired,
			&b.RescuePrice, &snipe, &rescue, &openedAt, &settledAt); err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		b.Phase = domain.Phase(phase)
		b.Side = domain.Outcome(side)
		b.SnipeResult = domain.FillStatus(snipe)
		b.RescueResult = domain.FillStatus(rescue)
		if openedAt != nil {
			b.OpenedAt = *openedAt
		}
		if settledAt != nil {
			b.SettledAt = *settledAt
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return bets, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ domain.BetStore = (*BetStore)(nil)
