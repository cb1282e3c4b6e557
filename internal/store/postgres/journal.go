package postgres

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wingertjp/polymarket/internal/domain"
)

const (
	journalTimeout = 2 * time.Second
	journalQueue   = 256
)

type journalJob func(ctx context.Context)

// Journal persists decision events. It satisfies decision.Observer and
// onchain.RedeemObserver. Callbacks only enqueue; Run performs the writes
// in order, each with its own short timeout, and failures are only logged.
// A full queue drops the write.
type Journal struct {
	bets    domain.BetStore
	audit   domain.AuditStore
	queue   chan journalJob
	logger  *slog.Logger
	dropped atomic.Uint64
}

// NewJournal creates a Journal. audit may be nil. Run must be started for
// anything to be written.
func NewJournal(bets domain.BetStore, audit domain.AuditStore, logger *slog.Logger) *Journal {
	return &Journal{
		bets:   bets,
		audit:  audit,
		queue:  make(chan journalJob, journalQueue),
		logger: logger.With("component", "app"),
	}
}

// Run writes queued events until ctx is cancelled, then flushes what is
// already queued within one journalTimeout.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			j.flush()
			return ctx.Err()
		case job := <-j.queue:
			j.do(ctx, job)
		}
	}
}

func (j *Journal) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	for {
		select {
		case job := <-j.queue:
			if ctx.Err() != nil {
				j.dropped.Add(1)
				continue
			}
			job(ctx)
		default:
			return
		}
	}
}

func (j *Journal) do(ctx context.Context, job journalJob) {
	cctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()
	job(cctx)
}

func (j *Journal) enqueue(job journalJob) {
	select {
	case j.queue <- job:
	default:
		j.dropped.Add(1)
		j.logger.Warn("journal queue full, write dropped")
	}
}

// Dropped returns how many writes were discarded.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// IntentDone records the intent and, when configured, an audit row.
func (j *Journal) IntentDone(rec domain.IntentRecord) {
	j.enqueue(func(ctx context.Context) {
		if err := j.bets.RecordIntent(ctx, rec); err != nil {
			j.logger.Warn("journal intent failed", "intent_id", rec.Intent.ID, "error", err)
		}
		j.Audit(ctx, "intent."+string(rec.Intent.Reason), map[string]any{
			"intent_id": rec.Intent.ID,
			"window":    rec.Intent.WindowSlug,
			"outcome":   rec.Intent.Outcome,
			"status":    rec.Outcome.Status,
			"dry_run":   rec.DryRun,
		})
	})
}

// StateChanged upserts the bet.
func (j *Journal) StateChanged(bet domain.BetState) {
	j.enqueue(func(ctx context.Context) {
		if err := j.bets.SaveBet(ctx, bet); err != nil {
			j.logger.Warn("journal bet failed", "window", bet.WindowSlug, "error", err)
		}
	})
}

// Audit appends an audit row when an audit store is configured. It writes
// synchronously.
func (j *Journal) Audit(ctx context.Context, event string, detail map[string]any) {
	if j.audit == nil {
		return
	}
	if err := j.audit.Log(ctx, event, detail); err != nil {
		j.logger.Warn("audit failed", "event", event, "error", err)
	}
}

// Redeemed queues an audit row for a confirmed redemption.
func (j *Journal) Redeemed(conditionID, tx string, amount float64) {
	j.enqueue(func(ctx context.Context) {
		j.Audit(ctx, "redeem", map[string]any{
			"condition_id": conditionID,
			"tx":           tx,
			"amount":       amount,
		})
	})
}
