package decision

import (
	"context"
	"log/slog"
	"time"

	"github.com/wingertjp/polymarket/internal/domain"
)

const defaultReactorTick = 250 * time.Millisecond

// Reactor drives one Engine from change notifications. Book and signal
// channels are coalescing; the ticker catches time-based conditions such as
// a snipe window opening with an unchanged book.
type Reactor struct {
	engine *Engine
	exec   domain.OrderExecutor
	books  <-chan struct{}
	signal <-chan struct{}
	tick   time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewReactor creates a Reactor. Either channel may be nil.
func NewReactor(engine *Engine, exec domain.OrderExecutor, books, signal <-chan struct{}, tick time.Duration, logger *slog.Logger) *Reactor {
	if tick <= 0 {
		tick = defaultReactorTick
	}
	return &Reactor{
		engine: engine,
		exec:   exec,
		books:  books,
		signal: signal,
		tick:   tick,
		logger: logger.With("component", "decision"),
		now:    time.Now,
	}
}

// Run evaluates the engine on every notification until ctx is cancelled or
// the window has settled.
func (r *Reactor) Run(ctx context.Context) error {
	t := time.NewTicker(r.tick)
	defer t.Stop()

	for {
		if r.Step(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.books:
		case <-r.signal:
		case <-t.C:
		}
	}
}

// Step performs a single evaluation and executes the resulting intent. It
// reports whether the engine has settled.
func (r *Reactor) Step(ctx context.Context) bool {
	intent, ok := r.engine.Evaluate(r.now())
	if ok {
		out := r.exec.PlaceFOKBuy(ctx, intent)
		state := r.engine.Record(intent, out)
		r.logger.Info("intent done",
			"reason", intent.Reason,
			"outcome", intent.Outcome,
			"status", out.Status,
			"order_id", out.OrderID,
			"latency", out.Latency,
			"cause", out.Reason(),
			"phase", state.Phase,
		)
	}
	return r.engine.State().Phase == domain.PhaseSettled
}
