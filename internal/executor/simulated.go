package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wingertjp/polymarket/internal/domain"
)

// Simulated stands in for Live in dry-run mode. It never touches the
// exchange; intents are kept per window until Settle reports the winner.
type Simulated struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string][]domain.OrderIntent
}

// Settlement is the hypothetical result of one simulated intent.
type Settlement struct {
	Intent domain.OrderIntent
	Won    bool
	// PnL assumes a fill at the intent's ask, or at the fallback price when
	// no ask was known.
	PnL float64
}

// NewSimulated creates a Simulated executor.
func NewSimulated(logger *slog.Logger) *Simulated {
	return &Simulated{
		logger:  logger.With(slog.String("component", "order")),
		pending: make(map[string][]domain.OrderIntent),
	}
}

// PlaceFOKBuy implements domain.OrderExecutor.
func (s *Simulated) PlaceFOKBuy(_ context.Context, intent domain.OrderIntent) domain.OrderOutcome {
	s.mu.Lock()
	s.pending[intent.WindowSlug] = append(s.pending[intent.WindowSlug], intent)
	s.mu.Unlock()

	s.logger.Warn("dry run order",
		slog.String("event", "SIMULATED"),
		slog.String("reason", string(intent.Reason)),
		slog.String("outcome", string(intent.Outcome)),
		slog.Float64("amount", intent.AmountUSDC),
		slog.Float64("ask", intent.Price),
		slog.Float64("remaining", intent.Remaining),
	)
	return domain.OrderOutcome{Status: domain.FillNotFilled, Simulated: true}
}

// Settle resolves every recorded intent for slug against winner. An empty
// winner means the result is unknown; the intents are dropped and logged
// without confirmation.
func (s *Simulated) Settle(slug string, winner domain.Outcome) []Settlement {
	s.mu.Lock()
	intents := s.pending[slug]
	delete(s.pending, slug)
	s.mu.Unlock()

	if winner == "" {
		for _, in := range intents {
			s.logger.Info("simulated result unknown",
				slog.String("slug", slug),
				slog.String("reason", string(in.Reason)),
				slog.String("outcome", string(in.Outcome)),
			)
		}
		return nil
	}

	out := make([]Settlement, 0, len(intents))
	for _, in := range intents {
		price := in.Price
		if price <= 0 || price >= 1 {
			price = 0.99
		}
		st := Settlement{Intent: in, Won: in.Outcome == winner}
		if st.Won {
			st.PnL = in.AmountUSDC/price - in.AmountUSDC
		} else {
			st.PnL = -in.AmountUSDC
		}
		event := "LOSS"
		if st.Won {
			event = "WIN"
		}
		s.logger.Warn("simulated settlement",
			slog.String("event", event),
			slog.String("slug", slug),
			slog.String("reason", string(in.Reason)),
			slog.String("outcome", string(in.Outcome)),
			slog.String("winner", string(winner)),
			slog.Float64("pnl", st.PnL),
		)
		out = append(out, st)
	}
	return out
}

// PostLimit implements domain.Quoter by logging the quote.
func (s *Simulated) PostLimit(_ context.Context, o domain.LimitOrder) (string, error) {
	id := "sim-" + uuid.NewString()
	s.logger.Info("dry run quote",
		slog.String("token", o.TokenID),
		slog.String("side", string(o.Side)),
		slog.Float64("price", o.Price),
		slog.Float64("size", o.Size),
		slog.String("order_id", id),
	)
	return id, nil
}

// CancelAll implements domain.Quoter.
func (s *Simulated) CancelAll(_ context.Context) error {
	s.logger.Debug("dry run cancel all", slog.Time("at", time.Now()))
	return nil
}
