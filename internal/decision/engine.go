// Package decision holds the per-window bet state machine and the reactor
// that drives it from book and signal change notifications.
package decision

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wingertjp/polymarket/internal/book"
	"github.com/wingertjp/polymarket/internal/domain"
)

// Books is the read side of a window's book pair.
type Books interface {
	Book(o domain.Outcome) domain.BookSnapshot
	Mid(o domain.Outcome) (float64, book.MidSource, bool)
}

// Config holds the decision thresholds.
type Config struct {
	SnipeAmount        float64
	SnipeProb          float64
	SnipeTime          time.Duration
	RescueMidThreshold float64
	RescueAmount       float64
	RescueTime         time.Duration
	// Order is the snipe evaluation order; the first qualifying outcome wins.
	Order []domain.Outcome
}

// Observer is told about executed intents and bet state changes. Calls are
// made from the reactor goroutine after the order call has returned, so
// implementations must bound their own I/O.
type Observer interface {
	IntentDone(rec domain.IntentRecord)
	StateChanged(bet domain.BetState)
}

// Engine is the state machine for exactly one window. Evaluate, Record and
// Expire are safe for concurrent use; transitions are serialized.
type Engine struct {
	cfg       Config
	window    domain.MarketWindow
	books     Books
	signal    domain.SignalSource
	logger    *slog.Logger
	observers []Observer

	mu    sync.Mutex
	state domain.BetState
}

// NewEngine creates an engine in WAITING for window w.
func NewEngine(cfg Config, w domain.MarketWindow, books Books, signal domain.SignalSource, logger *slog.Logger) *Engine {
	if len(cfg.Order) == 0 {
		cfg.Order = []domain.Outcome{domain.OutcomeUp, domain.OutcomeDown}
	}
	return &Engine{
		cfg:    cfg,
		window: w,
		books:  books,
		signal: signal,
		logger: logger.With("component", "decision", "slug", w.Slug),
		state:  domain.BetState{WindowSlug: w.Slug, Phase: domain.PhaseWaiting},
	}
}

// AddObserver registers o. It must be called before the reactor starts.
func (e *Engine) AddObserver(o Observer) { e.observers = append(e.observers, o) }

// Window returns the window this engine decides for.
func (e *Engine) Window() domain.MarketWindow { return e.window }

// State returns a copy of the current bet state.
func (e *Engine) State() domain.BetState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Evaluate runs one transition check against the freshest snapshots and
// returns the intent to execute, if any. The transition is committed before
// the intent is returned, so a given reason is produced at most once per
// window regardless of how many goroutines call Evaluate.
func (e *Engine) Evaluate(now time.Time) (domain.OrderIntent, bool) {
	if e.window.SecondsRemaining(now) <= 0 {
		e.Expire(now)
		return domain.OrderIntent{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	remaining := e.window.SecondsRemaining(now)
	switch e.state.Phase {
	case domain.PhaseWaiting:
		return e.trySnipe(now, remaining)
	case domain.PhaseBetOpen:
		return e.tryRescue(now, remaining)
	}
	return domain.OrderIntent{}, false
}

func (e *Engine) trySnipe(now time.Time, remaining float64) (domain.OrderIntent, bool) {
	if remaining >= e.cfg.SnipeTime.Seconds() {
		return domain.OrderIntent{}, false
	}
	for _, o := range e.cfg.Order {
		mid, src, ok := e.books.Mid(o)
		if !ok || mid < e.cfg.SnipeProb {
			continue
		}
		e.state.Phase = domain.PhaseBetOpen
		e.state.Side = o
		e.state.EntryPrice = mid
		e.state.Size = e.cfg.SnipeAmount
		e.state.OpenedAt = now

		intent := e.intent(o, domain.ReasonSnipe, e.cfg.SnipeAmount, remaining, now)
		e.logger.Warn("snipe fired",
			"event", "FIRE",
			"outcome", o,
			"mid", mid,
			"mid_source", src,
			"ask", intent.Price,
			"remaining", remaining,
			"amount", intent.AmountUSDC,
		)
		return intent, true
	}
	return domain.OrderIntent{}, false
}

func (e *Engine) tryRescue(now time.Time, remaining float64) (domain.OrderIntent, bool) {
	if e.state.RescueFired || remaining >= e.cfg.RescueTime.Seconds() {
		return domain.OrderIntent{}, false
	}
	mid, _, ok := e.books.Mid(e.state.Side)
	if !ok || mid >= e.cfg.RescueMidThreshold {
		return domain.OrderIntent{}, false
	}
	sig := e.signal.Snapshot()
	opposite := e.state.Side.Opposite()
	if !sig.Usable() {
		e.logger.Debug("rescue held", "entered_mid", mid, "error", domain.ErrSignalStale)
		return domain.OrderIntent{}, false
	}
	if sig.Direction != opposite.Direction() {
		return domain.OrderIntent{}, false
	}

	e.state.RescueFired = true
	e.state.Phase = domain.PhaseRescueOpen
	intent := e.intent(opposite, domain.ReasonRescue, e.cfg.RescueAmount, remaining, now)
	e.state.RescuePrice = intent.Price

	e.logger.Warn("rescue fired",
		"event", "RESCUE",
		"entered", e.state.Side,
		"outcome", opposite,
		"entered_mid", mid,
		"direction", sig.Direction,
		"obi", sig.OBI,
		"velocity", sig.Velocity,
		"remaining", remaining,
		"amount", intent.AmountUSDC,
	)
	return intent, true
}

func (e *Engine) intent(o domain.Outcome, reason domain.IntentReason, amount, remaining float64, now time.Time) domain.OrderIntent {
	ask, _ := e.books.Book(o).BestAsk()
	return domain.OrderIntent{
		ID:         uuid.NewString(),
		WindowSlug: e.window.Slug,
		TokenID:    e.window.TokenID(o),
		Outcome:    o,
		Side:       domain.OrderSideBuy,
		Type:       domain.OrderTypeFOK,
		Price:      ask,
		TickSize:   e.window.TickSize,
		AmountUSDC: amount,
		Reason:     reason,
		Remaining:  remaining,
		CreatedAt:  now,
	}
}

// Record stores the executor's outcome for intent and notifies observers.
// A failed or unfilled order does not roll the phase back.
func (e *Engine) Record(intent domain.OrderIntent, out domain.OrderOutcome) domain.BetState {
	e.mu.Lock()
	switch intent.Reason {
	case domain.ReasonSnipe:
		e.state.SnipeResult = out.Status
	case domain.ReasonRescue:
		e.state.RescueResult = out.Status
	}
	state := e.state
	e.mu.Unlock()

	rec := domain.IntentRecord{Intent: intent, Outcome: out, DryRun: out.Simulated}
	for _, o := range e.observers {
		o.IntentDone(rec)
		o.StateChanged(state)
	}
	return state
}

// Expire moves the engine to SETTLED. It is idempotent.
func (e *Engine) Expire(now time.Time) domain.BetState {
	e.mu.Lock()
	changed := e.settleLocked(now)
	state := e.state
	e.mu.Unlock()

	if changed {
		for _, o := range e.observers {
			o.StateChanged(state)
		}
	}
	return state
}

func (e *Engine) settleLocked(now time.Time) bool {
	if e.state.Phase == domain.PhaseSettled {
		return false
	}
	prev := e.state.Phase
	e.state.Phase = domain.PhaseSettled
	e.state.SettledAt = now
	e.logger.Info("window settled",
		"from", prev,
		"side", e.state.Side,
		"rescue_fired", e.state.RescueFired,
	)
	return true
}
