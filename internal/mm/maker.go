// Package mm runs the fixed-spread market-making loop for one window.
package mm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wingertjp/polymarket/internal/domain"
	"github.com/wingertjp/polymarket/internal/platform/polymarket"
)

const (
	defaultRefresh = 30 * time.Second
	defaultTick    = 0.01
	cancelTimeout  = 5 * time.Second
)

// Config holds market-maker parameters.
type Config struct {
	Spread  float64
	Size    float64 // shares per side
	Refresh time.Duration
	Tick    float64
}

// QuotePair is the last bid/ask posted for one token.
type QuotePair struct {
	TokenID     string
	Mid         float64
	BidPrice    float64
	AskPrice    float64
	LastQuoteAt time.Time
}

// Quote returns the bid and ask around mid, quantized to tick and clamped
// into [tick, 1-tick].
func Quote(mid, spread, tick float64) (bid, ask float64) {
	half := spread / 2
	return polymarket.RoundToTick(mid-half, tick), polymarket.RoundToTick(mid+half, tick)
}

// Maker quotes both tokens of one window on a timer.
type Maker struct {
	cfg    Config
	window domain.MarketWindow
	books  domain.BookSource
	quoter domain.Quoter
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	quotes map[domain.Outcome]QuotePair
}

// NewMaker creates a Maker for window w.
func NewMaker(cfg Config, w domain.MarketWindow, books domain.BookSource, quoter domain.Quoter, logger *slog.Logger) *Maker {
	if cfg.Refresh <= 0 {
		cfg.Refresh = defaultRefresh
	}
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	return &Maker{
		cfg:    cfg,
		window: w,
		books:  books,
		quoter: quoter,
		logger: logger.With("component", "mm", "slug", w.Slug),
		now:    time.Now,
		quotes: make(map[domain.Outcome]QuotePair),
	}
}

// Run refreshes quotes immediately and then every Refresh until ctx is
// cancelled, when all resting orders are cancelled.
func (m *Maker) Run(ctx context.Context) error {
	t := time.NewTicker(m.cfg.Refresh)
	defer t.Stop()
	defer m.cancelAll()

	for {
		if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Refresh cancels all resting orders and posts a new GTC bid/ask pair for
// each token whose strict midpoint is available.
func (m *Maker) Refresh(ctx context.Context) error {
	if err := m.quoter.CancelAll(ctx); err != nil {
		return fmt.Errorf("mm: cancel all: %w", err)
	}

	var errs []error
	for _, o := range []domain.Outcome{domain.OutcomeUp, domain.OutcomeDown} {
		mid, ok := m.books.Book(o).Midpoint()
		if !ok {
			m.logger.Debug("not quoting", "outcome", o, "error", domain.ErrBookUnavailable)
			m.drop(o)
			continue
		}
		if err := m.quote(ctx, o, mid); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Maker) quote(ctx context.Context, o domain.Outcome, mid float64) error {
	token := m.window.TokenID(o)
	bid, ask := Quote(mid, m.cfg.Spread, m.cfg.Tick)

	if _, err := m.quoter.PostLimit(ctx, domain.LimitOrder{TokenID: token, Side: domain.OrderSideBuy, Price: bid, Size: m.cfg.Size}); err != nil {
		return fmt.Errorf("mm: post %s bid: %w", o, err)
	}
	if _, err := m.quoter.PostLimit(ctx, domain.LimitOrder{TokenID: token, Side: domain.OrderSideSell, Price: ask, Size: m.cfg.Size}); err != nil {
		return fmt.Errorf("mm: post %s ask: %w", o, err)
	}

	m.mu.Lock()
	m.quotes[o] = QuotePair{TokenID: token, Mid: mid, BidPrice: bid, AskPrice: ask, LastQuoteAt: m.now()}
	m.mu.Unlock()

	m.logger.Info("quoted", "outcome", o, "mid", mid, "bid", bid, "ask", ask, "size", m.cfg.Size)
	return nil
}

func (m *Maker) drop(o domain.Outcome) {
	m.mu.Lock()
	delete(m.quotes, o)
	m.mu.Unlock()
}

// Quotes returns a copy of the live quotes.
func (m *Maker) Quotes() map[domain.Outcome]QuotePair {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.Outcome]QuotePair, len(m.quotes))
	for k, v := range m.quotes {
		out[k] = v
	}
	return out
}

func (m *Maker) cancelAll() {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	if err := m.quoter.CancelAll(ctx); err != nil {
		m.logger.Error("cancel all on stop failed", "error", err)
		return
	}
	m.mu.Lock()
	clear(m.quotes)
	m.mu.Unlock()
	m.logger.Info("cancelled all orders")
}
