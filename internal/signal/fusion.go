// Package signal fuses the secondary venue's depth and trade streams into
// an order-book imbalance, a filtered price with velocity and a discrete
// direction.
package signal

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/wingertjp/polymarket/internal/domain"
)

// minDT guards the velocity derivative against near-zero time steps.
const minDT = 0.001

// Config holds the fusion parameters.
type Config struct {
	OBIThreshold  float64
	Rule          domain.DirectionRule
	Levels        int
	ProcessNoise  float64
	MeasureNoise  float64
	VelocityAlpha float64
	StaleAfter    time.Duration
}

// Runner is the event source driving a Fusion, normally a binance.Stream.
type Runner interface {
	Run(ctx context.Context, h domain.SignalHandler) error
}

// Fusion is the long-lived signal worker. Event methods mutate state and
// must be called from a single goroutine; Snapshot is safe for concurrent
// use and never blocks.
type Fusion struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	kf        *Kalman
	obi       float64
	velocity  float64
	velSeeded bool
	lastTrade time.Time
	candle    float64
	trades    uint64
	depths    uint64
	lastEvent time.Time
	// needDepth keeps the snapshot stale until a depth update arrives after
	// startup or a reconnect.
	needDepth bool

	latest  atomic.Pointer[domain.SignalSnapshot]
	changed chan struct{}
}

// New creates a Fusion with no data; its snapshot is stale until the first
// event arrives.
func New(cfg Config, logger *slog.Logger) *Fusion {
	if cfg.Levels <= 0 {
		cfg.Levels = 5
	}
	if cfg.VelocityAlpha <= 0 || cfg.VelocityAlpha > 1 {
		cfg.VelocityAlpha = 1
	}
	if cfg.Rule == "" {
		cfg.Rule = domain.RuleOBIAndVelocity
	}
	f := &Fusion{
		cfg:       cfg,
		logger:    logger.With("component", "signal"),
		now:       time.Now,
		kf:        NewKalman(cfg.ProcessNoise, cfg.MeasureNoise),
		changed:   make(chan struct{}, 1),
		needDepth: true,
	}
	f.latest.Store(&domain.SignalSnapshot{Direction: domain.DirectionNone, Stale: true})
	return f
}

// Run drives the fusion from src until ctx is cancelled.
func (f *Fusion) Run(ctx context.Context, src Runner) error {
	f.logger.Info("signal fusion started",
		"obi_threshold", f.cfg.OBIThreshold,
		"rule", f.cfg.Rule,
		"stale_after", f.cfg.StaleAfter,
	)
	return src.Run(ctx, f)
}

// OnDepth recomputes OBI from a top-N depth snapshot.
func (f *Fusion) OnDepth(d domain.DepthUpdate) {
	f.obi = OBI(d.Bids, d.Asks, f.cfg.Levels)
	f.needDepth = false
	f.depths++
	f.touch()
}

// OnTrade feeds a trade print into the price filter and velocity estimate.
func (f *Fusion) OnTrade(t domain.TradePrint) {
	// The first trade, and the first one after a reconnect, only move the
	// filter: there is no previous print to take a velocity against.
	if !f.kf.Seeded() || f.lastTrade.IsZero() {
		f.kf.Update(t.Price)
		f.lastTrade = t.Time
		f.trades++
		f.touch()
		return
	}

	prev := f.kf.Estimate()
	x := f.kf.Update(t.Price)

	dt := t.Time.Sub(f.lastTrade).Seconds()
	raw := (x - prev) / math.Max(dt, minDT)
	if !f.velSeeded {
		f.velocity = raw
		f.velSeeded = true
	} else {
		a := f.cfg.VelocityAlpha
		f.velocity = a*raw + (1-a)*f.velocity
	}
	f.lastTrade = t.Time
	f.trades++
	f.touch()
}

// OnCandleOpen records the open of the current candle.
func (f *Fusion) OnCandleOpen(open float64) {
	f.candle = open
	f.touch()
}

// OnDisconnect marks the signal stale until a fresh depth update arrives.
// OBI and velocity are reset; the filtered price is kept.
func (f *Fusion) OnDisconnect(err error) {
	f.obi = 0
	f.velocity = 0
	f.velSeeded = false
	f.lastTrade = time.Time{}
	f.needDepth = true
	f.lastEvent = time.Time{}
	f.publish()
}

func (f *Fusion) touch() {
	f.lastEvent = f.now()
	f.publish()
}

func (f *Fusion) publish() {
	snap := &domain.SignalSnapshot{
		OBI:           f.obi,
		FilteredPrice: f.kf.Estimate(),
		Velocity:      f.velocity,
		CandleOpen:    f.candle,
		Direction:     Decide(f.cfg.Rule, f.cfg.OBIThreshold, f.obi, f.velocity),
		Trades:        f.trades,
		Depths:        f.depths,
		LastEventAt:   f.lastEvent,
		Stale:         f.lastEvent.IsZero() || f.needDepth,
	}
	f.latest.Store(snap)
	select {
	case f.changed <- struct{}{}:
	default:
	}
}

// Snapshot returns the latest state. If no event arrived within StaleAfter
// the snapshot is flagged stale and its direction degrades to NONE.
func (f *Fusion) Snapshot() domain.SignalSnapshot {
	s := *f.latest.Load()
	if f.cfg.StaleAfter > 0 && !s.LastEventAt.IsZero() && f.now().Sub(s.LastEventAt) > f.cfg.StaleAfter {
		s.Stale = true
	}
	if s.Stale {
		s.Direction = domain.DirectionNone
	}
	return s
}

// Changed signals that a new snapshot was published.
func (f *Fusion) Changed() <-chan struct{} { return f.changed }
