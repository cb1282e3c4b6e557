package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wingertjp/polymarket/internal/book"
	"github.com/wingertjp/polymarket/internal/decision"
	"github.com/wingertjp/polymarket/internal/domain"
	"github.com/wingertjp/polymarket/internal/executor"
	"github.com/wingertjp/polymarket/internal/mm"
	"github.com/wingertjp/polymarket/internal/onchain"
	"github.com/wingertjp/polymarket/internal/recorder"
	"github.com/wingertjp/polymarket/internal/tui"
	"github.com/wingertjp/polymarket/internal/window"
)

const (
	// ordersPerMinute caps FOK orders across every instance sharing Redis.
	ordersPerMinute = 4
	dataRedraw      = 500 * time.Millisecond
)

// SnipeMode runs the decision engine for every window: a snipe near the
// close and at most one rescue. Live mode also redeems at startup and after
// each window.
func (a *App) SnipeMode(ctx context.Context, deps *Dependencies) error {
	v, err := a.newVenue(ctx, !a.cfg.DryRun)
	if err != nil {
		return err
	}

	var (
		base     domain.OrderExecutor
		sim      *executor.Simulated
		redeemer *onchain.Redeemer
	)
	if a.cfg.DryRun {
		sim = executor.NewSimulated(a.logger)
		base = sim
	} else {
		base = a.newLive(v)
		if deps.Locks != nil {
			key := "snipe:" + strings.ToLower(v.signer.Address().Hex())
			unlock, err := deps.Locks.Hold(ctx, key, a.cfg.Snipe.LockTTL.Duration)
			if err != nil {
				return fmt.Errorf("app: single sniper per wallet: %w", err)
			}
			a.closers = append(a.closers, unlock)
		}
		if redeemer, err = a.newRedeemer(ctx, v, deps); err != nil {
			return err
		}
	}

	guard := executor.NewGuard(base, 2*a.cfg.Window.Length.Duration, a.logger)
	if deps.Limiter != nil {
		guard.WithRateLimit(deps.Limiter, ordersPerMinute, time.Minute)
	}

	g, gctx := errgroup.WithContext(ctx)
	fusion := a.startSignal(gctx, g, deps)
	a.startInfra(gctx, g, deps)

	redeemNow := make(chan struct{}, 1)
	if redeemer != nil {
		redeemNow <- struct{}{}
		g.Go(func() error { return a.redeemOnDemand(gctx, redeemer, redeemNow) })
	}

	mgr := a.newManager(v)
	g.Go(func() error {
		return mgr.Run(gctx, func(sctx context.Context, w domain.MarketWindow) (window.Session, error) {
			s := a.openSession(sctx, w, deps)
			engine := decision.NewEngine(a.decisionConfig(), w, s.pair, fusion, a.logger)
			for _, o := range deps.Observers() {
				engine.AddObserver(o)
			}
			reactor := decision.NewReactor(engine, guard, s.pair.Changed(), fusion.Changed(), a.cfg.Window.Tick.Duration, a.logger)
			s.Go(reactor.Run)
			s.onExpire = func() {
				state := engine.Expire(time.Now())
				a.settle(w, s.pair, state, sim, deps)
				if redeemer != nil {
					select {
					case redeemNow <- struct{}{}:
					default:
					}
				}
			}
			a.live.Store(&liveView{window: w, engine: engine})
			s.start(g)
			return s, nil
		})
	})
	return g.Wait()
}

// settle reports the window's result. The winner is estimated from the
// closing books; dry runs resolve their simulated orders against it.
func (a *App) settle(w domain.MarketWindow, books domain.BookSource, state domain.BetState, sim *executor.Simulated, deps *Dependencies) {
	winner := winnerFrom(books.Book(domain.OutcomeUp), books.Book(domain.OutcomeDown))
	if sim == nil {
		if state.Side != "" {
			a.logger.Info("window closed with position",
				slog.String("slug", w.Slug),
				slog.String("side", string(state.Side)),
				slog.String("leading", string(winner)),
				slog.Bool("rescue_fired", state.RescueFired),
			)
		}
		return
	}
	for _, st := range sim.Settle(w.Slug, winner) {
		deps.Alerts.Settled(w.Slug, st.Intent.Outcome, st.Won, st.PnL)
	}
}

// winnerFrom picks the outcome the closing books favour, or "" when the Up
// token has no usable midpoint.
func winnerFrom(up, down domain.BookSnapshot) domain.Outcome {
	mid, _, ok := book.PairMid(up, down)
	switch {
	case !ok:
		return ""
	case mid >= 0.5:
		return domain.OutcomeUp
	default:
		return domain.OutcomeDown
	}
}

func (a *App) redeemOnDemand(ctx context.Context, r *onchain.Redeemer, trigger <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-trigger:
			res, err := r.RedeemPending(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.Warn("redeem pass failed", slog.String("error", err.Error()))
				continue
			}
			if len(res.Redemptions) > 0 {
				a.logger.Info("redeem pass done",
					slog.Int("confirmed", res.Confirmed()),
					slog.Float64("gained", res.Gained()),
				)
			}
		}
	}
}

// MMMode quotes both tokens of every window around the midpoint. Quotes are
// cancelled when the window ends.
func (a *App) MMMode(ctx context.Context, deps *Dependencies) error {
	v, err := a.newVenue(ctx, !a.cfg.DryRun)
	if err != nil {
		return err
	}
	var quoter domain.Quoter
	if a.cfg.DryRun {
		quoter = executor.NewSimulated(a.logger)
	} else {
		quoter = a.newLive(v)
	}

	g, gctx := errgroup.WithContext(ctx)
	a.startInfra(gctx, g, deps)

	cfg := mm.Config{
		Spread:  a.cfg.MM.Spread,
		Size:    a.cfg.MM.Size,
		Refresh: a.cfg.MM.Refresh.Duration,
		Tick:    a.cfg.Polymarket.TickSize,
	}
	mgr := a.newManager(v)
	g.Go(func() error {
		return mgr.Run(gctx, func(sctx context.Context, w domain.MarketWindow) (window.Session, error) {
			s := a.openSession(sctx, w, deps)
			mc := cfg
			if w.TickSize > mc.Tick {
				mc.Tick = w.TickSize
			}
			maker := mm.NewMaker(mc, w, s.pair, quoter, a.logger)
			s.Go(func(ctx context.Context) error {
				select {
				case <-s.Ready():
				case <-ctx.Done():
					return ctx.Err()
				}
				return maker.Run(ctx)
			})
			s.onExpire = s.stopConsumers
			a.live.Store(&liveView{window: w})
			s.start(g)
			return s, nil
		})
	})
	return g.Wait()
}

// DataMode draws the live books and the secondary signal. It needs no
// credentials.
func (a *App) DataMode(ctx context.Context, deps *Dependencies) error {
	v, err := a.newVenue(ctx, false)
	if err != nil {
		return err
	}
	tui.Waiting(a.out, "Connecting …")

	g, gctx := errgroup.WithContext(ctx)
	fusion := a.startSignal(gctx, g, deps)
	a.startInfra(gctx, g, deps)

	mgr := a.newManager(v)
	g.Go(func() error {
		return mgr.Run(gctx, func(sctx context.Context, w domain.MarketWindow) (window.Session, error) {
			s := a.openSession(sctx, w, deps)
			screen := tui.NewScreen(a.out, dataRedraw)
			s.Go(func(ctx context.Context) error {
				select {
				case <-s.Ready():
				case <-ctx.Done():
					return ctx.Err()
				}
				return screen.Run(ctx, dataView(w, s.pair, fusion))
			})
			a.live.Store(&liveView{window: w})
			s.start(g)
			return s, nil
		})
	})
	return g.Wait()
}

func dataView(w domain.MarketWindow, books domain.BookSource, sig domain.SignalSource) tui.Source {
	return func(now time.Time) tui.View {
		snap := sig.Snapshot()
		return tui.View{
			Window: w,
			Now:    now,
			Up:     books.Book(domain.OutcomeUp),
			Down:   books.Book(domain.OutcomeDown),
			Signal: &snap,
		}
	}
}

// RecordMode writes every window's ticks to disk and the configured
// exports.
func (a *App) RecordMode(ctx context.Context, deps *Dependencies) error {
	v, err := a.newVenue(ctx, false)
	if err != nil {
		return err
	}

	var extra []recorder.Sink
	if deps.Kafka != nil {
		extra = append(extra, deps.Kafka)
	}
	cfg := recorder.Config{Dir: a.cfg.Record.Dir, Format: a.cfg.Record.Format}

	g, gctx := errgroup.WithContext(ctx)
	fusion := a.startSignal(gctx, g, deps)
	a.startInfra(gctx, g, deps)

	mgr := a.newManager(v)
	g.Go(func() error {
		return mgr.Run(gctx, func(sctx context.Context, w domain.MarketWindow) (window.Session, error) {
			s := a.openSession(sctx, w, deps)
			rec := recorder.New(cfg, w, s.pair, fusion, extra, deps.Uploader, a.logger)
			s.Go(func(ctx context.Context) error {
				_, err := rec.Run(ctx, s.pair.Changed())
				return err
			})
			a.live.Store(&liveView{window: w})
			s.start(g)
			return s, nil
		})
	})
	return g.Wait()
}

// WalletMode prints the wallet's positions and USDC.e balance once.
func (a *App) WalletMode(ctx context.Context, deps *Dependencies) error {
	v, err := a.newVenue(ctx, true)
	if err != nil {
		return err
	}
	client, err := onchain.Dial(ctx, a.cfg.Chain.RPCURL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)

	ctf := onchain.NewCTF(client, a.cfg.Chain.CTFAddress, a.cfg.Chain.USDCAddress)
	report, err := onchain.NewWallet(ctf, v.clob, v.signer.Address(), a.logger).Report(ctx)
	if err != nil {
		return err
	}
	return report.Render(a.out)
}

// RedeemMode redeems resolved winning positions every poll interval.
func (a *App) RedeemMode(ctx context.Context, deps *Dependencies) error {
	v, err := a.newVenue(ctx, true)
	if err != nil {
		return err
	}
	r, err := a.newRedeemer(ctx, v, deps)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	if deps.Journal != nil {
		g.Go(func() error { return deps.Journal.Run(gctx) })
	}
	g.Go(func() error { return r.Run(gctx, a.cfg.Redeem.PollInterval.Duration) })
	return g.Wait()
}
