package app

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wingertjp/polymarket/internal/book"
	"github.com/wingertjp/polymarket/internal/domain"
	"github.com/wingertjp/polymarket/internal/feed"
	"github.com/wingertjp/polymarket/internal/platform/polymarket"
)

// session is the arena of one window: its book pair, the feed keeping the
// pair in sync and the consumers the mode runs on top of it. Close discards
// all of it at once.
type session struct {
	window domain.MarketWindow
	pair   *book.Pair
	feed   *feed.BookFeed

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	consumers context.Context
	stop      context.CancelFunc

	// onExpire runs once when the window's time runs out.
	onExpire  func()
	closeOnce sync.Once
}

// openSession subscribes to w's books. Consumers are added with Go and the
// session is handed to the parent group with start.
func (a *App) openSession(ctx context.Context, w domain.MarketWindow, deps *Dependencies) *session {
	sctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(sctx)
	cctx, stop := context.WithCancel(gctx)

	pair := book.NewPair(w)
	bf := feed.NewBookFeed(pair, a.cfg.Polymarket.MaxResyncs, a.logger)
	if deps.Publisher != nil {
		bf.Observe(deps.Publisher.PublishBook)
	}
	stream := polymarket.NewMarketStream(a.cfg.Polymarket.WSURL, w.Tokens(), a.logger)
	group.Go(func() error { return bf.Run(gctx, stream) })

	return &session{
		window:    w,
		pair:      pair,
		feed:      bf,
		ctx:       sctx,
		cancel:    cancel,
		group:     group,
		consumers: cctx,
		stop:      stop,
	}
}

// Go runs fn until the session is stopped. Returning after a stop is not an
// error.
func (s *session) Go(fn func(ctx context.Context) error) {
	s.group.Go(func() error {
		err := fn(s.consumers)
		if s.consumers.Err() != nil {
			return nil
		}
		return err
	})
}

// start hands the session to g: a failure inside the session that was not
// caused by Close fails g.
func (s *session) start(g *errgroup.Group) {
	g.Go(func() error {
		err := s.group.Wait()
		if s.ctx.Err() != nil || err == nil {
			return nil
		}
		return fmt.Errorf("app: session %s: %w", s.window.Slug, err)
	})
}

// Ready implements window.Session.
func (s *session) Ready() <-chan struct{} { return s.feed.Ready() }

// Expire implements window.Session.
func (s *session) Expire() {
	if s.onExpire != nil {
		s.onExpire()
	}
}

// stopConsumers ends every consumer but keeps the feed running.
func (s *session) stopConsumers() { s.stop() }

// Close implements window.Session.
func (s *session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.group.Wait()
	})
}
