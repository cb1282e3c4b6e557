// Package feed keeps a window's two order books in sync with the venue's
// market channel.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wingertjp/polymarket/internal/book"
	"github.com/wingertjp/polymarket/internal/domain"
	"github.com/wingertjp/polymarket/internal/platform/polymarket"
)

// Stream is the market channel subscription the feed reads from.
type Stream interface {
	Run(ctx context.Context, h polymarket.BookHandler) error
}

// BookFeed applies market channel events to a book.Pair. It is the only
// writer of the pair's stores; readers see published snapshots.
type BookFeed struct {
	pair       *book.Pair
	maxResyncs int
	logger     *slog.Logger
	observe    func(domain.BookSnapshot)

	resyncs   int
	readyOnce sync.Once
	ready     chan struct{}
}

// NewBookFeed creates a feed for pair. After maxResyncs consecutive
// desyncs without an accepted snapshot the feed gives up.
func NewBookFeed(pair *book.Pair, maxResyncs int, logger *slog.Logger) *BookFeed {
	if maxResyncs <= 0 {
		maxResyncs = 5
	}
	return &BookFeed{
		pair:       pair,
		maxResyncs: maxResyncs,
		logger:     logger.With("component", "book"),
		ready:      make(chan struct{}),
	}
}

// Observe registers fn to receive every published snapshot. fn runs on the
// feed goroutine and must not block.
func (f *BookFeed) Observe(fn func(domain.BookSnapshot)) { f.observe = fn }

// Ready is closed once both books have received their first snapshot.
func (f *BookFeed) Ready() <-chan struct{} { return f.ready }

// Run drives the feed from s until ctx ends or the stream fails for good.
func (f *BookFeed) Run(ctx context.Context, s Stream) error {
	return s.Run(ctx, f)
}

// OnConnected marks both books unavailable until their fresh snapshots
// arrive.
func (f *BookFeed) OnConnected() {
	f.invalidateAll()
}

// OnDisconnect marks both books unavailable.
func (f *BookFeed) OnDisconnect(err error) {
	f.logger.Warn("market channel lost, books unavailable", "error", err)
	f.invalidateAll()
}

// OnDesync counts a resync request and fails once the bound is exceeded.
func (f *BookFeed) OnDesync(cause error) error {
	f.resyncs++
	f.logger.Warn("book resync", "attempt", f.resyncs, "max", f.maxResyncs, "error", cause)
	if f.resyncs > f.maxResyncs {
		return fmt.Errorf("feed: %d resyncs without a clean snapshot: %w", f.resyncs-1, cause)
	}
	return nil
}

// OnBookEvent applies one snapshot or one asset's batch of deltas.
func (f *BookFeed) OnBookEvent(ev domain.BookEvent) error {
	store := f.pair.Store(ev.AssetID)
	if store == nil {
		f.logger.Debug("event for unknown asset", "asset", ev.AssetID)
		return nil
	}

	if ev.Snapshot {
		if err := store.ApplySnapshot(ev.Bids, ev.Asks); err != nil {
			f.publish(store)
			return err
		}
		f.resyncs = 0
		snap := f.publish(store)
		f.logger.Debug("snapshot",
			"asset", ev.AssetID,
			"bids", len(snap.Bids),
			"asks", len(snap.Asks),
		)
		f.checkReady()
		return nil
	}

	for _, c := range ev.Changes {
		if err := store.ApplyDelta(c.Side, c.Price, c.Size); err != nil {
			if errors.Is(err, domain.ErrFeedDesync) {
				store.Invalidate()
				f.publish(store)
			}
			return err
		}
	}
	if store.Synced() {
		f.publish(store)
	}
	return nil
}

func (f *BookFeed) publish(s *book.Store) domain.BookSnapshot {
	snap := s.Publish()
	if f.observe != nil {
		f.observe(snap)
	}
	f.pair.Notify()
	return snap
}

func (f *BookFeed) invalidateAll() {
	for _, s := range f.pair.Stores() {
		s.Invalidate()
		f.publish(s)
	}
}

func (f *BookFeed) checkReady() {
	for _, s := range f.pair.Stores() {
		if !s.Synced() {
			return
		}
	}
	f.readyOnce.Do(func() {
		f.logger.Info("books live", "slug", f.pair.Window().Slug)
		close(f.ready)
	})
}
