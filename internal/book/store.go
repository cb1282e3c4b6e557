// Package book reconstructs per-token order books from snapshot and delta
// messages and publishes immutable snapshots for concurrent readers.
package book

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/wingertjp/polymarket/internal/domain"
)

// maxPending bounds the pre-snapshot delta buffer.
const maxPending = 1024

// priceScale is the fixed-point resolution used to key price levels.
const priceScale = 1e6

// Store owns the reconstructed book for one token. Mutating methods must be
// called from a single goroutine (the feed reader); Latest is safe for
// concurrent use.
type Store struct {
	tokenID string

	bids map[int64]float64
	asks map[int64]float64

	synced  bool
	pending []domain.PriceChange
	seq     uint64
	now     func() time.Time

	latest atomic.Pointer[domain.BookSnapshot]
}

// NewStore creates an empty, unavailable book for tokenID.
func NewStore(tokenID string) *Store {
	s := &Store{
		tokenID: tokenID,
		bids:    make(map[int64]float64),
		asks:    make(map[int64]float64),
		now:     time.Now,
	}
	s.latest.Store(&domain.BookSnapshot{TokenID: tokenID})
	return s
}

// TokenID returns the token this book belongs to.
func (s *Store) TokenID() string { return s.tokenID }

// Synced reports whether a snapshot has been applied since the last
// invalidation.
func (s *Store) Synced() bool { return s.synced }

// Pending returns the number of buffered pre-snapshot deltas.
func (s *Store) Pending() int { return len(s.pending) }

// ApplySnapshot replaces both sides wholesale. Buffered deltas are discarded.
// A crossed snapshot leaves the book unavailable and returns ErrFeedDesync.
func (s *Store) ApplySnapshot(bids, asks []domain.PriceLevel) error {
	nb := make(map[int64]float64, len(bids))
	na := make(map[int64]float64, len(asks))
	if err := fill(nb, bids); err != nil {
		s.Invalidate()
		return err
	}
	if err := fill(na, asks); err != nil {
		s.Invalidate()
		return err
	}
	if bb, ok := best(nb, true); ok {
		if ba, ok := best(na, false); ok && bb >= ba {
			s.Invalidate()
			return fmt.Errorf("book %s: crossed snapshot bid=%.4f ask=%.4f: %w",
				short(s.tokenID), fromKey(bb), fromKey(ba), domain.ErrFeedDesync)
		}
	}

	s.bids, s.asks = nb, na
	s.pending = s.pending[:0]
	s.synced = true
	s.seq++
	return nil
}

// ApplyDelta inserts, updates or removes one level. Before the first
// snapshot the delta is buffered instead. A delta that would cross the book
// is dropped and ErrFeedDesync is returned so the caller can resync.
func (s *Store) ApplyDelta(side domain.BookSide, price, size float64) error {
	if math.IsNaN(price) || math.IsNaN(size) || size < 0 || price <= 0 {
		return fmt.Errorf("book %s: invalid level price=%v size=%v: %w",
			short(s.tokenID), price, size, domain.ErrFeedDesync)
	}
	if !s.synced {
		if len(s.pending) == maxPending {
			s.pending = s.pending[1:]
		}
		s.pending = append(s.pending, domain.PriceChange{AssetID: s.tokenID, Side: side, Price: price, Size: size})
		return nil
	}

	key := toKey(price)
	var own, other map[int64]float64
	switch side {
	case domain.SideBid:
		own, other = s.bids, s.asks
	case domain.SideAsk:
		own, other = s.asks, s.bids
	default:
		return fmt.Errorf("book %s: unknown side %q", short(s.tokenID), side)
	}

	if size == 0 {
		delete(own, key)
		s.seq++
		return nil
	}

	if _, exists := own[key]; !exists {
		if opp, ok := best(other, side == domain.SideAsk); ok {
			crosses := (side == domain.SideBid && key >= opp) || (side == domain.SideAsk && key <= opp)
			if crosses {
				return fmt.Errorf("book %s: %s %.4f crosses %.4f: %w",
					short(s.tokenID), side, price, fromKey(opp), domain.ErrFeedDesync)
			}
		}
	}
	own[key] = size
	s.seq++
	return nil
}

// Invalidate marks the book unavailable until the next snapshot, e.g. after
// a reconnect.
func (s *Store) Invalidate() {
	s.synced = false
	s.bids = make(map[int64]float64)
	s.asks = make(map[int64]float64)
	s.seq++
}

// BestBid returns the highest bid or false when unavailable.
func (s *Store) BestBid() (float64, bool) {
	if !s.synced {
		return 0, false
	}
	k, ok := best(s.bids, true)
	return fromKey(k), ok
}

// BestAsk returns the lowest ask or false when unavailable.
func (s *Store) BestAsk() (float64, bool) {
	if !s.synced {
		return 0, false
	}
	k, ok := best(s.asks, false)
	return fromKey(k), ok
}

// Midpoint returns (best bid + best ask) / 2 or false when either side is
// empty.
func (s *Store) Midpoint() (float64, bool) {
	bid, okb := s.BestBid()
	ask, oka := s.BestAsk()
	if !okb || !oka {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Snapshot builds a sorted copy of the current state.
func (s *Store) Snapshot() domain.BookSnapshot {
	return domain.BookSnapshot{
		TokenID:   s.tokenID,
		Bids:      levels(s.bids, true),
		Asks:      levels(s.asks, false),
		Available: s.synced,
		Seq:       s.seq,
		UpdatedAt: s.now(),
	}
}

// Publish makes the current state visible to Latest.
func (s *Store) Publish() domain.BookSnapshot {
	snap := s.Snapshot()
	s.latest.Store(&snap)
	return snap
}

// Latest returns the most recently published snapshot.
func (s *Store) Latest() domain.BookSnapshot {
	return *s.latest.Load()
}

func fill(dst map[int64]float64, src []domain.PriceLevel) error {
	for _, l := range src {
		if math.IsNaN(l.Price) || math.IsNaN(l.Size) || l.Size < 0 || l.Price <= 0 {
			return fmt.Errorf("book: invalid snapshot level %+v: %w", l, domain.ErrFeedDesync)
		}
		if l.Size == 0 {
			continue
		}
		dst[toKey(l.Price)] = l.Size
	}
	return nil
}

func best(m map[int64]float64, highest bool) (int64, bool) {
	var out int64
	found := false
	for k := range m {
		if !found || (highest && k > out) || (!highest && k < out) {
			out, found = k, true
		}
	}
	return out, found
}

func levels(m map[int64]float64, desc bool) []domain.PriceLevel {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	if desc {
		sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	} else {
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	}
	out := make([]domain.PriceLevel, len(keys))
	for i, k := range keys {
		out[i] = domain.PriceLevel{Price: fromKey(k), Size: m[k]}
	}
	return out
}

func toKey(p float64) int64   { return int64(math.Round(p * priceScale)) }
func fromKey(k int64) float64 { return float64(k) / priceScale }

func short(id string) string {
	if len(id) > 12 {
		return id[:12] + "…"
	}
	return id
}
