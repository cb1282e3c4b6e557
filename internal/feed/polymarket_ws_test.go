package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingertjp/polymarket/internal/book"
	"github.com/wingertjp/polymarket/internal/domain"
	"github.com/wingertjp/polymarket/internal/platform/polymarket"
)

func testPair() *book.Pair {
	return book.NewPair(domain.MarketWindow{Slug: "w", UpTokenID: "up", DownTokenID: "down"})
}

func newFeed(p *book.Pair, max int) *BookFeed {
	return NewBookFeed(p, max, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func snapshot(asset string, bid, ask float64) domain.BookEvent {
	return domain.BookEvent{
		AssetID:  asset,
		Snapshot: true,
		Bids:     []domain.PriceLevel{{Price: bid, Size: 10}},
		Asks:     []domain.PriceLevel{{Price: ask, Size: 10}},
	}
}

func delta(asset string, side domain.BookSide, price, size float64) domain.BookEvent {
	return domain.BookEvent{
		AssetID: asset,
		Changes: []domain.PriceChange{{AssetID: asset, Side: side, Price: price, Size: size}},
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestBookFeed_ReadyAfterBothSnapshots(t *testing.T) {
	p := testPair()
	f := newFeed(p, 5)

	f.OnConnected()
	require.NoError(t, f.OnBookEvent(snapshot("up", 0.90, 0.92)))
	assert.False(t, isClosed(f.Ready()))

	require.NoError(t, f.OnBookEvent(snapshot("down", 0.08, 0.10)))
	assert.True(t, isClosed(f.Ready()))

	mid, src, ok := p.Mid(domain.OutcomeUp)
	require.True(t, ok)
	assert.Equal(t, book.MidFull, src)
	assert.InDelta(t, 0.91, mid, 1e-9)
}

func TestBookFeed_DeltaPublishesAndNotifies(t *testing.T) {
	p := testPair()
	f := newFeed(p, 5)
	require.NoError(t, f.OnBookEvent(snapshot("up", 0.50, 0.60)))
	<-p.Changed()

	require.NoError(t, f.OnBookEvent(delta("up", domain.SideBid, 0.55, 3)))
	assert.True(t, isClosed(p.Changed()))

	bid, ok := p.Book(domain.OutcomeUp).BestBid()
	require.True(t, ok)
	assert.InDelta(t, 0.55, bid, 1e-9)
}

func TestBookFeed_CrossedDeltaInvalidates(t *testing.T) {
	p := testPair()
	f := newFeed(p, 5)
	require.NoError(t, f.OnBookEvent(snapshot("up", 0.50, 0.60)))

	err := f.OnBookEvent(delta("up", domain.SideBid, 0.65, 1))
	assert.ErrorIs(t, err, domain.ErrFeedDesync)
	assert.False(t, p.Book(domain.OutcomeUp).Available)

	// deltas after the desync are buffered, not applied
	require.NoError(t, f.OnBookEvent(delta("up", domain.SideBid, 0.40, 1)))
	assert.False(t, p.Book(domain.OutcomeUp).Available)

	require.NoError(t, f.OnBookEvent(snapshot("up", 0.51, 0.59)))
	snap := p.Book(domain.OutcomeUp)
	assert.True(t, snap.Available)
	bid, _ := snap.BestBid()
	assert.InDelta(t, 0.51, bid, 1e-9)
}

func TestBookFeed_ResyncBound(t *testing.T) {
	p := testPair()
	f := newFeed(p, 2)
	cause := domain.ErrFeedDesync

	require.NoError(t, f.OnDesync(cause))
	require.NoError(t, f.OnDesync(cause))
	require.NoError(t, f.OnBookEvent(snapshot("up", 0.5, 0.6)))

	require.NoError(t, f.OnDesync(cause))
	require.NoError(t, f.OnDesync(cause))
	err := f.OnDesync(cause)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFeedDesync)
}

func TestBookFeed_ReconnectMarksUnavailable(t *testing.T) {
	p := testPair()
	f := newFeed(p, 5)
	require.NoError(t, f.OnBookEvent(snapshot("up", 0.5, 0.6)))
	require.NoError(t, f.OnBookEvent(snapshot("down", 0.4, 0.5)))

	f.OnDisconnect(errors.New("eof"))
	assert.False(t, p.Book(domain.OutcomeUp).Available)
	assert.False(t, p.Book(domain.OutcomeDown).Available)
	_, _, ok := p.Mid(domain.OutcomeUp)
	assert.False(t, ok)
}

func TestBookFeed_UnknownAssetIgnored(t *testing.T) {
	f := newFeed(testPair(), 5)
	assert.NoError(t, f.OnBookEvent(snapshot("other", 0.5, 0.6)))
}

func TestBookFeed_Observe(t *testing.T) {
	p := testPair()
	f := newFeed(p, 5)
	var seen []string
	f.Observe(func(s domain.BookSnapshot) { seen = append(seen, s.TokenID) })

	require.NoError(t, f.OnBookEvent(snapshot("down", 0.4, 0.5)))
	assert.Equal(t, []string{"down"}, seen)
}

type scriptedStream struct {
	events []domain.BookEvent
}

func (s *scriptedStream) Run(ctx context.Context, h polymarket.BookHandler) error {
	h.OnConnected()
	for _, ev := range s.events {
		if err := h.OnBookEvent(ev); err != nil {
			if ferr := h.OnDesync(err); ferr != nil {
				return ferr
			}
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestBookFeed_RunWithStream(t *testing.T) {
	p := testPair()
	f := newFeed(p, 5)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.Run(ctx, &scriptedStream{events: []domain.BookEvent{
			snapshot("up", 0.9, 0.92),
			snapshot("down", 0.07, 0.09),
		}})
	}()

	<-f.Ready()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
