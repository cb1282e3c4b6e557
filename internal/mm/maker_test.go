package mm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingertjp/polymarket/internal/domain"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var window = domain.MarketWindow{Slug: "btc-updown-5m-1700000100", UpTokenID: "up", DownTokenID: "down"}

type staticBooks map[domain.Outcome]domain.BookSnapshot

func (b staticBooks) Book(o domain.Outcome) domain.BookSnapshot { return b[o] }

func book(bid, ask float64) domain.BookSnapshot {
	return domain.BookSnapshot{
		Available: true,
		Bids:      []domain.PriceLevel{{Price: bid, Size: 10}},
		Asks:      []domain.PriceLevel{{Price: ask, Size: 10}},
	}
}

type fakeQuoter struct {
	mu      sync.Mutex
	calls   []string
	orders  []domain.LimitOrder
	postErr error
	cancels int
}

func (f *fakeQuoter) PostLimit(_ context.Context, o domain.LimitOrder) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "post")
	if f.postErr != nil {
		return "", f.postErr
	}
	f.orders = append(f.orders, o)
	return "id", nil
}

func (f *fakeQuoter) CancelAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "cancel")
	f.cancels++
	return nil
}

func (f *fakeQuoter) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name          string
		mid, spread   float64
		wantBid, want float64
	}{
		{"centered", 0.50, 0.02, 0.49, 0.51},
		{"rounds to tick", 0.553, 0.02, 0.54, 0.56},
		{"clamps low", 0.0, 0.04, 0.01, 0.02},
		{"clamps high", 1.0, 0.04, 0.98, 0.99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bid, ask := Quote(tt.mid, tt.spread, 0.01)
			assert.InDelta(t, tt.wantBid, bid, 1e-9)
			assert.InDelta(t, tt.want, ask, 1e-9)
		})
	}
}

func TestRefreshCancelsThenQuotesBothTokens(t *testing.T) {
	q := &fakeQuoter{}
	m := NewMaker(Config{Spread: 0.02, Size: 5}, window, staticBooks{
		domain.OutcomeUp:   book(0.60, 0.62),
		domain.OutcomeDown: book(0.38, 0.40),
	}, q, quietLogger())

	require.NoError(t, m.Refresh(context.Background()))

	assert.Equal(t, []string{"cancel", "post", "post", "post", "post"}, q.calls)
	require.Len(t, q.orders, 4)
	assert.Equal(t, domain.LimitOrder{TokenID: "up", Side: domain.OrderSideBuy, Price: 0.60, Size: 5}, q.orders[0])
	assert.Equal(t, domain.LimitOrder{TokenID: "up", Side: domain.OrderSideSell, Price: 0.62, Size: 5}, q.orders[1])
	assert.Equal(t, "down", q.orders[2].TokenID)
	assert.InDelta(t, 0.38, q.orders[2].Price, 1e-9)
	assert.InDelta(t, 0.40, q.orders[3].Price, 1e-9)

	quotes := m.Quotes()
	require.Contains(t, quotes, domain.OutcomeUp)
	assert.InDelta(t, 0.61, quotes[domain.OutcomeUp].Mid, 1e-9)
}

func TestRefreshSkipsUnavailableBook(t *testing.T) {
	q := &fakeQuoter{}
	oneSided := domain.BookSnapshot{Available: true, Bids: []domain.PriceLevel{{Price: 0.4, Size: 1}}}
	m := NewMaker(Config{Spread: 0.02, Size: 5}, window, staticBooks{
		domain.OutcomeUp:   book(0.60, 0.62),
		domain.OutcomeDown: oneSided,
	}, q, quietLogger())

	require.NoError(t, m.Refresh(context.Background()))

	require.Len(t, q.orders, 2)
	assert.Equal(t, "up", q.orders[0].TokenID)
	assert.NotContains(t, m.Quotes(), domain.OutcomeDown)
}

func TestRefreshReportsPostErrors(t *testing.T) {
	q := &fakeQuoter{postErr: errors.New("rejected")}
	m := NewMaker(Config{Spread: 0.02, Size: 5}, window, staticBooks{
		domain.OutcomeUp:   book(0.60, 0.62),
		domain.OutcomeDown: book(0.38, 0.40),
	}, q, quietLogger())

	err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "Up bid")
	assert.ErrorContains(t, err, "Down bid")
	assert.Empty(t, m.Quotes())
}

func TestRunCancelsAllOnStop(t *testing.T) {
	q := &fakeQuoter{}
	m := NewMaker(Config{Spread: 0.02, Size: 5, Refresh: time.Hour}, window, staticBooks{
		domain.OutcomeUp:   book(0.60, 0.62),
		domain.OutcomeDown: book(0.38, 0.40),
	}, q, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return q.cancelCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 2, q.cancelCount())
	assert.Empty(t, m.Quotes())
}
