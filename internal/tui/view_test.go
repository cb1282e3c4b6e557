package tui

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingertjp/polymarket/internal/domain"
)

var now = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func testView() View {
	return View{
		Window: domain.MarketWindow{Title: "Bitcoin Up or Down - 5:05AM ET", CloseAt: now.Add(90 * time.Second)},
		Now:    now,
		Up: domain.BookSnapshot{
			Available: true,
			Bids:      []domain.PriceLevel{{Price: 0.54, Size: 1434}, {Price: 0.53, Size: 20}},
			Asks:      []domain.PriceLevel{{Price: 0.56, Size: 300}},
		},
		Down: domain.BookSnapshot{
			Available: true,
			Bids:      []domain.PriceLevel{{Price: 0.44, Size: 12}},
		},
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	v := testView()
	v.Signal = &domain.SignalSnapshot{FilteredPrice: 65000.5, OBI: 0.4, Velocity: 1.25, Direction: domain.DirectionUp, LastEventAt: now}

	require.NoError(t, Render(&buf, v))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, clearScreen))
	assert.Contains(t, out, "Bitcoin Up or Down - 5:05AM ET")
	assert.Contains(t, out, "closes in 1:30")
	assert.Contains(t, out, "05:06:07.000 UTC")
	assert.Contains(t, out, " 55.0%")
	assert.Contains(t, out, "(cross_full)")
	assert.Contains(t, out, "54.0%")
	assert.Contains(t, out, "$1434")
	assert.Contains(t, out, "BTC 65000.50")
	assert.Contains(t, out, "obi +0.400")
	assert.Contains(t, out, "(live)")
}

func TestRenderEmptyBooks(t *testing.T) {
	var buf bytes.Buffer
	v := View{Window: domain.MarketWindow{Title: "t", CloseAt: now.Add(-time.Second)}, Now: now}

	require.NoError(t, Render(&buf, v))
	out := buf.String()

	assert.Contains(t, out, "closes in 0:00")
	assert.Contains(t, out, "n/a")
	assert.NotContains(t, out, "BTC")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestScreenRedraws(t *testing.T) {
	out := &syncBuffer{}
	s := NewScreen(out, time.Millisecond)
	s.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	frames := 0
	err := s.Run(ctx, func(at time.Time) View {
		frames++
		if frames == 3 {
			cancel()
		}
		assert.Equal(t, now, at)
		return testView()
	})

	require.NoError(t, err)
	assert.Equal(t, 3, frames)
	assert.Equal(t, 3, strings.Count(out.String(), clearScreen))
}
