package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingertjp/polymarket/internal/book"
	"github.com/wingertjp/polymarket/internal/config"
	"github.com/wingertjp/polymarket/internal/decision"
	"github.com/wingertjp/polymarket/internal/domain"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParseMode(t *testing.T) {
	for _, m := range Modes {
		got, err := ParseMode(" " + string(m) + " ")
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseMode("SNIPE")
	require.NoError(t, err)
	assert.Equal(t, ModeSnipe, got)

	_, err = ParseMode("trade")
	assert.Error(t, err)
}

func TestWinnerFrom(t *testing.T) {
	lvl := func(p float64) []domain.PriceLevel { return []domain.PriceLevel{{Price: p, Size: 1}} }

	tests := []struct {
		name string
		up   domain.BookSnapshot
		down domain.BookSnapshot
		want domain.Outcome
	}{
		{"up leads", domain.BookSnapshot{Available: true, Bids: lvl(0.97), Asks: lvl(0.99)}, domain.BookSnapshot{}, domain.OutcomeUp},
		{"even goes up", domain.BookSnapshot{Available: true, Bids: lvl(0.49), Asks: lvl(0.51)}, domain.BookSnapshot{}, domain.OutcomeUp},
		{"down leads", domain.BookSnapshot{Available: true, Bids: lvl(0.02), Asks: lvl(0.04)}, domain.BookSnapshot{}, domain.OutcomeDown},
		{"from complement", domain.BookSnapshot{Available: true, Bids: lvl(0.10)}, domain.BookSnapshot{Available: true, Bids: lvl(0.88), Asks: lvl(0.90)}, domain.OutcomeDown},
		{"unknown", domain.BookSnapshot{}, domain.BookSnapshot{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, winnerFrom(tt.up, tt.down))
		})
	}
}

func TestWireWithoutInfrastructure(t *testing.T) {
	cfg := config.Defaults()

	deps, cleanup, err := Wire(context.Background(), &cfg, ModeSnipe, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.Bus)
	assert.Nil(t, deps.Limiter)
	assert.Nil(t, deps.Bets)
	assert.Nil(t, deps.Uploader)
	assert.False(t, deps.Notifier.Enabled())
	assert.Empty(t, deps.Observers())
}

func TestWireNotifyOnly(t *testing.T) {
	cfg := config.Defaults()
	cfg.Notify.DiscordWebhookURL = "http://127.0.0.1:1/hook"

	deps, cleanup, err := Wire(context.Background(), &cfg, ModeRecord, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	require.Len(t, deps.Observers(), 1)
	assert.Same(t, deps.Alerts, deps.Observers()[0])
	assert.Nil(t, deps.Kafka)
}

type fixedSignal domain.SignalSnapshot

func (f fixedSignal) Snapshot() domain.SignalSnapshot { return domain.SignalSnapshot(f) }

type emptyBooks struct{}

func (emptyBooks) Book(domain.Outcome) domain.BookSnapshot { return domain.BookSnapshot{} }

func (emptyBooks) Mid(domain.Outcome) (float64, book.MidSource, bool) { return 0, "", false }

func TestStatus(t *testing.T) {
	cfg := config.Defaults()
	cfg.DryRun = true
	a := New(&cfg, quietLogger())
	a.mode = ModeSnipe
	a.started = time.Now().Add(-time.Minute)

	st := a.Status()
	assert.Equal(t, "snipe", st.Mode)
	assert.True(t, st.DryRun)
	assert.GreaterOrEqual(t, st.UptimeSeconds, int64(59))
	assert.Nil(t, st.Window)
	assert.Nil(t, st.Bet)

	w := domain.MarketWindow{Slug: "btc-updown-5m-1", CloseAt: time.Now().Add(time.Minute)}
	a.signal = fixedSignal{OBI: 0.5, Direction: domain.DirectionUp}
	engine := decision.NewEngine(decision.Config{}, w, emptyBooks{}, a.signal, quietLogger())
	a.live.Store(&liveView{window: w, engine: engine})

	st = a.Status()
	require.NotNil(t, st.Window)
	assert.Equal(t, w.Slug, st.Window.Slug)
	assert.InDelta(t, 60, st.Remaining, 1)
	require.NotNil(t, st.Bet)
	assert.Equal(t, domain.PhaseWaiting, st.Bet.Phase)
	assert.Equal(t, domain.DirectionUp, st.Signal.Direction)
}
