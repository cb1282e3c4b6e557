package binance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingertjp/polymarket/internal/domain"
)

type recorder struct {
	mu          sync.Mutex
	depths      []domain.DepthUpdate
	trades      []domain.TradePrint
	opens       []float64
	disconnects int
}

func (r *recorder) OnDepth(d domain.DepthUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depths = append(r.depths, d)
}

func (r *recorder) OnTrade(t domain.TradePrint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
}

func (r *recorder) OnCandleOpen(open float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens = append(r.opens, open)
}

func (r *recorder) OnDisconnect(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
}

func (r *recorder) counts() (int, int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.depths), len(r.trades), len(r.opens), r.disconnects
}

const (
	depthFrame = `{"stream":"btcusdt@depth5@100ms","data":{"lastUpdateId":1,"bids":[["65000.10","1.5"],["64999.90","2"]],"asks":[["65000.20","0.5"]]}}`
	tradeFrame = `{"stream":"btcusdt@aggTrade","data":{"p":"65000.15","q":"0.010","T":1700000000123,"m":false}}`
	klineFrame = `{"stream":"btcusdt@kline_5m","data":{"k":{"t":1700000100000,"o":"64950.00","c":"65000.15","x":false}}}`
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDispatch(t *testing.T) {
	s := NewStream("ws://unused", time.Second, quietLogger())
	at := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return at }
	r := &recorder{}

	require.NoError(t, s.dispatch([]byte(depthFrame), r))
	require.NoError(t, s.dispatch([]byte(tradeFrame), r))
	require.NoError(t, s.dispatch([]byte(klineFrame), r))

	require.Len(t, r.depths, 1)
	assert.Equal(t, []domain.PriceLevel{{Price: 65000.10, Size: 1.5}, {Price: 64999.90, Size: 2}}, r.depths[0].Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 65000.20, Size: 0.5}}, r.depths[0].Asks)
	assert.Equal(t, at, r.depths[0].At)

	require.Len(t, r.trades, 1)
	assert.InDelta(t, 65000.15, r.trades[0].Price, 1e-9)
	assert.InDelta(t, 0.01, r.trades[0].Quantity, 1e-12)
	assert.Equal(t, int64(1700000000123), r.trades[0].Time.UnixMilli())

	assert.Equal(t, []float64{64950}, r.opens)
}

func TestDispatch_Rejects(t *testing.T) {
	s := NewStream("ws://unused", time.Second, quietLogger())
	r := &recorder{}
	for _, raw := range []string{
		`not json`,
		`{"stream":"btcusdt@bookTicker","data":{}}`,
		`{"stream":"btcusdt@aggTrade","data":{"p":"abc","q":"1","T":1}}`,
		`{"stream":"btcusdt@kline_5m","data":{"k":{"o":""}}}`,
		`{"stream":"btcusdt@aggTrade","data":{"p":"NaN","q":"1","T":1}}`,
		`{"stream":"btcusdt@aggTrade","data":{"p":"+Inf","q":"1","T":1}}`,
		`{"stream":"btcusdt@aggTrade","data":{"p":"0","q":"1","T":1}}`,
		`{"stream":"btcusdt@aggTrade","data":{"p":"-65000","q":"1","T":1}}`,
		`{"stream":"btcusdt@kline_5m","data":{"k":{"o":"Inf"}}}`,
		`{"stream":"btcusdt@depth5@100ms","data":{"bids":[["NaN","1"]],"asks":[]}}`,
		`{"stream":"btcusdt@depth5@100ms","data":{"bids":[["65000","-1"]],"asks":[]}}`,
	} {
		assert.Error(t, s.dispatch([]byte(raw), r), raw)
	}
	d, tr, o, _ := r.counts()
	assert.Zero(t, d+tr+o)
}

func TestRun_DeliversAndReconnects(t *testing.T) {
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, f := range []string{depthFrame, `garbage`, tradeFrame, klineFrame} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}))
	defer srv.Close()

	s := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), time.Second, quietLogger())
	r := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, r) }()

	assert.Eventually(t, func() bool {
		d, tr, o, disc := r.counts()
		return d >= 1 && tr >= 1 && o >= 1 && disc >= 1
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
