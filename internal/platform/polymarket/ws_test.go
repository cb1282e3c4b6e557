package polymarket

import (
	"context"
	"encoding/json"
	"errors"
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

type recordingHandler struct {
	mu        sync.Mutex
	connects  int
	events    []domain.BookEvent
	desyncs   int
	maxDesync int
}

func (h *recordingHandler) OnConnected() {
	h.mu.Lock()
	h.connects++
	h.mu.Unlock()
}

func (h *recordingHandler) OnBookEvent(ev domain.BookEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	for _, c := range ev.Changes {
		if c.Price >= 0.99 && c.Side == domain.SideBid {
			return domain.ErrFeedDesync
		}
	}
	return nil
}

func (h *recordingHandler) OnDesync(error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.desyncs++
	if h.maxDesync > 0 && h.desyncs > h.maxDesync {
		return errors.New("too many desyncs")
	}
	return nil
}

func (h *recordingHandler) OnDisconnect(error) {}

func (h *recordingHandler) snapshot() (int, []domain.BookEvent, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connects, append([]domain.BookEvent(nil), h.events...), h.desyncs
}

func wsServer(t *testing.T, script func(conn *websocket.Conn, subs chan<- WSSubscribe)) (string, <-chan WSSubscribe) {
	t.Helper()
	subs := make(chan WSSubscribe, 16)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn, subs)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), subs
}

func readSub(t *testing.T, conn *websocket.Conn) WSSubscribe {
	var sub WSSubscribe
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return sub
	}
	_ = json.Unmarshal(raw, &sub)
	return sub
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestMarketStream_SnapshotsAndDeltas(t *testing.T) {
	url, subs := wsServer(t, func(conn *websocket.Conn, subs chan<- WSSubscribe) {
		subs <- readSub(t, conn)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[
			{"event_type":"book","asset_id":"111","bids":[{"price":"0.48","size":"10"}],"asks":[{"price":"0.52","size":"7"}]},
			{"event_type":"book","asset_id":"222","bids":[{"price":"0.47","size":"3"}],"asks":[{"price":"0.53","size":"4"}]}
		]`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"market":"0xcid","price_changes":[
			{"asset_id":"111","price":"0.49","size":"5","side":"BUY"},
			{"asset_id":"222","price":"0.53","size":"0","side":"SELL"},
			{"asset_id":"111","price":"0.48","size":"0","side":"BUY"}
		]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"market":"0xcid"}`))
		time.Sleep(time.Second)
	})

	h := &recordingHandler{}
	s := NewMarketStream(url, []string{"111", "222"}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx, h) }()

	sub := <-subs
	assert.Equal(t, []string{"111", "222"}, sub.AssetsIDs)
	assert.Equal(t, "market", sub.Type)
	assert.True(t, sub.CustomFeature)

	require.Eventually(t, func() bool {
		_, evs, _ := h.snapshot()
		return len(evs) == 4
	}, 2*time.Second, 5*time.Millisecond)

	connects, evs, _ := h.snapshot()
	assert.Equal(t, 1, connects)
	assert.True(t, evs[0].Snapshot)
	assert.Equal(t, "111", evs[0].AssetID)
	assert.Equal(t, []domain.PriceLevel{{Price: 0.48, Size: 10}}, evs[0].Bids)
	assert.Equal(t, "222", evs[1].AssetID)

	// deltas grouped per asset, array order kept
	assert.Equal(t, "111", evs[2].AssetID)
	require.Len(t, evs[2].Changes, 2)
	assert.InDelta(t, 0.49, evs[2].Changes[0].Price, 1e-9)
	assert.InDelta(t, 0.48, evs[2].Changes[1].Price, 1e-9)
	assert.Equal(t, domain.SideBid, evs[2].Changes[0].Side)
	assert.Equal(t, "222", evs[3].AssetID)
	assert.Equal(t, domain.SideAsk, evs[3].Changes[0].Side)
	assert.Zero(t, evs[3].Changes[0].Size)
}

func TestMarketStream_DesyncResubscribes(t *testing.T) {
	url, subs := wsServer(t, func(conn *websocket.Conn, subs chan<- WSSubscribe) {
		subs <- readSub(t, conn)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"price_changes":[{"asset_id":"111","price":"0.99","size":"1","side":"BUY"}]}`))
		subs <- readSub(t, conn)
		time.Sleep(time.Second)
	})

	h := &recordingHandler{}
	s := NewMarketStream(url, []string{"111", "222"}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx, h) }()

	<-subs
	select {
	case sub := <-subs:
		assert.Equal(t, []string{"111", "222"}, sub.AssetsIDs)
	case <-time.After(2 * time.Second):
		t.Fatal("no resubscribe after desync")
	}
	_, _, desyncs := h.snapshot()
	assert.Equal(t, 1, desyncs)
}

func TestMarketStream_FatalAfterRepeatedDesync(t *testing.T) {
	url, _ := wsServer(t, func(conn *websocket.Conn, subs chan<- WSSubscribe) {
		for i := 0; i < 10; i++ {
			readSub(t, conn)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
				return
			}
		}
	})

	h := &recordingHandler{maxDesync: 2}
	s := NewMarketStream(url, []string{"111"}, quietLogger())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), h) }()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "too many desyncs")
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestMarketStream_CancelStops(t *testing.T) {
	url, subs := wsServer(t, func(conn *websocket.Conn, subs chan<- WSSubscribe) {
		subs <- readSub(t, conn)
		time.Sleep(2 * time.Second)
	})

	s := NewMarketStream(url, []string{"111"}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, &recordingHandler{}) }()

	<-subs
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
