package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wingertjp/polymarket/internal/domain"
)

// DefaultWSURL is the CLOB market channel.
const DefaultWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// BookHandler consumes the market channel of one window.
type BookHandler interface {
	// OnConnected runs after every (re)subscribe, before any event.
	OnConnected()
	// OnBookEvent applies one snapshot or batch of deltas. Returning an
	// error wrapping ErrFeedDesync requests a fresh snapshot; any other
	// error stops the stream.
	OnBookEvent(ev domain.BookEvent) error
	// OnDesync is told about every resync; a non-nil return is fatal.
	OnDesync(cause error) error
	// OnDisconnect runs after the socket drops.
	OnDisconnect(err error)
}

// MarketStream is a reconnecting subscription to the market channel for a
// fixed set of asset ids.
type MarketStream struct {
	url    string
	assets []string
	logger *slog.Logger
}

// NewMarketStream creates a stream for assets.
func NewMarketStream(url string, assets []string, logger *slog.Logger) *MarketStream {
	if url == "" {
		url = DefaultWSURL
	}
	return &MarketStream{
		url:    url,
		assets: append([]string(nil), assets...),
		logger: logger.With("component", "ws"),
	}
}

type fatalError struct{ err error }

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

// Run subscribes and feeds h until ctx is cancelled or h reports a fatal
// condition. Disconnects are retried with exponential backoff.
func (s *MarketStream) Run(ctx context.Context, h BookHandler) error {
	delay := reconnectDelay
	for {
		connected, err := s.consume(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var fatal *fatalError
		if errors.As(err, &fatal) {
			return fatal.err
		}
		h.OnDisconnect(err)
		if connected {
			delay = reconnectDelay
		}
		s.logger.Warn("ws disconnected, reconnecting", "error", err, "backoff", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (s *MarketStream) consume(ctx context.Context, h BookHandler) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	h.OnConnected()
	if err := s.subscribe(conn); err != nil {
		return false, err
	}
	s.logger.Info("ws connected, subscribed", "assets", len(s.assets))

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("%w: %v", domain.ErrWSDisconnect, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		err = s.handleMessage(raw, h)
		if err == nil {
			continue
		}
		var perr *ProtocolError
		if !errors.Is(err, domain.ErrFeedDesync) && !errors.As(err, &perr) {
			return true, &fatalError{err}
		}
		if ferr := h.OnDesync(err); ferr != nil {
			return true, &fatalError{ferr}
		}
		s.logger.Warn("book desync, resubscribing", "error", err)
		if err := s.subscribe(conn); err != nil {
			return true, err
		}
	}
}

func (s *MarketStream) subscribe(conn *websocket.Conn) error {
	payload, err := json.Marshal(WSSubscribe{AssetsIDs: s.assets, Type: "market", CustomFeature: true})
	if err != nil {
		return fmt.Errorf("polymarket/ws: marshal subscribe: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	return nil
}

// handleMessage routes one frame. Arrays carry either initial book
// snapshots or acks; objects carry a snapshot, a price_changes batch, or
// an ack.
func (s *MarketStream) handleMessage(raw []byte, h BookHandler) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.EqualFold(trimmed, []byte("PONG")) {
		return nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return &ProtocolError{Reason: "bad array frame: " + err.Error()}
		}
		for _, item := range items {
			var ev WSEvent
			if err := json.Unmarshal(item, &ev); err != nil || !ev.IsBook() {
				continue
			}
			if err := s.handleEvent(&ev, h); err != nil {
				return err
			}
		}
		return nil
	}

	if trimmed[0] != '{' {
		return &ProtocolError{Reason: fmt.Sprintf("unexpected frame %.32q", trimmed)}
	}

	var ev WSEvent
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return &ProtocolError{Reason: "bad object frame: " + err.Error()}
	}
	return s.handleEvent(&ev, h)
}

func (s *MarketStream) handleEvent(ev *WSEvent, h BookHandler) error {
	switch {
	case ev.IsBook():
		be, err := ev.BookEvent()
		if err != nil {
			return err
		}
		return h.OnBookEvent(be)
	case len(ev.PriceChanges) > 0:
		batches, err := ev.ChangeEvents()
		if err != nil {
			return err
		}
		// A desync on one asset must not starve the other of its deltas.
		var desync error
		for _, be := range batches {
			err := h.OnBookEvent(be)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrFeedDesync):
				if desync == nil {
					desync = err
				}
			default:
				return err
			}
		}
		return desync
	case ev.Market != "" || ev.EventType != "":
		s.logger.Debug("ws ack", "event_type", ev.EventType, "market", ev.Market)
		return nil
	default:
		s.logger.Debug("ws frame ignored")
		return nil
	}
}
