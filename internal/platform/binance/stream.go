// Package binance reads the Binance spot combined WebSocket stream.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wingertjp/polymarket/internal/domain"
)

// DefaultStreamURL carries BTCUSDT depth, aggregated trades and 5m klines.
const DefaultStreamURL = "wss://stream.binance.com:9443/stream?streams=btcusdt@depth5@100ms/btcusdt@aggTrade/btcusdt@kline_5m"

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	pingPeriod     = 15 * time.Second
	writeWait      = 5 * time.Second
)

// Stream is a reconnecting reader for one combined stream URL.
type Stream struct {
	url         string
	readTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewStream creates a stream reader. readTimeout bounds the silence allowed
// on the socket before it is considered dead.
func NewStream(url string, readTimeout time.Duration, logger *slog.Logger) *Stream {
	if url == "" {
		url = DefaultStreamURL
	}
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	return &Stream{
		url:         url,
		readTimeout: readTimeout,
		logger:      logger.With("component", "signal"),
		now:         time.Now,
	}
}

// Run connects and dispatches events to h on this goroutine until ctx is cancelled,
// reconnecting with backoff after every disconnect.
func (s *Stream) Run(ctx context.Context, h domain.SignalHandler) error {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		connected, err := s.consume(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.OnDisconnect(err)
		if connected {
			backoff = initialBackoff
		}
		s.logger.Warn("binance stream disconnected, retrying", "error", err, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
	}
}

func (s *Stream) consume(ctx context.Context, h domain.SignalHandler) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("binance: dial: %w", err)
	}
	defer conn.Close()

	s.logger.Info("binance stream connected", "url", s.url)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	// Unblock ReadMessage on shutdown.
	go func() {
		<-pingCtx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("binance: read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		if err := s.dispatch(raw, h); err != nil {
			s.logger.Debug("binance message skipped", "error", err)
		}
	}
}

func (s *Stream) dispatch(raw []byte, h domain.SignalHandler) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("binance: decode envelope: %w", err)
	}

	switch {
	case strings.Contains(env.Stream, "@depth"):
		var m DepthMessage
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("binance: decode depth: %w", err)
		}
		d, err := m.ToDomain(s.now())
		if err != nil {
			return err
		}
		h.OnDepth(d)
	case strings.Contains(env.Stream, "@aggTrade"):
		var m AggTradeMessage
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("binance: decode trade: %w", err)
		}
		t, err := m.ToDomain()
		if err != nil {
			return err
		}
		h.OnTrade(t)
	case strings.Contains(env.Stream, "@kline"):
		var m KlineMessage
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("binance: decode kline: %w", err)
		}
		open, err := parsePrice(m.Kline.Open)
		if err != nil {
			return fmt.Errorf("binance: kline open %q: %w", m.Kline.Open, err)
		}
		h.OnCandleOpen(open)
	default:
		return fmt.Errorf("binance: unknown stream %q", env.Stream)
	}
	return nil
}
