// Package executor turns order intents into exchange orders. Live signs and
// posts FOK orders to the CLOB; Simulated records intents for dry runs.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wingertjp/polymarket/internal/domain"
	"github.com/wingertjp/polymarket/internal/platform/polymarket"
)

const defaultOrderTimeout = 10 * time.Second

// OrderPoster is the CLOB surface the live executor needs. It is
// implemented by *polymarket.ClobClient.
type OrderPoster interface {
	PostOrder(ctx context.Context, order *polymarket.SignedOrder, orderType domain.OrderType) (polymarket.APIOrderResult, error)
	CancelAll(ctx context.Context) error
}

// Live places real orders. A FOK order is sent exactly once; a call that
// does not resolve within the timeout is reported as NOT_FILLED.
type Live struct {
	builder *polymarket.OrderBuilder
	poster  OrderPoster
	timeout time.Duration
	logger  *slog.Logger
}

// NewLive creates a live executor.
func NewLive(builder *polymarket.OrderBuilder, poster OrderPoster, timeout time.Duration, logger *slog.Logger) *Live {
	if timeout <= 0 {
		timeout = defaultOrderTimeout
	}
	return &Live{
		builder: builder,
		poster:  poster,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "order")),
	}
}

// PlaceFOKBuy implements domain.OrderExecutor.
func (l *Live) PlaceFOKBuy(ctx context.Context, intent domain.OrderIntent) domain.OrderOutcome {
	start := time.Now()
	order, err := l.builder.MarketBuy(intent.TokenID, intent.AmountUSDC, intent.Price, intent.TickSize)
	if err != nil {
		return l.finish(intent, domain.OrderOutcome{Status: domain.FillFailed, Err: err}, start)
	}

	octx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	res, err := l.poster.PostOrder(octx, order, domain.OrderTypeFOK)

	var out domain.OrderOutcome
	switch {
	case err != nil && timedOut(octx, err):
		out = domain.OrderOutcome{
			Status: domain.FillNotFilled,
			Err:    fmt.Errorf("%w after %s: %v", domain.ErrOrderTimeout, l.timeout, err),
		}
	case err != nil:
		out = domain.OrderOutcome{Status: domain.FillFailed, OrderID: res.OrderID, Err: err}
	case res.Matched():
		out = domain.OrderOutcome{Status: domain.FillFilled, OrderID: res.OrderID}
	default:
		out = domain.OrderOutcome{Status: domain.FillNotFilled, OrderID: res.OrderID}
	}
	return l.finish(intent, out, start)
}

func (l *Live) finish(intent domain.OrderIntent, out domain.OrderOutcome, start time.Time) domain.OrderOutcome {
	out.Latency = time.Since(start)
	attrs := []any{
		slog.String("reason", string(intent.Reason)),
		slog.String("outcome", string(intent.Outcome)),
		slog.String("token", intent.TokenID),
		slog.Float64("amount", intent.AmountUSDC),
		slog.Float64("ask", intent.Price),
		slog.String("status", string(out.Status)),
		slog.String("order_id", out.OrderID),
		slog.Duration("latency", out.Latency),
	}
	switch out.Status {
	case domain.FillFilled:
		l.logger.Warn("order filled", append(attrs, slog.String("event", "FILLED"))...)
	case domain.FillNotFilled:
		l.logger.Warn("order not filled", append(attrs, slog.String("event", "NOT_FILLED"), slog.String("cause", out.Reason()))...)
	default:
		l.logger.Error("order failed", append(attrs, slog.String("error", out.Reason()))...)
	}
	return out
}

// PostLimit implements domain.Quoter with a GTC order.
func (l *Live) PostLimit(ctx context.Context, o domain.LimitOrder) (string, error) {
	order, err := l.builder.Limit(o)
	if err != nil {
		return "", err
	}
	octx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	res, err := l.poster.PostOrder(octx, order, domain.OrderTypeGTC)
	if err != nil {
		return "", err
	}
	return res.OrderID, nil
}

// CancelAll implements domain.Quoter.
func (l *Live) CancelAll(ctx context.Context) error {
	octx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.poster.CancelAll(octx)
}

func timedOut(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
