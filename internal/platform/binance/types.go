package binance

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/wingertjp/polymarket/internal/domain"
)

// Envelope is the combined-stream wrapper around every payload.
type Envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// DepthMessage is a partial book depth payload (`<symbol>@depth5@100ms`).
type DepthMessage struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// AggTradeMessage is an aggregated trade payload (`<symbol>@aggTrade`).
type AggTradeMessage struct {
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// KlineMessage is a candlestick payload (`<symbol>@kline_<interval>`).
type KlineMessage struct {
	Kline struct {
		StartTime int64  `json:"t"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// ToDomain converts a depth payload to a DepthUpdate.
func (m DepthMessage) ToDomain(at time.Time) (domain.DepthUpdate, error) {
	bids, err := parseLevels(m.Bids)
	if err != nil {
		return domain.DepthUpdate{}, fmt.Errorf("binance: bids: %w", err)
	}
	asks, err := parseLevels(m.Asks)
	if err != nil {
		return domain.DepthUpdate{}, fmt.Errorf("binance: asks: %w", err)
	}
	return domain.DepthUpdate{Bids: bids, Asks: asks, At: at}, nil
}

// ToDomain converts a trade payload to a TradePrint.
func (m AggTradeMessage) ToDomain() (domain.TradePrint, error) {
	price, err := parsePrice(m.Price)
	if err != nil {
		return domain.TradePrint{}, fmt.Errorf("binance: trade price %q: %w", m.Price, err)
	}
	qty, err := strconv.ParseFloat(m.Quantity, 64)
	if err != nil || math.IsNaN(qty) || math.IsInf(qty, 0) || qty < 0 {
		qty = 0
	}
	return domain.TradePrint{
		Price:    price,
		Quantity: qty,
		Time:     time.UnixMilli(m.TradeTime),
	}, nil
}

func parseLevels(raw [][2]string) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, l := range raw {
		p, err := parsePrice(l[0])
		if err != nil {
			return nil, err
		}
		q, err := strconv.ParseFloat(l[1], 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(q) || math.IsInf(q, 0) || q < 0 {
			return nil, fmt.Errorf("invalid size %q", l[1])
		}
		out = append(out, domain.PriceLevel{Price: p, Size: q})
	}
	return out, nil
}

// parsePrice accepts finite, strictly positive prices only.
func parsePrice(s string) (float64, error) {
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return p, nil
}
