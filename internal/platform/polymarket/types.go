package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/wingertjp/polymarket/internal/domain"
)

// flexBool unmarshals from a JSON bool or a "true"/"false" string; Gamma
// is not consistent about which it sends.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIEvent is a Gamma event; an Up/Down window is one event with a single
// market.
type APIEvent struct {
	ID      string           `json:"id"`
	Title   string           `json:"title"`
	Slug    string           `json:"slug"`
	Active  flexBool         `json:"active"`
	Closed  bool             `json:"closed"`
	EndDate string           `json:"endDate"`
	Markets []APIEventMarket `json:"markets"`
}

// APIEventMarket is the market stub nested inside an event.
type APIEventMarket struct {
	ID          string `json:"id"`
	Question    string `json:"question"`
	ConditionID string `json:"conditionId"`
	Slug        string `json:"slug"`
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIMarket is the CLOB view of a market at /markets/<condition_id>.
type APIMarket struct {
	ConditionID     string     `json:"condition_id"`
	Question        string     `json:"question"`
	MarketSlug      string     `json:"market_slug"`
	EnableOrderBook bool       `json:"enable_order_book"`
	AcceptingOrders bool       `json:"accepting_orders"`
	Active          bool       `json:"active"`
	Closed          bool       `json:"closed"`
	MinimumTickSize float64    `json:"minimum_tick_size"`
	NegRisk         bool       `json:"neg_risk"`
	Tokens          []APIToken `json:"tokens"`
}

// APIToken is one outcome token of a CLOB market.
type APIToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// TokenFor returns the token id whose outcome label matches o.
func (m *APIMarket) TokenFor(o domain.Outcome) string {
	for _, t := range m.Tokens {
		if strings.EqualFold(t.Outcome, string(o)) {
			return t.TokenID
		}
	}
	return ""
}

// OrderPayload is the signed order as the CLOB expects it on the wire.
type OrderPayload struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType uint8  `json:"signatureType"`
	Signature     string `json:"signature"`
}

// NewOrderRequest is the body of POST /order.
type NewOrderRequest struct {
	DeferExec bool         `json:"deferExec"`
	Order     OrderPayload `json:"order"`
	Owner     string       `json:"owner"`
	OrderType string       `json:"orderType"`
}

// APIOrderResult is the response from placing an order.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// Matched reports whether the order filled immediately.
func (r *APIOrderResult) Matched() bool {
	return strings.EqualFold(r.Status, "matched")
}

type apiKeyResponse struct {
	APIKey     string `json:"apiKey"`
	Key        string `json:"key"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// APITrade is one fill from /data/trades.
type APITrade struct {
	ID        string `json:"id"`
	Market    string `json:"market"`
	AssetID   string `json:"asset_id"`
	Outcome   string `json:"outcome"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	MatchTime string `json:"match_time"`
}

// ToDomain converts an APITrade to a domain.TradeRecord.
func (t *APITrade) ToDomain() domain.TradeRecord {
	tr := domain.TradeRecord{
		ID:      t.ID,
		Market:  t.Market,
		AssetID: t.AssetID,
		Outcome: t.Outcome,
		Side:    strings.ToUpper(t.Side),
	}
	tr.Price, _ = strconv.ParseFloat(t.Price, 64)
	tr.Size, _ = strconv.ParseFloat(t.Size, 64)
	tr.MatchTime = parseTimestamp(t.MatchTime)
	return tr
}

type tradesPage struct {
	Data       []APITrade `json:"data"`
	NextCursor string     `json:"next_cursor"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSSubscribe is the market channel subscription payload.
type WSSubscribe struct {
	AssetsIDs     []string `json:"assets_ids"`
	Type          string   `json:"type"`
	CustomFeature bool     `json:"custom_feature_enabled"`
}

// WSEvent covers both message shapes on the market channel: a "book"
// snapshot for one asset, or a batch of price_changes.
type WSEvent struct {
	EventType    string          `json:"event_type"`
	AssetID      string          `json:"asset_id"`
	Market       string          `json:"market"`
	Bids         []WSPriceLevel  `json:"bids"`
	Asks         []WSPriceLevel  `json:"asks"`
	PriceChanges []WSPriceChange `json:"price_changes"`
	Timestamp    string          `json:"timestamp"`
}

// WSPriceLevel is a single level of a book snapshot.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// WSPriceChange is one incremental level update. Size "0" removes the level.
type WSPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
}

// IsBook reports whether the event is a full snapshot.
func (e *WSEvent) IsBook() bool { return e.EventType == "book" }

// BookEvent converts a snapshot into a domain.BookEvent.
func (e *WSEvent) BookEvent() (domain.BookEvent, error) {
	bids, err := parseLevels(e.Bids)
	if err != nil {
		return domain.BookEvent{}, err
	}
	asks, err := parseLevels(e.Asks)
	if err != nil {
		return domain.BookEvent{}, err
	}
	return domain.BookEvent{
		AssetID:  e.AssetID,
		Snapshot: true,
		Bids:     bids,
		Asks:     asks,
		At:       parseTimestamp(e.Timestamp),
	}, nil
}

// ChangeEvents groups price changes per asset, preserving array order
// within each asset.
func (e *WSEvent) ChangeEvents() ([]domain.BookEvent, error) {
	var out []domain.BookEvent
	index := make(map[string]int)
	at := parseTimestamp(e.Timestamp)
	for _, c := range e.PriceChanges {
		side, ok := domain.SideFromWire(c.Side)
		if !ok {
			return nil, &ProtocolError{Reason: "unknown side " + strconv.Quote(c.Side)}
		}
		price, err := strconv.ParseFloat(c.Price, 64)
		if err != nil {
			return nil, &ProtocolError{Reason: "bad price " + strconv.Quote(c.Price)}
		}
		size, err := strconv.ParseFloat(c.Size, 64)
		if err != nil {
			return nil, &ProtocolError{Reason: "bad size " + strconv.Quote(c.Size)}
		}
		assetID := c.AssetID
		if assetID == "" {
			assetID = e.AssetID
		}
		i, seen := index[assetID]
		if !seen {
			i = len(out)
			index[assetID] = i
			out = append(out, domain.BookEvent{AssetID: assetID, At: at})
		}
		out[i].Changes = append(out[i].Changes, domain.PriceChange{
			AssetID: assetID,
			Side:    side,
			Price:   price,
			Size:    size,
		})
	}
	return out, nil
}

// ProtocolError marks a frame that parsed as JSON but violates the
// expected message shape.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "polymarket/ws: protocol: " + e.Reason }

func parseLevels(raw []WSPriceLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, l := range raw {
		p, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			return nil, &ProtocolError{Reason: "bad price " + strconv.Quote(l.Price)}
		}
		s, err := strconv.ParseFloat(l.Size, 64)
		if err != nil {
			return nil, &ProtocolError{Reason: "bad size " + strconv.Quote(l.Size)}
		}
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	return out, nil
}

// parseTimestamp accepts unix seconds, unix milliseconds or RFC 3339 and
// falls back to now.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n)
		}
		return time.Unix(n, 0)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}
