package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/wingertjp/polymarket/internal/crypto"
	"github.com/wingertjp/polymarket/internal/domain"
)

// DefaultClobURL is the production CLOB API root.
const DefaultClobURL = "https://clob.polymarket.com"

// endCursor marks the last page of a cursor-paginated CLOB listing.
const endCursor = "LTE="

// ClobClient is the REST client for the CLOB: market lookup, order
// placement and cancellation, and trade history.
type ClobClient struct {
	rest   restClient
	signer *crypto.Signer

	mu    sync.RWMutex
	creds *crypto.Creds
}

// NewClobClient creates a CLOB client. signer may be nil for read-only use
// (market lookup during discovery).
func NewClobClient(baseURL string, rps float64, signer *crypto.Signer) *ClobClient {
	if baseURL == "" {
		baseURL = DefaultClobURL
	}
	return &ClobClient{
		rest:   newRESTClient(baseURL, rps, 20*time.Second),
		signer: signer,
	}
}

// SetCreds installs L2 credentials obtained elsewhere.
func (c *ClobClient) SetCreds(creds crypto.Creds) {
	c.mu.Lock()
	c.creds = &creds
	c.mu.Unlock()
}

// Market returns the CLOB record for a condition id.
func (c *ClobClient) Market(ctx context.Context, conditionID string) (APIMarket, error) {
	var m APIMarket
	if err := c.rest.getJSON(ctx, "/markets/"+url.PathEscape(conditionID), nil, &m); err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/clob: market %s: %w", conditionID, err)
	}
	return m, nil
}

// DeriveAPIKey runs the L1 flow: it signs a ClobAuth message and exchanges
// it for L2 credentials, which the client keeps for later calls.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (crypto.Creds, error) {
	if c.signer == nil {
		return crypto.Creds{}, fmt.Errorf("polymarket/clob: signer required for auth: %w", domain.ErrUnauthorized)
	}
	ts := time.Now().Unix()
	const nonce = 0
	sig, err := c.signer.SignAuth(ts, nonce)
	if err != nil {
		return crypto.Creds{}, fmt.Errorf("polymarket/clob: sign auth: %w", err)
	}

	headers := map[string]string{
		"POLY_ADDRESS":   c.signer.Address().Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": strconv.FormatInt(ts, 10),
		"POLY_NONCE":     strconv.Itoa(nonce),
	}
	var resp apiKeyResponse
	if err := c.rest.getJSON(ctx, "/auth/derive-api-key", headers, &resp); err != nil {
		return crypto.Creds{}, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}
	key := resp.APIKey
	if key == "" {
		key = resp.Key
	}
	if key == "" || resp.Secret == "" || resp.Passphrase == "" {
		return crypto.Creds{}, fmt.Errorf("polymarket/clob: derive api key: incomplete credentials: %w", domain.ErrUnauthorized)
	}
	creds := crypto.Creds{Key: key, Secret: resp.Secret, Passphrase: resp.Passphrase}
	c.SetCreds(creds)
	return creds, nil
}

// PostOrder submits a signed order. A response with success=false maps to
// ErrOrderRejected.
func (c *ClobClient) PostOrder(ctx context.Context, order *SignedOrder, orderType domain.OrderType) (APIOrderResult, error) {
	creds, err := c.l2()
	if err != nil {
		return APIOrderResult{}, err
	}
	req, err := order.Request(creds.Key, orderType)
	if err != nil {
		return APIOrderResult{}, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: marshal order: %w", err)
	}

	respBody, err := c.authed(ctx, creds, http.MethodPost, "/order", "", body)
	if err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}
	var res APIOrderResult
	if err := json.Unmarshal(respBody, &res); err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !res.Success {
		return res, fmt.Errorf("polymarket/clob: %w: %s", domain.ErrOrderRejected, res.ErrorMsg)
	}
	return res, nil
}

// CancelAll cancels every open order of the authenticated wallet.
func (c *ClobClient) CancelAll(ctx context.Context) error {
	creds, err := c.l2()
	if err != nil {
		return err
	}
	if _, err := c.authed(ctx, creds, http.MethodDelete, "/cancel-all", "", nil); err != nil {
		return fmt.Errorf("polymarket/clob: cancel all: %w", err)
	}
	return nil
}

// Trades returns the wallet's full fill history, following next_cursor
// until the end marker. The venue answers either with a bare array or with
// a paginated {data, next_cursor} object.
func (c *ClobClient) Trades(ctx context.Context) ([]APITrade, error) {
	creds, err := c.l2()
	if err != nil {
		return nil, err
	}

	var all []APITrade
	cursor := ""
	for page := 0; page < 100; page++ {
		query := ""
		if cursor != "" {
			query = "next_cursor=" + url.QueryEscape(cursor)
		}
		body, err := c.authed(ctx, creds, http.MethodGet, "/data/trades", query, nil)
		if err != nil {
			return nil, fmt.Errorf("polymarket/clob: trades: %w", err)
		}

		var list []APITrade
		if err := json.Unmarshal(body, &list); err == nil {
			return append(all, list...), nil
		}
		var p tradesPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("polymarket/clob: decode trades: %w", err)
		}
		all = append(all, p.Data...)
		if p.NextCursor == "" || p.NextCursor == endCursor || len(p.Data) == 0 {
			return all, nil
		}
		cursor = p.NextCursor
	}
	return all, nil
}

// TradeRecords returns the fill history as domain records.
func (c *ClobClient) TradeRecords(ctx context.Context) ([]domain.TradeRecord, error) {
	trades, err := c.Trades(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TradeRecord, 0, len(trades))
	for i := range trades {
		out = append(out, trades[i].ToDomain())
	}
	return out, nil
}

func (c *ClobClient) l2() (crypto.Creds, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.creds == nil || c.signer == nil {
		return crypto.Creds{}, fmt.Errorf("polymarket/clob: no api credentials: %w", domain.ErrUnauthorized)
	}
	return *c.creds, nil
}

// authed signs path (without query) per the L2 scheme and sends the request.
func (c *ClobClient) authed(ctx context.Context, creds crypto.Creds, method, path, query string, body []byte) ([]byte, error) {
	headers := creds.L2Headers(c.signer.Address().Hex(), method, path, string(body))
	full := path
	if query != "" {
		full += "?" + query
	}
	return c.rest.do(ctx, method, full, body, headers)
}
