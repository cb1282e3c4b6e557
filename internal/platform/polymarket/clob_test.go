package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingertjp/polymarket/internal/crypto"
	"github.com/wingertjp/polymarket/internal/domain"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	s, err := crypto.NewSigner(testKey, 137)
	require.NoError(t, err)
	return s
}

func venue(t *testing.T, market APIMarket, events string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "btc-updown-5m-1700000100", r.URL.Query().Get("slug"))
		_, _ = io.WriteString(w, events)
	})
	mux.HandleFunc("/markets/", func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.URL.Path, "/markets/") != market.ConditionID {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(market)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

const listedEvent = `[{"id":"1","title":"Bitcoin Up or Down","slug":"btc-updown-5m-1700000100",
  "active":"true","markets":[{"id":"9","conditionId":"0xcid"}]}]`

func readyMarket() APIMarket {
	return APIMarket{
		ConditionID:     "0xcid",
		EnableOrderBook: true,
		AcceptingOrders: true,
		MinimumTickSize: 0.001,
		Tokens: []APIToken{
			{TokenID: "111", Outcome: "Up"},
			{TokenID: "222", Outcome: "Down"},
		},
	}
}

func TestDiscovery_Resolve(t *testing.T) {
	srv := venue(t, readyMarket(), listedEvent)
	d := NewDiscovery(NewGammaClient(srv.URL, 100), NewClobClient(srv.URL, 100, nil))

	w, err := d.Resolve(context.Background(), "btc-updown-5m-1700000100")
	require.NoError(t, err)
	assert.Equal(t, "0xcid", w.ConditionID)
	assert.Equal(t, "111", w.UpTokenID)
	assert.Equal(t, "222", w.DownTokenID)
	assert.Equal(t, "Bitcoin Up or Down", w.Title)
	assert.InDelta(t, 0.001, w.TickSize, 1e-12)
}

func TestDiscovery_NotListed(t *testing.T) {
	srv := venue(t, readyMarket(), `[]`)
	d := NewDiscovery(NewGammaClient(srv.URL, 100), NewClobClient(srv.URL, 100, nil))

	_, err := d.Resolve(context.Background(), "btc-updown-5m-1700000100")
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestDiscovery_NotAcceptingOrders(t *testing.T) {
	m := readyMarket()
	m.AcceptingOrders = false
	srv := venue(t, m, listedEvent)
	d := NewDiscovery(NewGammaClient(srv.URL, 100), NewClobClient(srv.URL, 100, nil))

	_, err := d.Resolve(context.Background(), "btc-updown-5m-1700000100")
	assert.ErrorIs(t, err, domain.ErrMarketNotReady)
}

func TestDiscovery_MissingToken(t *testing.T) {
	m := readyMarket()
	m.Tokens = m.Tokens[:1]
	srv := venue(t, m, listedEvent)
	d := NewDiscovery(NewGammaClient(srv.URL, 100), NewClobClient(srv.URL, 100, nil))

	_, err := d.Resolve(context.Background(), "btc-updown-5m-1700000100")
	assert.ErrorIs(t, err, domain.ErrMarketNotReady)
}

func TestClob_DeriveAndPostOrder(t *testing.T) {
	signer := testSigner(t)
	var posted NewOrderRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/derive-api-key", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, signer.Address().Hex(), r.Header.Get("POLY_ADDRESS"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		assert.Equal(t, "0", r.Header.Get("POLY_NONCE"))
		_, _ = io.WriteString(w, `{"apiKey":"key-1","secret":"c2VjcmV0","passphrase":"pp"}`)
	})
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key-1", r.Header.Get("POLY_API_KEY"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		_, _ = io.WriteString(w, `{"success":true,"orderID":"0xabc","status":"matched"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClobClient(srv.URL, 100, signer)
	creds, err := c.DeriveAPIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key-1", creds.Key)

	order, err := NewOrderBuilder(signer, "", "", 0, 0.01).MarketBuy("111", 5, 0.94, 0)
	require.NoError(t, err)
	res, err := c.PostOrder(context.Background(), order, domain.OrderTypeFOK)
	require.NoError(t, err)
	assert.True(t, res.Matched())
	assert.Equal(t, "0xabc", res.OrderID)

	assert.Equal(t, "FOK", posted.OrderType)
	assert.Equal(t, "key-1", posted.Owner)
	assert.Equal(t, "BUY", posted.Order.Side)
	assert.Equal(t, "111", posted.Order.TokenID)
	assert.Equal(t, "5000000", posted.Order.MakerAmount)
}

func TestClob_PostOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"errorMsg":"not enough balance"}`)
	}))
	defer srv.Close()

	signer := testSigner(t)
	c := NewClobClient(srv.URL, 100, signer)
	c.SetCreds(crypto.Creds{Key: "k", Secret: "c2VjcmV0", Passphrase: "p"})

	order, err := NewOrderBuilder(signer, "", "", 0, 0.01).MarketBuy("111", 5, 0.5, 0)
	require.NoError(t, err)
	_, err = c.PostOrder(context.Background(), order, domain.OrderTypeFOK)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.ErrorContains(t, err, "not enough balance")
}

func TestClob_RequiresCreds(t *testing.T) {
	c := NewClobClient("http://127.0.0.1:1", 100, testSigner(t))
	err := c.CancelAll(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestClob_TradesPaginates(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/trades", r.URL.Path)
		switch calls.Add(1) {
		case 1:
			assert.Empty(t, r.URL.Query().Get("next_cursor"))
			_, _ = io.WriteString(w, `{"data":[{"id":"t1","market":"0xa","asset_id":"1","price":"0.9","size":"5"}],"next_cursor":"MTA="}`)
		default:
			assert.Equal(t, "MTA=", r.URL.Query().Get("next_cursor"))
			_, _ = io.WriteString(w, `{"data":[{"id":"t2","market":"0xb","asset_id":"2"}],"next_cursor":"LTE="}`)
		}
	}))
	defer srv.Close()

	c := NewClobClient(srv.URL, 100, testSigner(t))
	c.SetCreds(crypto.Creds{Key: "k", Secret: "c2VjcmV0", Passphrase: "p"})

	trades, err := c.Trades(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "t1", trades[0].ID)
	assert.InDelta(t, 0.9, trades[0].ToDomain().Price, 1e-9)
	assert.Equal(t, "t2", trades[1].ID)
}

func TestClob_StatusMapping(t *testing.T) {
	for code, want := range map[int]error{
		http.StatusNotFound:        domain.ErrNotFound,
		http.StatusUnauthorized:    domain.ErrUnauthorized,
		http.StatusTooManyRequests: domain.ErrRateLimited,
		http.StatusBadRequest:      domain.ErrOrderRejected,
	} {
		assert.ErrorIs(t, checkHTTPStatus(code, []byte("x")), want)
	}
	assert.NoError(t, checkHTTPStatus(http.StatusOK, nil))
	assert.Error(t, checkHTTPStatus(http.StatusBadGateway, nil))
}
