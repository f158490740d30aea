package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbeat/macdbot/exchange"
)

func TestNewClient(t *testing.T) {
	assert.Equal(t, ProdURL, NewClient("k", "s", false).baseURL)
	assert.Equal(t, TestnetURL, NewClient("k", "s", true).baseURL)
}

func TestCandles(t *testing.T) {
	const payload = `[
		[1700000000000,"42000.10","42100.00","41900.00","42050.55","12.5",1700000059999,"525000.12",345,"6.25","262000.01","0"],
		[1700000060000,"42050.55","42200.00","42000.00","42150.00","10.0",1700000119999,"421500.00",280,"5.00","210000.00","0"]
	]`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "120", r.URL.Query().Get("limit"))
		w.Write([]byte(payload))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("", "", server.URL)
	candles, err := c.Candles(context.Background(), "BTCUSDT", "1m", 0, 120)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, int64(1700000000000), candles[0].OpenTime)
	assert.Equal(t, 42050.55, candles[0].Close)
	assert.Equal(t, candles[0].CloseTime+1, candles[1].OpenTime)
}

func TestCandlesRejectsMalformedRow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[1700000000000,"42000.10","42100.00"]]`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("", "", server.URL)
	_, err := c.Candles(context.Background(), "BTCUSDT", "1m", 0, 1)
	require.Error(t, err)
}

func TestBuyMarketFilled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))
		q := r.URL.Query()
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "MARKET", q.Get("type"))
		assert.Equal(t, "0.01", q.Get("quantity"))
		assert.NotEmpty(t, q.Get("signature"))
		assert.NotEmpty(t, q.Get("timestamp"))

		w.Write([]byte(`{
			"origQty":"0.01000000",
			"executedQty":"0.01000000",
			"status":"FILLED",
			"fills":[{"price":"42000.00","qty":"0.01000000"}]
		}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("test-key", "test-secret", server.URL)
	res, err := c.BuyMarket(context.Background(), "BTCUSDT", 0.01)
	require.NoError(t, err)

	assert.Equal(t, exchange.Filled, res.Status)
	assert.Equal(t, 0.01, res.ExecutedQty)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, 42000.0, res.Fills[0].Price)
}

func TestSellMarketInsufficientBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", "s", server.URL)
	res, err := c.SellMarket(context.Background(), "BTCUSDT", 1)
	require.NoError(t, err, "a refusal is a result, not an error")
	assert.Equal(t, exchange.InsufficientBalance, res.Status)
	assert.Contains(t, res.Message, "insufficient balance")
}

func TestMarketOrderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1013,"msg":"Filter failure: LOT_SIZE"}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", "s", server.URL)
	res, err := c.BuyMarket(context.Background(), "BTCUSDT", 0.00001)
	require.NoError(t, err)
	assert.Equal(t, exchange.Rejected, res.Status)
	assert.Contains(t, res.Message, "LOT_SIZE")
}

func TestSymbolParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","filters":[
			{"filterType":"PRICE_FILTER","minPrice":"0.01000000"},
			{"filterType":"LOT_SIZE","minQty":"0.00010000"}
		]}]}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("", "", server.URL)
	p, err := c.SymbolParams(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.0001, p.MinQty)
	assert.Equal(t, 0.01, p.MinPrice)
}

func TestFreeBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		w.Write([]byte(`{"balances":[
			{"asset":"BTC","free":"0.5","locked":"0"},
			{"asset":"USDT","free":"1250.75","locked":"10"}
		]}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", "s", server.URL)

	free, err := c.FreeBalance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.Equal(t, 1250.75, free)

	free, err = c.FreeBalance(context.Background(), "DOGE")
	require.NoError(t, err)
	assert.Equal(t, 0.0, free, "unknown asset reads as zero balance")
}
