// Package binance implements the exchange contracts against the Binance
// spot REST API.
package binance

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/finbeat/macdbot/exchange"
	"github.com/finbeat/macdbot/market"
)

const (
	// ProdURL is the live spot API endpoint.
	ProdURL = "https://api.binance.com"
	// TestnetURL is the spot testnet endpoint.
	TestnetURL = "https://testnet.binance.vision"

	// codeInsufficientBalance is Binance's rejection code for an account
	// that cannot fund the order.
	codeInsufficientBalance = -2010
)

// Client is a minimal Binance spot REST client covering what the decision
// engine needs: klines, balances, symbol filters and market orders.
type Client struct {
	baseURL    string
	apiKey     string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a client. testnet selects the spot testnet endpoint.
func NewClient(apiKey, secretKey string, testnet bool) *Client {
	baseURL := ProdURL
	if testnet {
		baseURL = TestnetURL
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientWithBaseURL points the client at an arbitrary endpoint; used by
// tests against an httptest server.
func NewClientWithBaseURL(apiKey, secretKey, baseURL string) *Client {
	c := NewClient(apiKey, secretKey, false)
	c.baseURL = baseURL
	return c
}

// apiError is the error body Binance returns for refused requests.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Candles fetches klines oldest-first. startTime 0 requests the most recent
// window the exchange will serve for the given limit.
func (c *Client) Candles(ctx context.Context, symbol, interval string, startTime int64, limit int) ([]market.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if startTime > 0 {
		params.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.get(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw [][]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}

	candles := make([]market.Candle, 0, len(raw))
	for i, row := range raw {
		candle, err := market.ParseKline(row)
		if err != nil {
			return nil, fmt.Errorf("binance: kline %d: %w", i, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// accountResponse is the subset of /api/v3/account the engine reads.
type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// FreeBalance returns the spendable balance of one asset.
func (c *Client) FreeBalance(ctx context.Context, asset string) (float64, error) {
	body, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return 0, err
	}

	var acct accountResponse
	if err := json.Unmarshal(body, &acct); err != nil {
		return 0, fmt.Errorf("binance: decode account: %w", err)
	}
	for _, b := range acct.Balances {
		if b.Asset == asset {
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return 0, fmt.Errorf("binance: balance %s: %w", asset, err)
			}
			return free, nil
		}
	}
	return 0, nil
}

// exchangeInfoResponse is the subset of /api/v3/exchangeInfo the engine
// reads: per-symbol LOT_SIZE and PRICE_FILTER constraints.
type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType string `json:"filterType"`
			MinPrice   string `json:"minPrice"`
			MinQty     string `json:"minQty"`
		} `json:"filters"`
	} `json:"symbols"`
}

// SymbolParams fetches the symbol's minimum lot and price constraints.
func (c *Client) SymbolParams(ctx context.Context, symbol string) (exchange.Params, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/api/v3/exchangeInfo", params)
	if err != nil {
		return exchange.Params{}, err
	}

	var info exchangeInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return exchange.Params{}, fmt.Errorf("binance: decode exchangeInfo: %w", err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		var out exchange.Params
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				out.MinQty, err = strconv.ParseFloat(f.MinQty, 64)
			case "PRICE_FILTER":
				out.MinPrice, err = strconv.ParseFloat(f.MinPrice, 64)
			}
			if err != nil {
				return exchange.Params{}, fmt.Errorf("binance: filter %s: %w", f.FilterType, err)
			}
		}
		return out, nil
	}
	return exchange.Params{}, fmt.Errorf("binance: symbol %s not in exchangeInfo", symbol)
}

// orderResponse is the FULL response of /api/v3/order.
type orderResponse struct {
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
	Status      string `json:"status"`
	Fills       []struct {
		Price string `json:"price"`
		Qty   string `json:"qty"`
	} `json:"fills"`
}

// BuyMarket places a market buy for qty of the base asset.
func (c *Client) BuyMarket(ctx context.Context, symbol string, qty float64) (exchange.OrderResult, error) {
	return c.marketOrder(ctx, symbol, "BUY", qty)
}

// SellMarket places a market sell for qty of the base asset.
func (c *Client) SellMarket(ctx context.Context, symbol string, qty float64) (exchange.OrderResult, error) {
	return c.marketOrder(ctx, symbol, "SELL", qty)
}

func (c *Client) marketOrder(ctx context.Context, symbol, side string, qty float64) (exchange.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))
	params.Set("newOrderRespType", "FULL")

	body, err := c.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return refusedOrder(apiErr), nil
		}
		return exchange.OrderResult{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return exchange.OrderResult{}, fmt.Errorf("binance: decode order: %w", err)
	}

	result := exchange.OrderResult{Status: exchange.Filled, Message: resp.Status}
	if result.OrigQty, err = strconv.ParseFloat(resp.OrigQty, 64); err != nil {
		return exchange.OrderResult{}, fmt.Errorf("binance: origQty: %w", err)
	}
	if result.ExecutedQty, err = strconv.ParseFloat(resp.ExecutedQty, 64); err != nil {
		return exchange.OrderResult{}, fmt.Errorf("binance: executedQty: %w", err)
	}
	for _, f := range resp.Fills {
		price, err := strconv.ParseFloat(f.Price, 64)
		if err != nil {
			return exchange.OrderResult{}, fmt.Errorf("binance: fill price: %w", err)
		}
		fqty, err := strconv.ParseFloat(f.Qty, 64)
		if err != nil {
			return exchange.OrderResult{}, fmt.Errorf("binance: fill qty: %w", err)
		}
		result.Fills = append(result.Fills, exchange.Fill{Price: price, Qty: fqty})
	}
	return result, nil
}

// refusedOrder maps an exchange refusal onto the engine's order statuses.
func refusedOrder(apiErr *APIError) exchange.OrderResult {
	status := exchange.Rejected
	if apiErr.Code == codeInsufficientBalance {
		status = exchange.InsufficientBalance
	}
	return exchange.OrderResult{Status: status, Message: apiErr.Msg}
}

// APIError is a refusal from the exchange, as opposed to a transport
// failure.
type APIError struct {
	Code       int
	Msg        string
	HTTPStatus int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: API error %d (http %d): %s", e.Code, e.HTTPStatus, e.Msg)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("binance: create request: %w", err)
	}
	return c.do(req)
}

// signedRequest attaches the timestamp and HMAC-SHA256 signature the
// account and order endpoints require.
func (c *Client) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := params.Encode()

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	query += "&signature=" + hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query, nil)
	if err != nil {
		return nil, fmt.Errorf("binance: create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance: execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("binance: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != 0 {
			return nil, &APIError{Code: apiErr.Code, Msg: apiErr.Msg, HTTPStatus: resp.StatusCode}
		}
		return nil, fmt.Errorf("binance: http %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
