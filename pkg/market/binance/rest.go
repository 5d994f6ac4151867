package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client wraps public REST market data for Binance USDT-M futures.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a REST client; testnet switches base URLs.
func NewClient(testnet bool, timeout time.Duration) *Client {
	base := "https://fapi.binance.com"
	if testnet {
		base = "https://testnet.binancefuture.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    base,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// GetKlines fetches the most recent klines, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.do(ctx, "/fapi/v1/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	klines := make([]Kline, 0, len(raw))
	for _, item := range raw {
		// open time, o, h, l, c, volume, close time, ...
		if len(item) < 7 {
			continue
		}
		klines = append(klines, Kline{
			Symbol:    symbol,
			OpenTime:  toInt64(item[0]),
			Open:      toFloat(item[1]),
			High:      toFloat(item[2]),
			Low:       toFloat(item[3]),
			Close:     toFloat(item[4]),
			Volume:    toFloat(item[5]),
			CloseTime: toInt64(item[6]),
		})
	}
	return klines, nil
}

// GetPrice fetches the latest traded price for symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.do(ctx, "/fapi/v1/ticker/price", params)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode ticker price: %w", err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("invalid ticker price %q for %s", resp.Price, symbol)
	}
	return price, nil
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := strings.TrimRight(c.BaseURL, "/") + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance %s status %d: %s", path, res.StatusCode, string(body))
	}
	return body, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case json.Number:
		i, _ := t.Int64()
		return i
	default:
		return 0
	}
}
