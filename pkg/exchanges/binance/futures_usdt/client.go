package futures_usdt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jooniper-hub/tv-bot/pkg/exchanges/common"
)

const (
	mainnetURL = "https://fapi.binance.com"
	testnetURL = "https://testnet.binancefuture.com"

	codeDuplicateClientID = -4116
)

// Config holds Binance USDT-M futures credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64         // ms
	Timeout    time.Duration // per HTTP request
	BaseURL    string        // overrides the mainnet/testnet URL when set
	Logger     *zap.Logger
}

// Client handles Binance USDT-M futures.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter
	log         *zap.Logger
}

// APIError is a non-2xx response from the exchange.
type APIError struct {
	HTTPStatus int
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance usdt futures %s status %d: code=%d msg=%s", e.Endpoint, e.HTTPStatus, e.Code, e.Msg)
}

// Is matches common.ErrDuplicateClientID for the duplicated clientOrderId
// rejection.
func (e *APIError) Is(target error) bool {
	return target == common.ErrDuplicateClientID && e.Code == codeDuplicateClientID
}

// NewClient creates a new USDT-M futures client.
func NewClient(cfg Config) *Client {
	base := mainnetURL
	if cfg.Testnet {
		base = testnetURL
	}
	if cfg.BaseURL != "" {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With(zap.String("venue", "binance-usdtfut")),
	}
	c.timeSync = common.NewTimeSync(c.GetServerTime, c.log)
	c.rateLimiter = common.NewRateLimiter(2400, time.Minute, c.log) // 2400 weight/min for futures
	return c
}

// StartTimeSync keeps the server clock offset fresh until ctx is done.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.timeSync.Start(ctx)
}

func (c *Client) now() int64 {
	if c.timeSync != nil && c.timeSync.Offset() != 0 {
		return c.timeSync.Now()
	}
	return time.Now().UnixMilli()
}

func (c *Client) requireCredentials() error {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return errors.New("binance usdt futures: API key/secret required")
	}
	return nil
}

// SubmitOrder places a MARKET order. Each call is independently timestamped
// and signed.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if err := c.requireCredentials(); err != nil {
		return common.OrderResult{}, err
	}
	if req.Type == "" {
		req.Type = common.OrderTypeMarket
	}
	if req.Type != common.OrderTypeMarket {
		return common.OrderResult{}, fmt.Errorf("binance usdt futures: unsupported order type %s", req.Type)
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", string(req.Type))
	params.Set("quantity", formatFloat(req.Qty))
	params.Set("newOrderRespType", "RESULT")
	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	params.Set("timestamp", strconv.FormatInt(c.now(), 10))

	body, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return common.OrderResult{}, err
	}
	var resp orderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order: %w", err)
	}
	return resp.result(), nil
}

// QueryOrder looks an order up by the client order id it was placed with.
func (c *Client) QueryOrder(ctx context.Context, symbol, clientID string) (common.OrderResult, error) {
	if err := c.requireCredentials(); err != nil {
		return common.OrderResult{}, err
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientID)
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	params.Set("timestamp", strconv.FormatInt(c.now(), 10))

	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/order", params)
	if err != nil {
		return common.OrderResult{}, err
	}
	var resp orderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order: %w", err)
	}
	return resp.result(), nil
}

// SetLeverage sets initial leverage for a symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := c.requireCredentials(); err != nil {
		return err
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	params.Set("timestamp", strconv.FormatInt(c.now(), 10))
	_, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/leverage", params)
	return err
}

// GetServerTime fetches futures server time in ms.
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fapi/v1/time", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("server time status %d: %s", resp.StatusCode, string(b))
	}
	var res struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return 0, err
	}
	return res.ServerTime, nil
}

// doSigned signs params in encoded (key-sorted) order, appends the signature
// as the last parameter and sends the request.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if c.rateLimiter.ShouldDelay() {
		used, limit, _ := c.rateLimiter.Usage()
		c.log.Warn("request weight near limit, sending anyway",
			zap.String("path", path), zap.Int("used", used), zap.Int("limit", limit))
	}

	encoded := params.Encode()
	encoded += "&signature=" + sign(encoded, c.cfg.APISecret)

	var (
		req *http.Request
		err error
	)
	endpoint := c.baseURL + path
	switch method {
	case http.MethodGet, http.MethodDelete:
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	c.rateLimiter.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if res.StatusCode >= 300 {
		apiErr := &APIError{HTTPStatus: res.StatusCode, Endpoint: method + " " + path}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Msg == "" {
			apiErr.Msg = string(body)
		}
		return nil, apiErr
	}
	return body, nil
}

type orderResp struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`
}

func (r orderResp) result() common.OrderResult {
	return common.OrderResult{
		ExchangeOrderID: strconv.FormatInt(r.OrderID, 10),
		ClientID:        r.ClientOrderID,
		Status:          mapStatus(r.Status),
		ExecutedQty:     parseFloat(r.ExecutedQty),
		AvgPrice:        parseFloat(r.AvgPrice),
	}
}
