package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jooniper-hub/tv-bot/internal/events"
	"github.com/jooniper-hub/tv-bot/internal/metrics"
	exchange "github.com/jooniper-hub/tv-bot/pkg/exchanges/common"
)

// ErrOrderFailed matches every submission that exhausted its attempts.
var ErrOrderFailed = errors.New("order failed")

// OrderFailedError is the terminal result of a submission: no order is known
// to have been placed, so callers must not record a fill.
type OrderFailedError struct {
	Symbol   string
	Side     exchange.Side
	Qty      float64
	ClientID string
	Attempts int
	Err      error // last attempt's error
}

func (e *OrderFailedError) Error() string {
	return fmt.Sprintf("order %s %s %v failed after %d attempt(s): %v", e.Side, e.Symbol, e.Qty, e.Attempts, e.Err)
}

func (e *OrderFailedError) Unwrap() error { return e.Err }

func (e *OrderFailedError) Is(target error) bool { return target == ErrOrderFailed }

// Policy bounds the retries of one submission.
type Policy struct {
	MaxAttempts    int
	Backoff        time.Duration // fixed wait between attempts
	AttemptTimeout time.Duration // per signed request
}

// DefaultPolicy is three attempts one second apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Backoff: time.Second, AttemptTimeout: 10 * time.Second}
}

// Executor sends market orders to a gateway with bounded retry.
type Executor struct {
	Gateway exchange.Gateway
	Policy  Policy
	Bus     *events.Bus
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

// NewExecutor builds an executor; bus, metrics and log may be nil. A zero
// Policy makes a single attempt.
func NewExecutor(gw exchange.Gateway, policy Policy, bus *events.Bus, stats *metrics.Metrics, log *zap.Logger) *Executor {
	return &Executor{
		Gateway: gw,
		Policy:  policy,
		Bus:     bus,
		Metrics: stats,
		Log:     log,
	}
}

func newClientOrderID() string {
	return "tv" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Submit places a market order. Every attempt reuses one client order id so
// the exchange rejects a duplicate of an attempt that did land. After
// MaxAttempts failures, or when ctx ends, it returns *OrderFailedError.
func (e *Executor) Submit(ctx context.Context, symbol string, side exchange.Side, qty float64) (exchange.OrderResult, error) {
	return e.submit(ctx, exchange.OrderRequest{Symbol: symbol, Side: side, Qty: qty})
}

// Reduce is Submit with reduceOnly set, for closing an existing position.
func (e *Executor) Reduce(ctx context.Context, symbol string, side exchange.Side, qty float64) (exchange.OrderResult, error) {
	return e.submit(ctx, exchange.OrderRequest{Symbol: symbol, Side: side, Qty: qty, ReduceOnly: true})
}

func (e *Executor) submit(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	req.Type = exchange.OrderTypeMarket
	req.ClientID = newClientOrderID()
	symbol, side, qty := req.Symbol, req.Side, req.Qty
	maxAttempts := e.Policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	log := e.log().With(
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("qty", qty),
		zap.Bool("reduce_only", req.ReduceOnly),
		zap.String("client_id", req.ClientID),
	)
	e.Bus.Publish(events.EventOrderSubmitted, events.OrderEvent{
		Symbol: symbol, Side: string(side), Qty: qty, ClientID: req.ClientID,
	})

	start := time.Now()
	var lastErr error
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		res, err := e.attempt(ctx, req)
		e.Metrics.OrderAttempt(err == nil)
		if err == nil {
			log.Info("order filled",
				zap.Int("attempt", attempts),
				zap.String("order_id", res.ExchangeOrderID),
				zap.String("status", string(res.Status)),
				zap.Float64("avg_price", res.AvgPrice))
			e.Metrics.Order(string(side), true, time.Since(start))
			e.Bus.Publish(events.EventOrderFilled, events.OrderEvent{
				Symbol: symbol, Side: string(side), Qty: qty, ClientID: req.ClientID,
				OrderID: res.ExchangeOrderID, AvgPrice: res.AvgPrice, Attempts: attempts,
			})
			return res, nil
		}
		lastErr = err
		log.Warn("order attempt failed", zap.Int("attempt", attempts), zap.Error(err))

		if attempts >= maxAttempts || !e.wait(ctx) {
			break
		}
	}

	failed := &OrderFailedError{
		Symbol:   symbol,
		Side:     side,
		Qty:      qty,
		ClientID: req.ClientID,
		Attempts: attempts,
		Err:      lastErr,
	}
	log.Error("order failed", zap.Int("attempts", attempts), zap.Error(lastErr))
	e.Metrics.Order(string(side), false, time.Since(start))
	e.Bus.Publish(events.EventOrderFailed, events.OrderEvent{
		Symbol: symbol, Side: string(side), Qty: qty, ClientID: req.ClientID,
		Attempts: attempts, Error: lastErr.Error(),
	})
	return exchange.OrderResult{}, failed
}

func (e *Executor) attempt(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if e.Policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Policy.AttemptTimeout)
		defer cancel()
	}
	res, err := e.Gateway.SubmitOrder(ctx, req)
	if errors.Is(err, exchange.ErrDuplicateClientID) {
		res, err = e.lookup(ctx, req, err)
	}
	if err != nil {
		return res, err
	}
	switch res.Status {
	case exchange.StatusRejected, exchange.StatusExpired, exchange.StatusCanceled:
		return res, fmt.Errorf("order %s ended %s", res.ExchangeOrderID, res.Status)
	}
	return res, nil
}

// lookup resolves a duplicate client id rejection: an earlier attempt of
// this submission reached the venue, and its fill is the result.
func (e *Executor) lookup(ctx context.Context, req exchange.OrderRequest, dupErr error) (exchange.OrderResult, error) {
	q, ok := e.Gateway.(exchange.OrderQuerier)
	if !ok {
		return exchange.OrderResult{}, dupErr
	}
	res, err := q.QueryOrder(ctx, req.Symbol, req.ClientID)
	if err != nil {
		return exchange.OrderResult{}, fmt.Errorf("%w (lookup: %v)", dupErr, err)
	}
	if res.Status != exchange.StatusFilled {
		return res, fmt.Errorf("%w (earlier attempt is %s)", dupErr, res.Status)
	}
	e.log().Info("earlier attempt found filled",
		zap.String("symbol", req.Symbol),
		zap.String("client_id", req.ClientID),
		zap.String("order_id", res.ExchangeOrderID))
	return res, nil
}

// wait sleeps for the backoff; false when ctx ended first.
func (e *Executor) wait(ctx context.Context) bool {
	if e.Policy.Backoff <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(e.Policy.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (e *Executor) log() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}
