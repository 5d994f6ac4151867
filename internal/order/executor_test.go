package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jooniper-hub/tv-bot/internal/events"
	"github.com/jooniper-hub/tv-bot/internal/metrics"
	exchange "github.com/jooniper-hub/tv-bot/pkg/exchanges/common"
)

// scriptedGateway fails the first `fail` calls, then fills.
type scriptedGateway struct {
	mu    sync.Mutex
	fail  int
	calls []exchange.OrderRequest
}

func (g *scriptedGateway) SubmitOrder(_ context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if len(g.calls) <= g.fail {
		return exchange.OrderResult{}, errors.New("502 bad gateway")
	}
	return exchange.OrderResult{ExchangeOrderID: "1", Status: exchange.StatusFilled, AvgPrice: 3000, ExecutedQty: req.Qty}, nil
}

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Backoff: time.Millisecond, AttemptTimeout: time.Second}
}

func TestSubmitRetriesThenFills(t *testing.T) {
	gw := &scriptedGateway{fail: 2}
	e := NewExecutor(gw, fastPolicy(3), nil, nil, nil)

	res, err := e.Submit(context.Background(), "ETHUSDT", exchange.SideBuy, 0.5)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if res.AvgPrice != 3000 {
		t.Fatalf("AvgPrice=%v, expected 3000", res.AvgPrice)
	}
	if len(gw.calls) != 3 {
		t.Fatalf("calls=%d, expected 3", len(gw.calls))
	}
	id := gw.calls[0].ClientID
	if id == "" || len(id) > 36 {
		t.Fatalf("client id %q invalid", id)
	}
	for _, c := range gw.calls {
		if c.ClientID != id {
			t.Fatalf("client id changed across retries: %q vs %q", c.ClientID, id)
		}
		if c.Type != exchange.OrderTypeMarket || c.Side != exchange.SideBuy || c.Qty != 0.5 {
			t.Fatalf("request=%+v", c)
		}
	}
}

func TestSubmitExhaustsAttempts(t *testing.T) {
	gw := &scriptedGateway{fail: 10}
	bus := events.NewBus()
	failedCh, unsub := bus.Subscribe(4, events.EventOrderFailed)
	defer unsub()
	reg := prometheus.NewRegistry()
	stats := metrics.New(reg)
	e := NewExecutor(gw, fastPolicy(3), bus, stats, nil)

	_, err := e.Submit(context.Background(), "ETHUSDT", exchange.SideSell, 1)
	if !errors.Is(err, ErrOrderFailed) {
		t.Fatalf("err=%v, expected ErrOrderFailed", err)
	}
	var failed *OrderFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err=%T, expected *OrderFailedError", err)
	}
	if failed.Attempts != 3 || failed.Err == nil || failed.Symbol != "ETHUSDT" {
		t.Fatalf("failed=%+v", failed)
	}
	if len(gw.calls) != 3 {
		t.Fatalf("calls=%d, expected 3", len(gw.calls))
	}
	if len(failedCh) != 1 {
		t.Fatalf("order.failed events=%d, expected 1", len(failedCh))
	}
	if got := testutil.ToFloat64(stats.OrdersTotal.WithLabelValues("SELL", "failed")); got != 1 {
		t.Fatalf("orders failed counter=%v, expected 1", got)
	}
	if got := testutil.ToFloat64(stats.OrderAttempts.WithLabelValues("failed")); got != 3 {
		t.Fatalf("failed attempts counter=%v, expected 3", got)
	}
}

func TestSubmitTreatsRejectedStatusAsFailure(t *testing.T) {
	gw := gatewayFunc(func(context.Context, exchange.OrderRequest) (exchange.OrderResult, error) {
		return exchange.OrderResult{ExchangeOrderID: "9", Status: exchange.StatusExpired}, nil
	})
	e := NewExecutor(gw, fastPolicy(2), nil, nil, nil)
	if _, err := e.Submit(context.Background(), "ETHUSDT", exchange.SideBuy, 1); !errors.Is(err, ErrOrderFailed) {
		t.Fatalf("err=%v, expected ErrOrderFailed", err)
	}
}

func TestSubmitStopsOnContextCancel(t *testing.T) {
	gw := &scriptedGateway{fail: 10}
	e := NewExecutor(gw, Policy{MaxAttempts: 5, Backoff: time.Hour}, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.Submit(ctx, "ETHUSDT", exchange.SideBuy, 1)
	var failed *OrderFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err=%v, expected *OrderFailedError", err)
	}
	if failed.Attempts != 1 {
		t.Fatalf("Attempts=%d, expected 1", failed.Attempts)
	}
}

type gatewayFunc func(context.Context, exchange.OrderRequest) (exchange.OrderResult, error)

func (f gatewayFunc) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	return f(ctx, req)
}

type staticPrice float64

func (p staticPrice) Price(context.Context, string) (float64, error) { return float64(p), nil }

func TestPaperGatewayFillsAtPrice(t *testing.T) {
	gw := NewPaperGateway(staticPrice(2500), 0, nil)
	res, err := gw.SubmitOrder(context.Background(), exchange.OrderRequest{Symbol: "ETHUSDT", Side: exchange.SideSell, Qty: 2, ClientID: "c"})
	if err != nil {
		t.Fatalf("SubmitOrder returned error: %v", err)
	}
	if res.Status != exchange.StatusFilled || res.AvgPrice != 2500 || res.ExecutedQty != 2 || res.ClientID != "c" {
		t.Fatalf("result=%+v", res)
	}

	slipped := NewPaperGateway(staticPrice(1000), 10, nil)
	res, _ = slipped.SubmitOrder(context.Background(), exchange.OrderRequest{Symbol: "ETHUSDT", Side: exchange.SideBuy, Qty: 1})
	if res.AvgPrice < 1000 || res.AvgPrice > 1001 {
		t.Fatalf("AvgPrice=%v, expected within 10bps above 1000", res.AvgPrice)
	}

	if _, err := gw.SubmitOrder(context.Background(), exchange.OrderRequest{Symbol: "ETHUSDT", Qty: 0}); err == nil {
		t.Fatalf("expected error for zero quantity")
	}
}

func TestReduceSetsReduceOnly(t *testing.T) {
	gw := &scriptedGateway{}
	e := NewExecutor(gw, fastPolicy(1), nil, nil, nil)
	if _, err := e.Reduce(context.Background(), "ETHUSDT", exchange.SideSell, 1); err != nil {
		t.Fatalf("Reduce returned error: %v", err)
	}
	if len(gw.calls) != 1 || !gw.calls[0].ReduceOnly {
		t.Fatalf("calls=%+v, expected one reduce-only order", gw.calls)
	}
}

// landedGateway times out on the first attempt although the order reached
// the venue; later attempts are rejected as duplicates.
type landedGateway struct {
	mu      sync.Mutex
	calls   []exchange.OrderRequest
	queried []string
	status  exchange.OrderStatus
}

func (g *landedGateway) SubmitOrder(_ context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if len(g.calls) == 1 {
		return exchange.OrderResult{}, context.DeadlineExceeded
	}
	return exchange.OrderResult{}, fmt.Errorf("code=-4116: %w", exchange.ErrDuplicateClientID)
}

func (g *landedGateway) QueryOrder(_ context.Context, symbol, clientID string) (exchange.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queried = append(g.queried, clientID)
	return exchange.OrderResult{ExchangeOrderID: "77", ClientID: clientID, Status: g.status, ExecutedQty: 0.1, AvgPrice: 3001}, nil
}

func TestSubmitResolvesDuplicateToEarlierFill(t *testing.T) {
	gw := &landedGateway{status: exchange.StatusFilled}
	e := NewExecutor(gw, fastPolicy(3), nil, nil, nil)

	res, err := e.Submit(context.Background(), "ETHUSDT", exchange.SideBuy, 0.1)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if res.ExchangeOrderID != "77" || res.AvgPrice != 3001 {
		t.Fatalf("result=%+v, expected order 77 at 3001", res)
	}
	if len(gw.calls) != 2 {
		t.Fatalf("calls=%d, expected 2", len(gw.calls))
	}
	if len(gw.queried) != 1 || gw.queried[0] != gw.calls[0].ClientID {
		t.Fatalf("queried=%v, expected %q", gw.queried, gw.calls[0].ClientID)
	}
}

func TestSubmitDuplicateNotFilledFails(t *testing.T) {
	gw := &landedGateway{status: exchange.StatusCanceled}
	e := NewExecutor(gw, fastPolicy(3), nil, nil, nil)

	_, err := e.Submit(context.Background(), "ETHUSDT", exchange.SideBuy, 0.1)
	if !errors.Is(err, ErrOrderFailed) {
		t.Fatalf("err=%v, expected ErrOrderFailed", err)
	}
	if !errors.Is(err, exchange.ErrDuplicateClientID) {
		t.Fatalf("err=%v, expected the duplicate rejection as cause", err)
	}
	if len(gw.calls) != 3 {
		t.Fatalf("calls=%d, expected 3", len(gw.calls))
	}
}

func TestZeroValueExecutorSubmits(t *testing.T) {
	gw := &scriptedGateway{fail: 5}
	e := &Executor{Gateway: gw}

	_, err := e.Submit(context.Background(), "ETHUSDT", exchange.SideBuy, 1)
	var failed *OrderFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err=%v, expected *OrderFailedError", err)
	}
	if failed.Attempts != 1 || failed.ClientID == "" {
		t.Fatalf("failed=%+v, expected one attempt with a client id", failed)
	}
}
