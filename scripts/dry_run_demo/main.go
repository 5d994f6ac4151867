package main

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jooniper-hub/tv-bot/internal/dispatch"
	"github.com/jooniper-hub/tv-bot/internal/events"
	"github.com/jooniper-hub/tv-bot/internal/monitor"
	"github.com/jooniper-hub/tv-bot/internal/order"
	"github.com/jooniper-hub/tv-bot/internal/risk"
	"github.com/jooniper-hub/tv-bot/pkg/logger"
)

// dry_run_demo walks the signal dispatcher and the trailing monitor through a
// scripted price path with the paper gateway. It does not touch the exchange.
//
// Usage:
//   go run ./scripts/dry_run_demo
//
// It will:
//   1) Open a LONG, trail it up, and let a pullback force-close it.
//   2) Send duplicate and opposite entries to show they are ignored.
//   3) Open and exit a SHORT by signal.

// scriptedMarket serves a settable price and a fixed ATR.
type scriptedMarket struct {
	mu    sync.Mutex
	price float64
	atr   float64
}

func (m *scriptedMarket) set(p float64) {
	m.mu.Lock()
	m.price = p
	m.mu.Unlock()
}

func (m *scriptedMarket) Price(context.Context, string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.price, nil
}

func (m *scriptedMarket) ATR(context.Context, string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.atr, nil
}

const symbol = "ETHUSDT"

func main() {
	log := logger.Must("info", "console")
	defer func() { _ = log.Sync() }()
	log.Info("=== DRY-RUN demo starting ===")

	ctx := context.Background()
	mkt := &scriptedMarket{price: 3000, atr: 20}
	bus := events.NewBus()
	stream, unsub := bus.Subscribe(256, events.EventPositionOpened, events.EventPositionClosed, events.EventThresholdsTightened)
	defer unsub()

	executor := order.NewExecutor(order.NewPaperGateway(mkt, 0, log), order.DefaultPolicy(), bus, nil, log)
	ledger := risk.NewLedger()
	factors := risk.Factors{StopLoss: 0.7, Trail: 1.5, Precision: 2}

	d := &dispatch.Dispatcher{
		Ledger: ledger,
		Orders: executor,
		Market: mkt,
		Params: func(string) dispatch.Params { return dispatch.Params{Qty: 0.1, Factors: factors} },
		Bus:    bus,
		Log:    log,
	}
	m := &monitor.Trailing{
		Ledger:  ledger,
		Orders:  executor,
		Market:  mkt,
		Factors: func(string) risk.Factors { return factors },
		Bus:     bus,
		Log:     log,
	}

	signal := func(s string) {
		res, err := d.Handle(ctx, s, symbol)
		if err != nil {
			log.Error("signal failed", zap.String("signal", s), zap.Error(err))
			return
		}
		log.Info(res.Message())
	}

	log.Info("[SCENARIO 1] LONG trailed up then stopped out")
	signal("LONG_ENTRY")
	for _, p := range []float64{3020, 3060, 3110, 3090, 3078} {
		mkt.set(p)
		m.Tick(ctx)
		rec := ledger.Get(symbol)
		log.Info("tick", zap.Float64("price", p), zap.Bool("active", rec.Active),
			zap.Float64("stop", rec.StopLoss), zap.Float64("trail", rec.Trail))
	}

	log.Info("[SCENARIO 2] Duplicate and opposite entries")
	mkt.set(3050)
	signal("SHORT_ENTRY")
	signal("SHORT_ENTRY")
	signal("LONG_ENTRY")
	signal("LONG_EXIT")

	log.Info("[SCENARIO 3] SHORT exited by signal")
	mkt.set(3010)
	m.Tick(ctx)
	signal("SHORT_EXIT")
	signal("SHORT_EXIT")

	unsub()
	for env := range stream {
		log.Info("event", zap.String("event", string(env.Event)), zap.Any("payload", env.Payload))
	}
	log.Info("=== DRY-RUN demo finished ===")
}
