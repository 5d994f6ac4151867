package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jooniper-hub/tv-bot/internal/events"
	"github.com/jooniper-hub/tv-bot/internal/metrics"
	"github.com/jooniper-hub/tv-bot/internal/risk"
	exchange "github.com/jooniper-hub/tv-bot/pkg/exchanges/common"
)

// Orders closes positions with reduce-only market orders.
type Orders interface {
	Reduce(ctx context.Context, symbol string, side exchange.Side, qty float64) (exchange.OrderResult, error)
}

// Market supplies the live price and ATR of a symbol.
type Market interface {
	Price(ctx context.Context, symbol string) (float64, error)
	ATR(ctx context.Context, symbol string) (float64, error)
}

// Trailing polls every active position, tightens its thresholds from the
// latest ATR and force-closes it when the price crosses one of them.
type Trailing struct {
	Ledger   *risk.Ledger
	Orders   Orders
	Market   Market
	Factors  func(symbol string) risk.Factors
	Interval time.Duration
	Bus      *events.Bus
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

// Run ticks until ctx is cancelled.
func (m *Trailing) Run(ctx context.Context) {
	interval := m.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log().Info("trailing monitor started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			m.log().Info("trailing monitor stopped")
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick evaluates every active position once. A failure on one symbol never
// stops the others.
func (m *Trailing) Tick(ctx context.Context) {
	start := time.Now()
	active := m.Ledger.Active()
	for _, rec := range active {
		if ctx.Err() != nil {
			return
		}
		m.check(ctx, rec.Symbol)
	}
	m.Metrics.Tick(len(active), time.Since(start))
}

func (m *Trailing) check(ctx context.Context, symbol string) {
	log := m.log().With(zap.String("symbol", symbol))
	defer func() {
		if r := recover(); r != nil {
			log.Error("monitor panic", zap.Any("panic", r))
		}
	}()

	price, err := m.Market.Price(ctx, symbol)
	if err != nil {
		m.Metrics.FetchFailure("price")
		log.Warn("price unavailable, skipping", zap.Error(err))
		return
	}

	atr, err := m.Market.ATR(ctx, symbol)
	if err != nil {
		m.Metrics.FetchFailure("atr")
		log.Warn("atr unavailable, keeping thresholds", zap.Error(err))
	} else {
		m.tighten(symbol, price, atr, log)
	}

	m.enforce(ctx, symbol, price, log)
}

func (m *Trailing) tighten(symbol string, price, atr float64, log *zap.Logger) {
	var f risk.Factors
	if m.Factors != nil {
		f = m.Factors(symbol)
	}
	var changed bool
	rec, _ := m.Ledger.Update(symbol, func(tx *risk.Tx) error {
		cur := tx.Record()
		if !cur.Active {
			return nil
		}
		stop, trail := risk.Levels(cur.Side, price, atr, f)
		changed = tx.Tighten(stop, trail)
		return nil
	})
	if !changed {
		return
	}
	log.Info("thresholds tightened",
		zap.Float64("price", price),
		zap.Float64("atr", atr),
		zap.Float64("stop", rec.StopLoss),
		zap.Float64("trail", rec.Trail))
	m.Metrics.Tightened(symbol)
	m.Bus.Publish(events.EventThresholdsTightened, events.PositionEvent{
		Symbol: symbol, Side: string(rec.Side), Entry: rec.EntryPrice,
		StopLoss: rec.StopLoss, Trail: rec.Trail, Price: price,
	})
}

// enforce re-reads the record under its lock, so a position closed by a
// webhook exit in the meantime is not closed twice.
func (m *Trailing) enforce(ctx context.Context, symbol string, price float64, log *zap.Logger) {
	var (
		closed risk.Record
		breach risk.Breach
	)
	_, err := m.Ledger.Update(symbol, func(tx *risk.Tx) error {
		cur := tx.Record()
		breach = cur.Breached(price)
		if breach == risk.BreachNone {
			return nil
		}
		if _, err := m.Orders.Reduce(ctx, symbol, cur.Side.ExitOrder(), cur.Qty); err != nil {
			return fmt.Errorf("force close on %s: %w", breach, err)
		}
		closed = cur
		tx.Close(string(breach))
		return nil
	})
	if err != nil {
		log.Error("forced exit failed, will retry next tick", zap.Float64("price", price), zap.Error(err))
		return
	}
	if closed.Symbol == "" {
		return
	}
	log.Warn("position force-closed",
		zap.String("reason", string(breach)),
		zap.String("side", string(closed.Side)),
		zap.Float64("price", price),
		zap.Float64("entry", closed.EntryPrice),
		zap.Float64("stop", closed.StopLoss),
		zap.Float64("trail", closed.Trail))
	m.Metrics.ForcedExit(symbol, string(breach))
	m.Bus.Publish(events.EventPositionClosed, events.PositionEvent{
		Symbol: symbol, Side: string(closed.Side), Entry: closed.EntryPrice,
		StopLoss: closed.StopLoss, Trail: closed.Trail, Price: price, Reason: string(breach),
	})
}

func (m *Trailing) log() *zap.Logger {
	if m.Log == nil {
		return zap.NewNop()
	}
	return m.Log
}
