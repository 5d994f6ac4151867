package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jooniper-hub/tv-bot/internal/events"
	"github.com/jooniper-hub/tv-bot/internal/metrics"
	"github.com/jooniper-hub/tv-bot/internal/risk"
	exchange "github.com/jooniper-hub/tv-bot/pkg/exchanges/common"
)

// Orders submits market orders with bounded retry.
type Orders interface {
	Submit(ctx context.Context, symbol string, side exchange.Side, qty float64) (exchange.OrderResult, error)
	Reduce(ctx context.Context, symbol string, side exchange.Side, qty float64) (exchange.OrderResult, error)
}

// Market supplies the live price and ATR of a symbol.
type Market interface {
	Price(ctx context.Context, symbol string) (float64, error)
	ATR(ctx context.Context, symbol string) (float64, error)
}

// Params are the per-symbol trading parameters.
type Params struct {
	Qty     float64
	Factors risk.Factors
}

// ParamsFunc resolves Params for a symbol.
type ParamsFunc func(symbol string) Params

// Outcome is what a handled signal did.
type Outcome string

const (
	OutcomeOpened          Outcome = "opened"
	OutcomeAlreadyOpen     Outcome = "already_open"
	OutcomeIgnoredOpposite Outcome = "ignored_opposite"
	OutcomeClosed          Outcome = "closed"
	OutcomeNoPosition      Outcome = "no_position"
)

// Result describes a handled signal.
type Result struct {
	Signal  Signal      `json:"signal"`
	Symbol  string      `json:"symbol"`
	Outcome Outcome     `json:"outcome"`
	OrderID string      `json:"order_id,omitempty"`
	Record  risk.Record `json:"position"`
}

// Message is a one-line summary for webhook callers.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeOpened:
		if !r.Record.Armed() {
			return fmt.Sprintf("%s %s opened at %v without stops", r.Symbol, r.Record.Side, r.Record.EntryPrice)
		}
		return fmt.Sprintf("%s %s opened at %v (stop %v, trail %v)", r.Symbol, r.Record.Side, r.Record.EntryPrice, r.Record.StopLoss, r.Record.Trail)
	case OutcomeAlreadyOpen:
		return fmt.Sprintf("%s %s already open", r.Symbol, r.Signal.Side())
	case OutcomeIgnoredOpposite:
		return fmt.Sprintf("%s ignored: %s %s position open", r.Signal, r.Symbol, r.Record.Side)
	case OutcomeClosed:
		return fmt.Sprintf("%s %s closed", r.Symbol, r.Signal.Side())
	case OutcomeNoPosition:
		return fmt.Sprintf("no %s %s position to exit", r.Symbol, r.Signal.Side())
	}
	return string(r.Outcome)
}

// Dispatcher turns webhook signals into orders and ledger transitions. Each
// symbol is handled under its ledger lock, so the order and the record change
// it causes are atomic with respect to the monitor and concurrent webhooks.
type Dispatcher struct {
	Ledger  *risk.Ledger
	Orders  Orders
	Market  Market
	Params  ParamsFunc
	Bus     *events.Bus
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

// Handle executes raw for symbol. Unknown signals fail with ErrUnknownSignal
// and never touch the ledger.
func (d *Dispatcher) Handle(ctx context.Context, raw, symbol string) (Result, error) {
	sig, err := ParseSignal(raw)
	if err != nil {
		d.Metrics.Signal("unknown", "rejected")
		d.log().Warn("unknown signal", zap.String("symbol", symbol), zap.String("signal", raw))
		return Result{}, err
	}

	var res Result
	if sig.IsEntry() {
		res, err = d.enter(ctx, sig, symbol)
	} else {
		res, err = d.exit(ctx, sig, symbol)
	}
	if err != nil {
		d.Metrics.Signal(string(sig), "error")
		return res, err
	}

	d.Metrics.Signal(string(sig), string(res.Outcome))
	d.Bus.Publish(events.EventSignalReceived, events.SignalEvent{
		Symbol: symbol, Signal: string(sig), Result: string(res.Outcome),
	})
	return res, nil
}

func (d *Dispatcher) enter(ctx context.Context, sig Signal, symbol string) (Result, error) {
	side := sig.Side()
	p := d.Params(symbol)
	log := d.log().With(zap.String("symbol", symbol), zap.String("signal", string(sig)))
	res := Result{Signal: sig, Symbol: symbol}

	rec, err := d.Ledger.Update(symbol, func(tx *risk.Tx) error {
		cur := tx.Record()
		if cur.Active {
			if cur.Side == side {
				res.Outcome = OutcomeAlreadyOpen
			} else {
				res.Outcome = OutcomeIgnoredOpposite
			}
			return nil
		}

		price, err := d.Market.Price(ctx, symbol)
		if err != nil {
			return fmt.Errorf("price before entry: %w", err)
		}
		fill, err := d.Orders.Submit(ctx, symbol, side.EntryOrder(), p.Qty)
		if err != nil {
			return err
		}
		res.OrderID = fill.ExchangeOrderID

		entry := price
		if fill.AvgPrice > 0 {
			entry = fill.AvgPrice
		}
		qty := p.Qty
		if fill.ExecutedQty > 0 {
			qty = fill.ExecutedQty
		}

		var stop, trail float64
		atr, err := d.Market.ATR(ctx, symbol)
		if err != nil {
			log.Error("position opened without stops until the monitor arms them",
				zap.Float64("price", entry), zap.Error(err))
		} else {
			stop, trail = risk.Levels(side, entry, atr, p.Factors)
		}
		if _, err := tx.Open(side, qty, entry, stop, trail); err != nil {
			return err
		}
		res.Outcome = OutcomeOpened
		return nil
	})
	res.Record = rec
	if err != nil {
		log.Error("entry failed", zap.Error(err))
		return res, err
	}

	switch res.Outcome {
	case OutcomeOpened:
		log.Info("position opened",
			zap.Float64("price", rec.EntryPrice),
			zap.Float64("stop", rec.StopLoss),
			zap.Float64("trail", rec.Trail))
		d.Bus.Publish(events.EventPositionOpened, positionEvent(rec, rec.EntryPrice, string(sig)))
	case OutcomeIgnoredOpposite:
		log.Warn("entry ignored, opposite position open", zap.String("open_side", string(rec.Side)))
	default:
		log.Info("entry ignored, position already open")
	}
	return res, nil
}

func (d *Dispatcher) exit(ctx context.Context, sig Signal, symbol string) (Result, error) {
	side := sig.Side()
	log := d.log().With(zap.String("symbol", symbol), zap.String("signal", string(sig)))
	res := Result{Signal: sig, Symbol: symbol}

	var closed risk.Record
	rec, err := d.Ledger.Update(symbol, func(tx *risk.Tx) error {
		cur := tx.Record()
		if !cur.Active || cur.Side != side {
			res.Outcome = OutcomeNoPosition
			return nil
		}
		fill, err := d.Orders.Reduce(ctx, symbol, side.ExitOrder(), cur.Qty)
		if err != nil {
			return err
		}
		res.OrderID = fill.ExchangeOrderID
		closed = cur
		tx.Close(string(sig))
		res.Outcome = OutcomeClosed
		return nil
	})
	res.Record = rec
	if err != nil {
		log.Error("exit failed", zap.Error(err))
		return res, err
	}

	if res.Outcome == OutcomeClosed {
		log.Info("position closed by signal",
			zap.Float64("entry", closed.EntryPrice),
			zap.Float64("stop", closed.StopLoss),
			zap.Float64("trail", closed.Trail))
		d.Bus.Publish(events.EventPositionClosed, positionEvent(closed, 0, string(sig)))
	} else {
		log.Info("exit ignored, no matching position")
	}
	return res, nil
}

func (d *Dispatcher) log() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

func positionEvent(r risk.Record, price float64, reason string) events.PositionEvent {
	return events.PositionEvent{
		Symbol:   r.Symbol,
		Side:     string(r.Side),
		Entry:    r.EntryPrice,
		StopLoss: r.StopLoss,
		Trail:    r.Trail,
		Price:    price,
		Reason:   reason,
	}
}
