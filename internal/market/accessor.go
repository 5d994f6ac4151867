package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jooniper-hub/tv-bot/internal/indicators"
	marketbinance "github.com/jooniper-hub/tv-bot/pkg/market/binance"
)

// ErrTransientFetch marks a failed price or candle fetch. Callers skip the
// current tick or request and try again later.
var ErrTransientFetch = errors.New("transient market data fetch failure")

// FetchError carries the failing operation and symbol.
type FetchError struct {
	Op     string // "price" or "candles"
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrTransientFetch }

// Source is the exchange-facing market data client.
type Source interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]marketbinance.Kline, error)
}

// Options tune the accessor.
type Options struct {
	Interval string        // kline interval, e.g. "15m"
	Period   int           // ATR period
	Timeout  time.Duration // per fetch
}

// Accessor fetches prices, closed candles and ATR for a symbol.
type Accessor struct {
	src  Source
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

// NewAccessor wraps src.
func NewAccessor(src Source, opts Options, log *zap.Logger) *Accessor {
	if opts.Interval == "" {
		opts.Interval = "15m"
	}
	if opts.Period <= 0 {
		opts.Period = 14
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Accessor{src: src, opts: opts, log: log, now: time.Now}
}

// Price returns the latest price for symbol.
func (a *Accessor) Price(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	price, err := a.src.GetPrice(ctx, symbol)
	if err != nil {
		return 0, &FetchError{Op: "price", Symbol: symbol, Err: err}
	}
	return price, nil
}

// Candles returns the last Period+1 closed candles, oldest first. The
// still-forming candle is dropped.
func (a *Accessor) Candles(ctx context.Context, symbol string) ([]indicators.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	want := a.opts.Period + 1
	klines, err := a.src.GetKlines(ctx, symbol, a.opts.Interval, want+1)
	if err != nil {
		return nil, &FetchError{Op: "candles", Symbol: symbol, Err: err}
	}

	nowMs := a.now().UnixMilli()
	if n := len(klines); n > 0 && klines[n-1].CloseTime > nowMs {
		klines = klines[:n-1]
	}
	if len(klines) > want {
		klines = klines[len(klines)-want:]
	}

	out := make([]indicators.Candle, len(klines))
	for i, k := range klines {
		out[i] = indicators.Candle{High: k.High, Low: k.Low, Close: k.Close}
	}
	return out, nil
}

// ATR computes the current average true range for symbol.
func (a *Accessor) ATR(ctx context.Context, symbol string) (float64, error) {
	candles, err := a.Candles(ctx, symbol)
	if err != nil {
		return 0, err
	}
	atr, err := indicators.ATR(candles, a.opts.Period)
	if err != nil {
		return 0, fmt.Errorf("atr %s (%d candles): %w", symbol, len(candles), err)
	}
	a.log.Debug("atr computed", zap.String("symbol", symbol), zap.Float64("atr", atr))
	return atr, nil
}
