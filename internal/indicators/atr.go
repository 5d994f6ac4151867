package indicators

import (
	"errors"
	"math"
)

var (
	// ErrInsufficientData means the series is shorter than period+1 candles.
	ErrInsufficientData = errors.New("insufficient candle data")
	// ErrInvalidPeriod means period < 1.
	ErrInvalidPeriod = errors.New("invalid indicator period")
)

// Candle is the subset of a kline the volatility math needs.
type Candle struct {
	High  float64
	Low   float64
	Close float64
}

// TrueRange of cur given the previous close.
func TrueRange(cur Candle, prevClose float64) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prevClose), math.Abs(cur.Low-prevClose)))
}

// ATR returns Wilder's average true range over candles (oldest first).
// The seed is the mean of the first period true ranges; every later range is
// folded in with atr = (atr*(period-1) + tr) / period.
func ATR(candles []Candle, period int) (float64, error) {
	if period < 1 {
		return 0, ErrInvalidPeriod
	}
	if len(candles) < period+1 {
		return 0, ErrInsufficientData
	}

	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, TrueRange(candles[i], candles[i-1].Close))
	}

	atr := SMA(trs[:period], period)
	for _, tr := range trs[period:] {
		atr = WilderSmooth(atr, tr, period)
	}
	return atr, nil
}
