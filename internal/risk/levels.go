package risk

import "github.com/shopspring/decimal"

// Factors are the ATR multipliers for one symbol.
type Factors struct {
	StopLoss  float64 // SL_FACTOR
	Trail     float64 // TRAIL_FACTOR
	Precision int32   // price decimals the exchange accepts
}

// Levels computes the stop-loss and trailing thresholds for a position on
// side at price given the current ATR:
//
//	LONG:  stop = price - atr*SL, trail = price - atr*TRAIL
//	SHORT: stop = price + atr*SL, trail = price + atr*TRAIL
//
// Arithmetic runs in decimal and only the results are rounded to Precision.
func Levels(side Side, price, atr float64, f Factors) (stop, trail float64) {
	p := decimal.NewFromFloat(price)
	a := decimal.NewFromFloat(atr)
	slOff := a.Mul(decimal.NewFromFloat(f.StopLoss))
	trOff := a.Mul(decimal.NewFromFloat(f.Trail))

	var s, t decimal.Decimal
	switch side {
	case SideLong:
		s, t = p.Sub(slOff), p.Sub(trOff)
	case SideShort:
		s, t = p.Add(slOff), p.Add(trOff)
	default:
		return 0, 0
	}
	return s.Round(f.Precision).InexactFloat64(), t.Round(f.Precision).InexactFloat64()
}
