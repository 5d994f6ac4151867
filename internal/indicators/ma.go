package indicators

// SMA is the mean of the last period values, or 0 when there are fewer.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// WilderSmooth folds value into prev with Wilder's 1/period weighting,
// the recurrence behind ATR and RSI averages.
func WilderSmooth(prev, value float64, period int) float64 {
	p := float64(period)
	return (prev*(p-1) + value) / p
}
