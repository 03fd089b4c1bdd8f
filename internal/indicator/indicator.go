package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// EMA returns the exponential moving average of values, seeded with the first value.
// The output has the same length as the input. Periods below 1 are treated as 1.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	if period < 1 {
		period = 1
	}

	k := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// Stdev returns the sample standard deviation (n-1 divisor), or 0 for fewer than two values
func Stdev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(n-1))
}

// Slope returns the least-squares slope of values against their index 0..n-1.
// The sums are taken around the means, so a constant input gives exactly 0.
func Slope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	xMean := float64(n-1) / 2
	var sumY float64
	for _, y := range values {
		sumY += y
	}
	yMean := sumY / float64(n)

	var num, den float64
	for i, y := range values {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// RSI returns the latest Wilder RSI over period. ok is false when there are not
// enough values to fill the lookback.
func RSI(values []float64, period int) (float64, bool) {
	if period < 2 || len(values) < period+1 {
		return 0, false
	}
	series := talib.Rsi(values, period)
	last := series[len(series)-1]
	if math.IsNaN(last) || math.IsInf(last, 0) {
		return 0, false
	}
	return last, true
}
