// Package indicators provides the pure technical calculations used for
// position sizing and exit level placement.
package indicators

import (
	"errors"
	"math"

	"paper-trader/internal/models"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
)

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

func highPrices(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func lowPrices(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

func highest(values []float64) float64 {
	h := math.Inf(-1)
	for _, v := range values {
		if v > h {
			h = v
		}
	}
	return h
}

func lowest(values []float64) float64 {
	l := math.Inf(1)
	for _, v := range values {
		if v < l {
			l = v
		}
	}
	return l
}

// trueRange computes the true range for a candle given its predecessor.
func trueRange(current, previous models.Candle) float64 {
	hl := current.High - current.Low
	hc := math.Abs(current.High - previous.Close)
	lc := math.Abs(current.Low - previous.Close)
	return maxf(hl, maxf(hc, lc))
}
