package indicators

import (
	"math"

	"paper-trader/internal/models"
)

// FibonacciExtensionRatios is the fixed ordered set of extension ratios used
// to project take-profit targets beyond the swing range.
var FibonacciExtensionRatios = []float64{1.272, 1.618, 2.0, 2.618}

// FibonacciExtensions projects extension levels from a swing-low/swing-high
// range. For longs the levels lie beyond the swing high; for shorts they lie
// beyond the swing low. Levels are returned in ratio order.
func FibonacciExtensions(swingHigh, swingLow float64, side models.Side) []float64 {
	diff := swingHigh - swingLow
	levels := make([]float64, len(FibonacciExtensionRatios))
	for i, ratio := range FibonacciExtensionRatios {
		if side == models.SideLong {
			levels[i] = swingLow + diff*ratio
		} else {
			levels[i] = swingHigh - diff*ratio
		}
	}
	return levels
}

// SwingRange returns the highest high and lowest low over the last lookback
// candles.
func SwingRange(candles []models.Candle, lookback int) (swingHigh, swingLow float64, err error) {
	if lookback <= 0 {
		return 0, 0, ErrInvalidPeriod
	}
	if len(candles) < lookback {
		return 0, 0, ErrInsufficientData
	}
	window := candles[len(candles)-lookback:]
	return highest(highPrices(window)), lowest(lowPrices(window)), nil
}

// SupportResistance scans a lookback window of candles for swing points and
// returns the support/resistance levels nearest to a reference price.
type SupportResistance struct {
	lookback int
	// pivotWidth is the number of candles on each side a swing point must
	// dominate.
	pivotWidth int
}

// NewSupportResistance creates a support/resistance scanner.
func NewSupportResistance(lookback, pivotWidth int) *SupportResistance {
	if pivotWidth <= 0 {
		pivotWidth = 2
	}
	return &SupportResistance{lookback: lookback, pivotWidth: pivotWidth}
}

func (s *SupportResistance) Name() string {
	return "SupportResistance"
}

func (s *SupportResistance) Period() int {
	return s.lookback
}

// NearestSupport returns the highest swing low strictly below price within
// the lookback window. When no swing point qualifies it falls back to the
// window's lowest low.
func (s *SupportResistance) NearestSupport(candles []models.Candle, price float64) (float64, error) {
	lows, _, err := s.swingPoints(candles)
	if err != nil {
		return 0, err
	}

	best := math.Inf(-1)
	for _, level := range lows {
		if level < price && level > best {
			best = level
		}
	}
	if math.IsInf(best, -1) {
		window := s.window(candles)
		low := lowest(lowPrices(window))
		if low >= price {
			return 0, ErrInsufficientData
		}
		return low, nil
	}
	return best, nil
}

// NearestResistance returns the lowest swing high strictly above price within
// the lookback window. When no swing point qualifies it falls back to the
// window's highest high.
func (s *SupportResistance) NearestResistance(candles []models.Candle, price float64) (float64, error) {
	_, highs, err := s.swingPoints(candles)
	if err != nil {
		return 0, err
	}

	best := math.Inf(1)
	for _, level := range highs {
		if level > price && level < best {
			best = level
		}
	}
	if math.IsInf(best, 1) {
		window := s.window(candles)
		high := highest(highPrices(window))
		if high <= price {
			return 0, ErrInsufficientData
		}
		return high, nil
	}
	return best, nil
}

func (s *SupportResistance) window(candles []models.Candle) []models.Candle {
	if s.lookback > 0 && len(candles) > s.lookback {
		return candles[len(candles)-s.lookback:]
	}
	return candles
}

// swingPoints finds local extrema: a swing low is a low below its pivotWidth
// neighbours on both sides, a swing high the mirror image.
func (s *SupportResistance) swingPoints(candles []models.Candle) (lows, highs []float64, err error) {
	window := s.window(candles)
	if len(window) < 2*s.pivotWidth+1 {
		return nil, nil, ErrInsufficientData
	}

	for i := s.pivotWidth; i < len(window)-s.pivotWidth; i++ {
		isLow, isHigh := true, true
		for j := i - s.pivotWidth; j <= i+s.pivotWidth; j++ {
			if j == i {
				continue
			}
			if window[j].Low <= window[i].Low {
				isLow = false
			}
			if window[j].High >= window[i].High {
				isHigh = false
			}
		}
		if isLow {
			lows = append(lows, window[i].Low)
		}
		if isHigh {
			highs = append(highs, window[i].High)
		}
	}
	return lows, highs, nil
}
