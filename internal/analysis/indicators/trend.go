package indicators

import (
	"paper-trader/internal/models"
)

// ParabolicSAR calculates the Parabolic Stop and Reverse indicator.
type ParabolicSAR struct {
	afStart float64
	afStep  float64
	afMax   float64
}

// NewParabolicSAR creates a new Parabolic SAR indicator. The conventional
// parameters are 0.02, 0.02, 0.2.
func NewParabolicSAR(afStart, afStep, afMax float64) *ParabolicSAR {
	return &ParabolicSAR{
		afStart: afStart,
		afStep:  afStep,
		afMax:   afMax,
	}
}

func (p *ParabolicSAR) Name() string {
	return "ParabolicSAR"
}

func (p *ParabolicSAR) Period() int {
	return 2
}

// Calculate returns the SAR series and the trend direction per candle
// (1 = bullish, -1 = bearish).
func (p *ParabolicSAR) Calculate(candles []models.Candle) (sar []float64, direction []float64, err error) {
	if len(candles) < 2 {
		return nil, nil, ErrInsufficientData
	}

	n := len(candles)
	sar = make([]float64, n)
	direction = make([]float64, n)

	isUpTrend := candles[1].Close > candles[0].Close
	af := p.afStart
	var ep float64

	if isUpTrend {
		sar[0] = candles[0].Low
		ep = candles[0].High
		direction[0] = 1
	} else {
		sar[0] = candles[0].High
		ep = candles[0].Low
		direction[0] = -1
	}

	for i := 1; i < n; i++ {
		if isUpTrend {
			sar[i] = sar[i-1] + af*(ep-sar[i-1])
			sar[i] = minf(sar[i], candles[i-1].Low)
			if i >= 2 {
				sar[i] = minf(sar[i], candles[i-2].Low)
			}

			if candles[i].Low < sar[i] {
				isUpTrend = false
				sar[i] = ep
				ep = candles[i].Low
				af = p.afStart
			} else if candles[i].High > ep {
				ep = candles[i].High
				af = minf(af+p.afStep, p.afMax)
			}
		} else {
			sar[i] = sar[i-1] + af*(ep-sar[i-1])
			sar[i] = maxf(sar[i], candles[i-1].High)
			if i >= 2 {
				sar[i] = maxf(sar[i], candles[i-2].High)
			}

			if candles[i].High > sar[i] {
				isUpTrend = true
				sar[i] = ep
				ep = candles[i].High
				af = p.afStart
			} else if candles[i].Low < ep {
				ep = candles[i].Low
				af = minf(af+p.afStep, p.afMax)
			}
		}

		if isUpTrend {
			direction[i] = 1
		} else {
			direction[i] = -1
		}
	}

	return sar, direction, nil
}

// Last returns the final SAR value for the candle series.
func (p *ParabolicSAR) Last(candles []models.Candle) (float64, error) {
	sar, _, err := p.Calculate(candles)
	if err != nil {
		return 0, err
	}
	return sar[len(sar)-1], nil
}
