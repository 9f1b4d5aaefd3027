// Package exits computes protective exit levels and evaluates the exit
// lifecycle of open positions.
package exits

import (
	"paper-trader/internal/analysis/indicators"
	"paper-trader/internal/errors"
	"paper-trader/internal/models"
)

// StopParams is one of the per-method stop-loss parameter structs.
type StopParams interface {
	Validate() error
	stopMethod() string
}

// FixedStop places the stop a fixed percentage from entry.
type FixedStop struct {
	Percent float64
}

func (p FixedStop) stopMethod() string { return "fixed" }

func (p FixedStop) Validate() error {
	if p.Percent <= 0 || p.Percent >= 100 {
		return errors.NewValidationError("percent", p.Percent, "must be in (0, 100)")
	}
	return nil
}

// ATRStop places the stop an adaptive multiple of the ATR from entry. The
// multiplier is chosen from the ratio of current ATR to a baseline ATR:
// ratio < 0.9 -> 1.5, ratio >= 1.2 -> 2.5, otherwise 2.0. Boundary
// comparisons are strict-less on the lower bucket and inclusive on the upper.
type ATRStop struct {
	ATR         float64
	BaselineATR float64
}

func (p ATRStop) stopMethod() string { return "atr" }

func (p ATRStop) Validate() error {
	if p.ATR <= 0 {
		return errors.NewValidationError("atr", p.ATR, "must be positive")
	}
	if p.BaselineATR <= 0 {
		return errors.NewValidationError("baselineAtr", p.BaselineATR, "must be positive")
	}
	return nil
}

// Multiplier returns the adaptive ATR multiplier for the volatility ratio.
func (p ATRStop) Multiplier() float64 {
	ratio := p.ATR / p.BaselineATR
	switch {
	case ratio < 0.9:
		return 1.5
	case ratio >= 1.2:
		return 2.5
	default:
		return 2.0
	}
}

// StructureStop places the stop at the nearest support (long) or resistance
// (short) within a lookback window of historical candles.
type StructureStop struct {
	Candles  []models.Candle
	Lookback int
}

func (p StructureStop) stopMethod() string { return "structure" }

func (p StructureStop) Validate() error {
	if p.Lookback <= 0 {
		return errors.NewValidationError("lookback", p.Lookback, "must be positive")
	}
	if len(p.Candles) < p.Lookback {
		return errors.NewValidationError("candles", len(p.Candles), "fewer candles than lookback")
	}
	return nil
}

// SARStop places the stop at the last value of the Parabolic SAR series.
type SARStop struct {
	Candles []models.Candle
	AFStart float64
	AFStep  float64
	AFMax   float64
}

func (p SARStop) stopMethod() string { return "parabolic_sar" }

func (p SARStop) Validate() error {
	if len(p.Candles) < 2 {
		return errors.NewValidationError("candles", len(p.Candles), "need at least 2 candles")
	}
	if p.AFStart <= 0 || p.AFStep <= 0 || p.AFMax < p.AFStart {
		return errors.NewValidationError("accelerationFactor", p.AFStart, "invalid SAR acceleration factors")
	}
	return nil
}

// TakeProfitParams is one of the per-method take-profit parameter structs.
type TakeProfitParams interface {
	Validate() error
	targetMethod() string
}

// FixedTarget is a single target a fixed percentage from entry.
type FixedTarget struct {
	Percent float64
}

func (p FixedTarget) targetMethod() string { return "fixed" }

func (p FixedTarget) Validate() error {
	if p.Percent <= 0 {
		return errors.NewValidationError("percent", p.Percent, "must be positive")
	}
	return nil
}

// TargetLevel is one rung of a multi-level target ladder.
type TargetLevel struct {
	Percent      float64 // distance from entry
	ClosePercent float64 // share of the position to close
}

// MultiTarget is an ordered ladder of partial-close targets. The close
// percentages must sum to exactly 100.
type MultiTarget struct {
	Levels []TargetLevel
}

func (p MultiTarget) targetMethod() string { return "multiple_levels" }

func (p MultiTarget) Validate() error {
	if len(p.Levels) == 0 {
		return errors.NewValidationError("levels", 0, "at least one level required")
	}
	var total float64
	for i, lvl := range p.Levels {
		if lvl.Percent <= 0 {
			return errors.NewValidationError("levels.percent", lvl.Percent, "must be positive")
		}
		if lvl.ClosePercent <= 0 || lvl.ClosePercent > 100 {
			return errors.NewValidationError("levels.closePercent", lvl.ClosePercent, "must be in (0, 100]")
		}
		if i > 0 && lvl.Percent <= p.Levels[i-1].Percent {
			return errors.NewValidationError("levels", lvl.Percent, "must be sorted by ascending distance")
		}
		total += lvl.ClosePercent
	}
	if total != 100 {
		return errors.NewValidationError("levels.closePercent", total, "close percentages must sum to 100")
	}
	return nil
}

// RiskRewardTarget places the target so that reward distance is Ratio times
// the risk distance between entry and stop.
type RiskRewardTarget struct {
	Ratio    float64
	StopLoss float64
}

func (p RiskRewardTarget) targetMethod() string { return "risk_reward" }

func (p RiskRewardTarget) Validate() error {
	if p.Ratio <= 0 {
		return errors.NewValidationError("ratio", p.Ratio, "must be positive")
	}
	if p.StopLoss <= 0 {
		return errors.NewValidationError("stopLoss", p.StopLoss, "must be positive")
	}
	return nil
}

// FibonacciTarget projects targets at the fixed extension ratios beyond the
// swing range, split evenly across levels.
type FibonacciTarget struct {
	SwingHigh float64
	SwingLow  float64
}

func (p FibonacciTarget) targetMethod() string { return "fibonacci" }

func (p FibonacciTarget) Validate() error {
	if p.SwingHigh <= p.SwingLow {
		return errors.NewValidationError("swingHigh", p.SwingHigh, "must exceed swing low")
	}
	if p.SwingLow <= 0 {
		return errors.NewValidationError("swingLow", p.SwingLow, "must be positive")
	}
	return nil
}

// Calculator computes initial stop-loss and take-profit levels.
type Calculator struct{}

// NewCalculator creates an exit level calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// StopLoss computes the initial stop level for a position entered at
// entryPrice on the given side.
func (c *Calculator) StopLoss(entryPrice float64, side models.Side, params StopParams) (float64, error) {
	if entryPrice <= 0 {
		return 0, errors.NewValidationError("entryPrice", entryPrice, "must be positive")
	}
	if err := params.Validate(); err != nil {
		return 0, err
	}

	switch p := params.(type) {
	case FixedStop:
		if side == models.SideLong {
			return entryPrice * (1 - p.Percent/100), nil
		}
		return entryPrice * (1 + p.Percent/100), nil

	case ATRStop:
		distance := p.ATR * p.Multiplier()
		if side == models.SideLong {
			return entryPrice - distance, nil
		}
		return entryPrice + distance, nil

	case StructureStop:
		sr := indicators.NewSupportResistance(p.Lookback, 2)
		if side == models.SideLong {
			return sr.NearestSupport(p.Candles, entryPrice)
		}
		return sr.NearestResistance(p.Candles, entryPrice)

	case SARStop:
		sar := indicators.NewParabolicSAR(p.AFStart, p.AFStep, p.AFMax)
		return sar.Last(p.Candles)

	default:
		return 0, errors.NewValidationError("params", params.stopMethod(), "unknown stop method")
	}
}

// TakeProfits computes the take-profit ladder for a position entered at
// entryPrice on the given side. Single-target methods return one level
// closing 100% of the position.
func (c *Calculator) TakeProfits(entryPrice float64, side models.Side, params TakeProfitParams) ([]models.TakeProfitLevel, error) {
	if entryPrice <= 0 {
		return nil, errors.NewValidationError("entryPrice", entryPrice, "must be positive")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	dir := 1.0
	if side == models.SideShort {
		dir = -1.0
	}

	switch p := params.(type) {
	case FixedTarget:
		price := entryPrice * (1 + dir*p.Percent/100)
		return []models.TakeProfitLevel{{Price: price, ClosePercent: 100}}, nil

	case MultiTarget:
		levels := make([]models.TakeProfitLevel, len(p.Levels))
		for i, lvl := range p.Levels {
			levels[i] = models.TakeProfitLevel{
				Price:        entryPrice * (1 + dir*lvl.Percent/100),
				ClosePercent: lvl.ClosePercent,
			}
		}
		return levels, nil

	case RiskRewardTarget:
		risk := entryPrice - p.StopLoss
		if side == models.SideShort {
			risk = p.StopLoss - entryPrice
		}
		if risk <= 0 {
			return nil, errors.NewValidationError("stopLoss", p.StopLoss, "stop must be on the losing side of entry")
		}
		price := entryPrice + dir*p.Ratio*risk
		return []models.TakeProfitLevel{{Price: price, ClosePercent: 100}}, nil

	case FibonacciTarget:
		prices := indicators.FibonacciExtensions(p.SwingHigh, p.SwingLow, side)
		levels := make([]models.TakeProfitLevel, len(prices))
		share := 100.0 / float64(len(prices))
		for i, price := range prices {
			levels[i] = models.TakeProfitLevel{Price: price, ClosePercent: share}
		}
		// Rounding remainder lands on the last level so shares sum to 100.
		var total float64
		for i := 0; i < len(levels)-1; i++ {
			total += levels[i].ClosePercent
		}
		levels[len(levels)-1].ClosePercent = 100 - total
		return levels, nil

	default:
		return nil, errors.NewValidationError("params", params.targetMethod(), "unknown take-profit method")
	}
}
