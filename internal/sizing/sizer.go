// Package sizing computes position size from a chosen sizing method.
package sizing

import (
	"paper-trader/internal/errors"
)

// Params is one of the per-method parameter structs. Each variant validates
// itself at construction time via Validate.
type Params interface {
	Validate() error
	method() string
}

// FixedParams sizes the position so that a stop-loss hit risks a fixed
// fraction of the balance: notional = balance × riskPerTrade% ÷ stopLoss%.
type FixedParams struct {
	RiskPerTradePercent float64
	StopLossPercent     float64
}

func (p FixedParams) method() string { return "fixed" }

func (p FixedParams) Validate() error {
	if p.RiskPerTradePercent <= 0 {
		return errors.NewValidationError("riskPerTradePercent", p.RiskPerTradePercent, "must be positive")
	}
	if p.StopLossPercent <= 0 {
		return errors.NewValidationError("stopLossPercent", p.StopLossPercent, "must be positive")
	}
	return nil
}

// PercentageParams is the fixed formula additionally capped to the configured
// maximum position size.
type PercentageParams struct {
	RiskPerTradePercent float64
	StopLossPercent     float64
}

func (p PercentageParams) method() string { return "percentage" }

func (p PercentageParams) Validate() error {
	return FixedParams(p).Validate()
}

// KellyParams sizes by the Kelly criterion from historical win statistics.
type KellyParams struct {
	WinRate         float64 // fraction in [0, 1]
	AvgWinLossRatio float64
}

func (p KellyParams) method() string { return "kelly" }

func (p KellyParams) Validate() error {
	if p.WinRate < 0 || p.WinRate > 1 {
		return errors.NewValidationError("winRate", p.WinRate, "must be in [0, 1]")
	}
	if p.AvgWinLossRatio <= 0 {
		return errors.NewValidationError("avgWinLossRatio", p.AvgWinLossRatio, "must be positive")
	}
	return nil
}

// Result is the computed position size.
type Result struct {
	Quantity float64
	Notional float64
}

// Sizer computes position sizes against a maximum position-size cap.
type Sizer struct {
	maxPositionSizePercent float64
}

// NewSizer creates a position sizer. maxPositionSizePercent caps percentage
// and Kelly sizing as a share of balance.
func NewSizer(maxPositionSizePercent float64) *Sizer {
	return &Sizer{maxPositionSizePercent: maxPositionSizePercent}
}

// Size computes quantity and notional for the given balance and entry price.
func (s *Sizer) Size(balance, entryPrice float64, params Params) (Result, error) {
	if balance <= 0 {
		return Result{}, errors.NewValidationError("balance", balance, "must be positive")
	}
	if entryPrice <= 0 {
		return Result{}, errors.NewValidationError("entryPrice", entryPrice, "must be positive")
	}
	if err := params.Validate(); err != nil {
		return Result{}, err
	}

	switch p := params.(type) {
	case FixedParams:
		notional := balance * p.RiskPerTradePercent / p.StopLossPercent
		return Result{Quantity: notional / entryPrice, Notional: notional}, nil

	case PercentageParams:
		notional := balance * p.RiskPerTradePercent / p.StopLossPercent
		limit := balance * s.maxPositionSizePercent / 100
		if notional > limit {
			notional = limit
		}
		return Result{Quantity: notional / entryPrice, Notional: notional}, nil

	case KellyParams:
		f := p.WinRate - (1-p.WinRate)/p.AvgWinLossRatio
		if f <= 0 {
			return Result{}, errors.NewValidationError("kellyFraction", f, "no edge: fraction is non-positive")
		}
		// The fraction is clipped before scaling by balance and entry price.
		maxFraction := s.maxPositionSizePercent / 100
		if f > maxFraction {
			f = maxFraction
		}
		notional := balance * f
		return Result{Quantity: notional / entryPrice, Notional: notional}, nil

	default:
		return Result{}, errors.NewValidationError("params", params.method(), "unknown sizing method")
	}
}
