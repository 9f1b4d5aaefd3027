package models

import "time"

// TakeProfitLevel is a single take-profit target with the percentage of the
// position quantity to close when it is hit.
type TakeProfitLevel struct {
	Price        float64
	ClosePercent float64
	Filled       bool
}

// Position represents a simulated market exposure.
//
// Invariants maintained by the engine:
//   - RemainingQuantity <= Quantity
//   - Σ TakeProfits[i].ClosePercent == 100 for multi-level configurations
//   - TrailingStep never decreases
//   - Status goes open -> closed exactly once
type Position struct {
	ID                string
	Symbol            string
	Side              Side
	Status            PositionStatus
	EntryPrice        float64
	CurrentPrice      float64
	Quantity          float64
	RemainingQuantity float64
	StopLoss          float64
	TakeProfits       []TakeProfitLevel

	// Exit lifecycle state.
	BreakevenSet   bool
	TrailingActive bool
	TrailingStep   int // highest stepped-trailing index reached; -1 when none

	// Entry fee charged when the position was opened, used to attribute the
	// proportional share to each (partial) close.
	EntryFee float64

	UnrealizedPnL float64
	RealizedPnL   float64
	OpenedAt      time.Time
	UpdatedAt     time.Time
	ClosedAt      time.Time
}

// IsOpen reports whether the position still has exposure.
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// ProfitPercent returns the signed profit of the position at the given price,
// as a percentage of the entry price.
func (p *Position) ProfitPercent(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	pct := (price - p.EntryPrice) / p.EntryPrice * 100
	if p.Side == SideShort {
		pct = -pct
	}
	return pct
}

// Age returns how long the position has been open.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// MarkPrice updates CurrentPrice and the unrealized P&L for the remaining
// quantity.
func (p *Position) MarkPrice(price float64, now time.Time) {
	p.CurrentPrice = price
	if p.Side == SideLong {
		p.UnrealizedPnL = (price - p.EntryPrice) * p.RemainingQuantity
	} else {
		p.UnrealizedPnL = (p.EntryPrice - price) * p.RemainingQuantity
	}
	p.UpdatedAt = now
}
