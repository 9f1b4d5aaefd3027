package models

import "time"

// ClosedTrade records one realized close (full or partial) of a position.
type ClosedTrade struct {
	ID         string
	PositionID string
	Symbol     string
	Side       Side
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	Quantity   float64
	PnL        float64
	PnLPercent float64
	Fees       float64
	Slippage   float64
	ExitReason ExitReason
}

// TradeStats aggregates performance of all closed trades.
type TradeStats struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // percent
	ProfitFactor  float64
	AverageWin    float64
	AverageLoss   float64
	TotalPnL      float64
	DailyPnL      float64
	MaxDrawdown   float64 // percent of peak equity
	SharpeRatio   float64
}
