// Package models provides domain models for the simulation core.
package models

import (
	"time"
)

// Side represents the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus represents the lifecycle state of an order.
// Transitions: pending -> filled | cancelled. Both are terminal.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PositionStatus represents the lifecycle state of a position.
// A position transitions open -> closed exactly once and is never reopened.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// ExitReason represents why a position (or part of it) was closed.
type ExitReason string

const (
	ExitReasonManual     ExitReason = "manual"
	ExitReasonStopLoss   ExitReason = "stop_loss"
	ExitReasonTakeProfit ExitReason = "take_profit"
	ExitReasonTimeBased  ExitReason = "time_based_exit"
	ExitReasonEmergency  ExitReason = "emergency"
)

// Tick represents a market price update for a symbol.
// Bid/Ask are optional; zero means the feed did not provide them.
type Tick struct {
	Symbol    string
	Price     float64
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Balance represents the virtual ledger for one currency.
// Invariant: Available + Locked == Total at all times.
// Equity is Total plus the unrealized P&L of all open positions.
type Balance struct {
	Currency  string
	Total     float64
	Available float64
	Locked    float64
	Equity    float64
}
