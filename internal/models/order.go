package models

import "time"

// Order represents a simulated order.
type Order struct {
	ID       string
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Status   OrderStatus
	Price    float64 // limit price; zero for market orders
	Quantity float64

	FilledQuantity float64
	AveragePrice   float64
	Fees           float64
	Slippage       float64

	// PositionID links the order to the position it opened.
	PositionID string

	PlacedAt    time.Time
	FilledAt    time.Time
	CancelledAt time.Time
}

// IsCancellable reports whether the order can still be cancelled.
// Fills and cancellations are terminal.
func (o *Order) IsCancellable() bool {
	return o.Status == OrderStatusPending
}

// Crosses reports whether a tick price satisfies the limit condition:
// tick <= limit for buys, tick >= limit for sells.
func (o *Order) Crosses(price float64) bool {
	if o.Type != OrderTypeLimit {
		return true
	}
	if o.Side == OrderSideBuy {
		return price <= o.Price
	}
	return price >= o.Price
}
