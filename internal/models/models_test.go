package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProfitPercentSignFlipsForShorts(t *testing.T) {
	long := Position{Side: SideLong, EntryPrice: 100}
	assert.InDelta(t, 5, long.ProfitPercent(105), 1e-9)
	assert.InDelta(t, -5, long.ProfitPercent(95), 1e-9)

	short := Position{Side: SideShort, EntryPrice: 100}
	assert.InDelta(t, -5, short.ProfitPercent(105), 1e-9)
	assert.InDelta(t, 5, short.ProfitPercent(95), 1e-9)

	zero := Position{Side: SideLong}
	assert.Zero(t, zero.ProfitPercent(100))
}

func TestMarkPrice(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pos := Position{Side: SideLong, EntryPrice: 100, RemainingQuantity: 2}
	pos.MarkPrice(110, now)
	assert.InDelta(t, 20, pos.UnrealizedPnL, 1e-9)
	assert.Equal(t, now, pos.UpdatedAt)

	short := Position{Side: SideShort, EntryPrice: 100, RemainingQuantity: 2}
	short.MarkPrice(110, now)
	assert.InDelta(t, -20, short.UnrealizedPnL, 1e-9)
}

func TestOrderCrosses(t *testing.T) {
	buy := Order{Type: OrderTypeLimit, Side: OrderSideBuy, Price: 100}
	assert.True(t, buy.Crosses(99))
	assert.True(t, buy.Crosses(100))
	assert.False(t, buy.Crosses(101))

	sell := Order{Type: OrderTypeLimit, Side: OrderSideSell, Price: 100}
	assert.True(t, sell.Crosses(101))
	assert.True(t, sell.Crosses(100))
	assert.False(t, sell.Crosses(99))

	market := Order{Type: OrderTypeMarket, Side: OrderSideBuy}
	assert.True(t, market.Crosses(1))
}

func TestOrderIsCancellable(t *testing.T) {
	assert.True(t, (&Order{Status: OrderStatusPending}).IsCancellable())
	assert.False(t, (&Order{Status: OrderStatusFilled}).IsCancellable())
	assert.False(t, (&Order{Status: OrderStatusCancelled}).IsCancellable())
}
