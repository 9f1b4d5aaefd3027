package exits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trader/internal/models"
)

func TestStopLossFixed(t *testing.T) {
	c := NewCalculator()

	long, err := c.StopLoss(50000, models.SideLong, FixedStop{Percent: 10})
	require.NoError(t, err)
	assert.InDelta(t, 45000, long, 1e-9)

	short, err := c.StopLoss(50000, models.SideShort, FixedStop{Percent: 10})
	require.NoError(t, err)
	assert.InDelta(t, 55000, short, 1e-9)
}

func TestATRMultiplierBuckets(t *testing.T) {
	cases := []struct {
		name     string
		atr      float64
		baseline float64
		want     float64
	}{
		{"calm market", 400, 500, 1.5},
		{"lower boundary is normal", 450, 500, 2.0},
		{"normal market", 500, 500, 2.0},
		{"upper boundary is volatile", 600, 500, 2.5},
		{"volatile market", 610, 500, 2.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := ATRStop{ATR: tc.atr, BaselineATR: tc.baseline}
			assert.Equal(t, tc.want, p.Multiplier())
		})
	}
}

func TestStopLossATR(t *testing.T) {
	c := NewCalculator()

	// Ratio 1.0 picks the 2.0 multiplier: distance 1000.
	long, err := c.StopLoss(50000, models.SideLong, ATRStop{ATR: 500, BaselineATR: 500})
	require.NoError(t, err)
	assert.InDelta(t, 49000, long, 1e-9)

	short, err := c.StopLoss(50000, models.SideShort, ATRStop{ATR: 500, BaselineATR: 500})
	require.NoError(t, err)
	assert.InDelta(t, 51000, short, 1e-9)
}

func TestStopLossValidation(t *testing.T) {
	c := NewCalculator()

	_, err := c.StopLoss(0, models.SideLong, FixedStop{Percent: 5})
	assert.Error(t, err)

	_, err = c.StopLoss(100, models.SideLong, FixedStop{Percent: 0})
	assert.Error(t, err)

	_, err = c.StopLoss(100, models.SideLong, FixedStop{Percent: 100})
	assert.Error(t, err)

	_, err = c.StopLoss(100, models.SideLong, ATRStop{ATR: 0, BaselineATR: 1})
	assert.Error(t, err)
}

func TestTakeProfitsFixed(t *testing.T) {
	c := NewCalculator()

	levels, err := c.TakeProfits(100, models.SideLong, FixedTarget{Percent: 10})
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.InDelta(t, 110, levels[0].Price, 1e-9)
	assert.InDelta(t, 100, levels[0].ClosePercent, 1e-9)

	levels, err = c.TakeProfits(100, models.SideShort, FixedTarget{Percent: 10})
	require.NoError(t, err)
	assert.InDelta(t, 90, levels[0].Price, 1e-9)
}

func TestTakeProfitsMultiLevel(t *testing.T) {
	c := NewCalculator()

	levels, err := c.TakeProfits(100, models.SideLong, MultiTarget{Levels: []TargetLevel{
		{Percent: 2, ClosePercent: 50},
		{Percent: 4, ClosePercent: 30},
		{Percent: 8, ClosePercent: 20},
	}})
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.InDelta(t, 102, levels[0].Price, 1e-9)
	assert.InDelta(t, 104, levels[1].Price, 1e-9)
	assert.InDelta(t, 108, levels[2].Price, 1e-9)

	var total float64
	for _, lvl := range levels {
		total += lvl.ClosePercent
	}
	assert.InDelta(t, 100, total, 1e-9)
}

func TestTakeProfitsMultiLevelRejectsBadLadder(t *testing.T) {
	c := NewCalculator()

	// Close percentages must sum to exactly 100.
	_, err := c.TakeProfits(100, models.SideLong, MultiTarget{Levels: []TargetLevel{
		{Percent: 2, ClosePercent: 50},
		{Percent: 4, ClosePercent: 30},
	}})
	assert.Error(t, err)

	// Levels must be sorted by ascending distance.
	_, err = c.TakeProfits(100, models.SideLong, MultiTarget{Levels: []TargetLevel{
		{Percent: 4, ClosePercent: 50},
		{Percent: 2, ClosePercent: 50},
	}})
	assert.Error(t, err)

	_, err = c.TakeProfits(100, models.SideLong, MultiTarget{})
	assert.Error(t, err)
}

func TestTakeProfitsRiskReward(t *testing.T) {
	c := NewCalculator()

	levels, err := c.TakeProfits(100, models.SideLong, RiskRewardTarget{Ratio: 2, StopLoss: 95})
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.InDelta(t, 110, levels[0].Price, 1e-9)

	levels, err = c.TakeProfits(100, models.SideShort, RiskRewardTarget{Ratio: 2, StopLoss: 105})
	require.NoError(t, err)
	assert.InDelta(t, 90, levels[0].Price, 1e-9)

	// A stop on the winning side of entry has no defined risk distance.
	_, err = c.TakeProfits(100, models.SideLong, RiskRewardTarget{Ratio: 2, StopLoss: 105})
	assert.Error(t, err)
}

func TestTakeProfitsFibonacci(t *testing.T) {
	c := NewCalculator()

	levels, err := c.TakeProfits(118, models.SideLong, FibonacciTarget{SwingHigh: 120, SwingLow: 100})
	require.NoError(t, err)
	require.Len(t, levels, 4)

	// swingLow + range*ratio for ratios 1.272, 1.618, 2.0, 2.618.
	assert.InDelta(t, 125.44, levels[0].Price, 1e-9)
	assert.InDelta(t, 132.36, levels[1].Price, 1e-9)
	assert.InDelta(t, 140.0, levels[2].Price, 1e-9)
	assert.InDelta(t, 152.36, levels[3].Price, 1e-9)

	var total float64
	for _, lvl := range levels {
		total += lvl.ClosePercent
	}
	assert.InDelta(t, 100, total, 1e-9, "rounding remainder lands on the last level")
}
