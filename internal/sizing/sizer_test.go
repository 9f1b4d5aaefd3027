package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeFixed(t *testing.T) {
	s := NewSizer(10)

	// 10000 balance, 1% risk per trade, 10% stop: a stop hit loses 100.
	res, err := s.Size(10000, 50000, FixedParams{RiskPerTradePercent: 1, StopLossPercent: 10})
	require.NoError(t, err)
	assert.InDelta(t, 1000, res.Notional, 1e-9)
	assert.InDelta(t, 0.02, res.Quantity, 1e-9)
}

func TestSizeFixedIgnoresCap(t *testing.T) {
	s := NewSizer(10)

	// A tight stop blows past the 10% cap; fixed sizing does not cap.
	res, err := s.Size(10000, 100, FixedParams{RiskPerTradePercent: 5, StopLossPercent: 1})
	require.NoError(t, err)
	assert.InDelta(t, 50000, res.Notional, 1e-9)
}

func TestSizePercentageCapped(t *testing.T) {
	s := NewSizer(10)

	res, err := s.Size(10000, 100, PercentageParams{RiskPerTradePercent: 5, StopLossPercent: 1})
	require.NoError(t, err)
	assert.InDelta(t, 1000, res.Notional, 1e-9, "capped to 10%% of balance")
	assert.InDelta(t, 10, res.Quantity, 1e-9)
}

func TestSizePercentageUnderCap(t *testing.T) {
	s := NewSizer(10)

	res, err := s.Size(10000, 100, PercentageParams{RiskPerTradePercent: 0.4, StopLossPercent: 5})
	require.NoError(t, err)
	assert.InDelta(t, 800, res.Notional, 1e-9)
	assert.InDelta(t, 8, res.Quantity, 1e-9)
}

func TestSizeKellyClippedBeforeScaling(t *testing.T) {
	s := NewSizer(10)

	// f = 0.6 - 0.4/2 = 0.4, clipped to 0.10 before the balance scaling.
	res, err := s.Size(10000, 100, KellyParams{WinRate: 0.6, AvgWinLossRatio: 2})
	require.NoError(t, err)
	assert.InDelta(t, 1000, res.Notional, 1e-9)
	assert.InDelta(t, 10, res.Quantity, 1e-9)
}

func TestSizeKellyUnderCap(t *testing.T) {
	s := NewSizer(10)

	// f = 0.52 - 0.48/1 = 0.04, under the 0.10 cap.
	res, err := s.Size(10000, 100, KellyParams{WinRate: 0.52, AvgWinLossRatio: 1})
	require.NoError(t, err)
	assert.InDelta(t, 400, res.Notional, 1e-9)
}

func TestSizeKellyNoEdge(t *testing.T) {
	s := NewSizer(10)

	_, err := s.Size(10000, 100, KellyParams{WinRate: 0.3, AvgWinLossRatio: 1})
	require.Error(t, err)
}

func TestSizeValidation(t *testing.T) {
	s := NewSizer(10)

	cases := []struct {
		name       string
		balance    float64
		entryPrice float64
		params     Params
	}{
		{"zero balance", 0, 100, FixedParams{RiskPerTradePercent: 1, StopLossPercent: 5}},
		{"negative balance", -100, 100, FixedParams{RiskPerTradePercent: 1, StopLossPercent: 5}},
		{"zero entry price", 10000, 0, FixedParams{RiskPerTradePercent: 1, StopLossPercent: 5}},
		{"zero risk", 10000, 100, FixedParams{RiskPerTradePercent: 0, StopLossPercent: 5}},
		{"zero stop", 10000, 100, PercentageParams{RiskPerTradePercent: 1, StopLossPercent: 0}},
		{"win rate above one", 10000, 100, KellyParams{WinRate: 1.5, AvgWinLossRatio: 2}},
		{"zero ratio", 10000, 100, KellyParams{WinRate: 0.6, AvgWinLossRatio: 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Size(tc.balance, tc.entryPrice, tc.params)
			assert.Error(t, err)
		})
	}
}
