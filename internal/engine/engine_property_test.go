package engine

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"paper-trader/internal/config"
	"paper-trader/internal/models"
)

// Property: available + locked == total after any sequence of opens, ticks
// and closes. The ledger is conserved regardless of fees, slippage, partial
// take-profit fills and stop-outs.
func TestProperty_LedgerConservedUnderRandomActivity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	pricesGen := gen.SliceOfN(60, gen.Float64Range(50, 200))
	opsGen := gen.SliceOfN(60, gen.IntRange(0, 3))

	properties.Property("ledger invariant holds across random op sequences", prop.ForAll(
		func(prices []float64, ops []int) bool {
			e := New(Config{
				InitialBalance:  10000,
				Currency:        "USDT",
				MakerFeePercent: 0.02,
				TakerFeePercent: 0.05,
				SlippagePercent: 0.05,
			}, config.ExitConfig{
				EmergencyEnabled:     true,
				EmergencyLossPercent: 10,
			}, zerolog.Nop())

			clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			e.SetClock(func() time.Time { return clock })

			for i, price := range prices {
				clock = clock.Add(time.Minute)
				e.ProcessTick(models.Tick{Symbol: "BTCUSDT", Price: price, Timestamp: clock})

				switch ops[i] {
				case 1:
					e.OpenPosition(OpenRequest{
						Symbol:   "BTCUSDT",
						Side:     models.SideLong,
						Type:     models.OrderTypeMarket,
						Quantity: 1,
						StopLoss: price * 0.95,
						TakeProfits: []models.TakeProfitLevel{
							{Price: price * 1.02, ClosePercent: 50},
							{Price: price * 1.05, ClosePercent: 50},
						},
					})
				case 2:
					e.OpenPosition(OpenRequest{
						Symbol:     "BTCUSDT",
						Side:       models.SideShort,
						Type:       models.OrderTypeLimit,
						LimitPrice: price * 1.01,
						Quantity:   1,
						StopLoss:   price * 1.08,
					})
				case 3:
					for _, pos := range e.Positions() {
						if pos.IsOpen() {
							e.ClosePosition(pos.ID, price)
							break
						}
					}
				}

				balance := e.Balance()
				diff := balance.Available + balance.Locked - balance.Total
				if diff > 1e-6 || diff < -1e-6 {
					t.Logf("FAILED: tick %d price=%.4f available=%.6f locked=%.6f total=%.6f",
						i, price, balance.Available, balance.Locked, balance.Total)
					return false
				}
				if balance.Locked < -1e-6 {
					t.Logf("FAILED: negative locked balance %.6f at tick %d", balance.Locked, i)
					return false
				}
			}
			return true
		},
		pricesGen,
		opsGen,
	))

	properties.TestingRun(t)
}

// Property: the stepped-trailing step index and the stop level of a long
// position never move against the position, whatever the price path does.
func TestProperty_TrailingStopMonotonicForLongs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	// Price paths around the 100 entry, wide enough to trip every rule.
	pathGen := gen.SliceOfN(80, gen.Float64Range(96, 115))

	properties.Property("step index and stop only ratchet up", prop.ForAll(
		func(path []float64) bool {
			e := New(Config{InitialBalance: 100000, Currency: "USDT"}, config.ExitConfig{
				BreakevenEnabled:    true,
				BreakevenActivation: 2,
				SteppedTrailingEnabled: true,
				TrailingSteps: []config.TrailingStep{
					{ProfitPercent: 2, StopLossPercent: 0},
					{ProfitPercent: 5, StopLossPercent: 2},
					{ProfitPercent: 10, StopLossPercent: 5},
				},
				TrailingEnabled:           true,
				TrailingActivationPercent: 3,
				TrailingDistancePercent:   1.5,
			}, zerolog.Nop())

			clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			e.SetClock(func() time.Time { return clock })

			e.ProcessTick(models.Tick{Symbol: "BTCUSDT", Price: 100, Timestamp: clock})
			pos, _, err := e.OpenPosition(OpenRequest{
				Symbol:   "BTCUSDT",
				Side:     models.SideLong,
				Type:     models.OrderTypeMarket,
				Quantity: 10,
				StopLoss: 90,
			})
			if err != nil {
				return false
			}

			lastStep := -1
			lastStop := 90.0
			for _, price := range path {
				clock = clock.Add(time.Minute)
				e.ProcessTick(models.Tick{Symbol: "BTCUSDT", Price: price, Timestamp: clock})

				var snap *models.Position
				for _, p := range e.Positions() {
					if p.ID == pos.ID {
						copied := p
						snap = &copied
						break
					}
				}
				if snap == nil {
					return false
				}
				if !snap.IsOpen() {
					break
				}
				if snap.TrailingStep < lastStep {
					t.Logf("FAILED: step retreated %d -> %d at price %.4f", lastStep, snap.TrailingStep, price)
					return false
				}
				if snap.StopLoss < lastStop-1e-9 {
					t.Logf("FAILED: stop loosened %.6f -> %.6f at price %.4f", lastStop, snap.StopLoss, price)
					return false
				}
				lastStep = snap.TrailingStep
				lastStop = snap.StopLoss
			}
			return true
		},
		pathGen,
	))

	properties.TestingRun(t)
}
