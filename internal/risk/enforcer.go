// Package risk enforces portfolio-level limits on new positions and owns the
// aggregate view used for approval decisions.
package risk

import (
	"strings"

	"github.com/rs/zerolog"

	"paper-trader/internal/config"
	"paper-trader/internal/engine"
	"paper-trader/internal/errors"
	"paper-trader/internal/exits"
	"paper-trader/internal/models"
	"paper-trader/internal/sizing"
)

// OpenParams bundles everything needed to open a position: the symbol and
// direction from the strategy decision, the sizing method, and the exit
// level methods.
type OpenParams struct {
	Symbol     string
	Side       models.Side
	OrderType  models.OrderType
	LimitPrice float64 // required for limit entries
	Sizing     sizing.Params
	Stop       exits.StopParams
	TakeProfit exits.TakeProfitParams // optional
}

// OpenResult is the outcome of an open request. Failures are carried as
// typed errors, never panics; a failed request mutates no state.
type OpenResult struct {
	Success  bool
	Position *models.Position
	Order    *models.Order
	Err      error
}

// Stats is the aggregate risk view for reporting.
type Stats struct {
	OpenPositions    int
	ExposureBySymbol map[string]float64
	DailyPnL         float64
}

// Enforcer approves or rejects position requests against the configured
// portfolio limits, then delegates execution to the engine.
type Enforcer struct {
	cfg    config.RiskConfig
	engine *engine.Engine
	sizer  *sizing.Sizer
	calc   *exits.Calculator
	logger zerolog.Logger

	// correlations holds pairwise symbol correlations, keyed symmetrically.
	correlations map[string]float64
}

// NewEnforcer creates a risk limit enforcer in front of the engine.
func NewEnforcer(cfg config.RiskConfig, eng *engine.Engine, logger zerolog.Logger) *Enforcer {
	return &Enforcer{
		cfg:          cfg,
		engine:       eng,
		sizer:        sizing.NewSizer(cfg.MaxPositionSizePercent),
		calc:         exits.NewCalculator(),
		logger:       logger,
		correlations: make(map[string]float64),
	}
}

// SetCorrelation records the correlation between two symbols. The matrix is
// symmetric; either ordering of the pair can be queried.
func (r *Enforcer) SetCorrelation(a, b string, correlation float64) {
	r.correlations[pairKey(a, b)] = correlation
}

// Correlation returns the recorded correlation between two symbols.
func (r *Enforcer) Correlation(a, b string) float64 {
	return r.correlations[pairKey(a, b)]
}

func pairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

// OpenPosition runs the approval pipeline: position-count limit, correlation
// limit, loss gates, sizing, projected exposure, exit levels, then execution.
// Any failure rejects the request atomically.
func (r *Enforcer) OpenPosition(params OpenParams) OpenResult {
	reject := func(err error) OpenResult {
		r.logger.Warn().Str("symbol", params.Symbol).Err(err).Msg("Open rejected")
		return OpenResult{Err: err}
	}

	// 1. Position count limit.
	openCount := r.engine.OpenPositionCount()
	if openCount >= r.cfg.MaxPositions {
		return reject(errors.NewRiskError("max_positions",
			float64(openCount), float64(r.cfg.MaxPositions),
			"maximum number of open positions reached"))
	}

	// 2. Correlation group limit.
	correlated := 0
	for _, held := range r.engine.OpenSymbols() {
		if held == params.Symbol {
			continue
		}
		if r.Correlation(params.Symbol, held) >= r.cfg.CorrelationThreshold {
			correlated++
		}
	}
	if correlated >= r.cfg.MaxCorrelatedPositions {
		return reject(errors.NewRiskError("correlated_positions",
			float64(correlated), float64(r.cfg.MaxCorrelatedPositions),
			"too many correlated positions already held"))
	}

	balance := r.engine.Balance()

	// 3. Daily loss gate.
	maxDailyLoss := balance.Total * r.cfg.MaxDailyLossPercent / 100
	if daily := r.engine.DailyPnL(); daily < 0 && -daily >= maxDailyLoss {
		return reject(errors.NewRiskError("daily_loss",
			-daily, maxDailyLoss, "daily loss limit reached"))
	}

	// 4. Total drawdown gate.
	if r.cfg.MaxTotalDrawdownPercent > 0 {
		if dd := r.engine.Stats().MaxDrawdown; dd >= r.cfg.MaxTotalDrawdownPercent {
			return reject(errors.NewRiskError("total_drawdown",
				dd, r.cfg.MaxTotalDrawdownPercent, "total drawdown limit reached"))
		}
	}

	// 5. Entry reference price: the limit price for limit orders, otherwise
	// the latest tick.
	entryPrice := params.LimitPrice
	if params.OrderType != models.OrderTypeLimit {
		price, err := r.engine.LastPrice(params.Symbol)
		if err != nil {
			return reject(err)
		}
		entryPrice = price
	}

	// 6. Sizing, against total balance.
	size, err := r.sizer.Size(balance.Total, entryPrice, params.Sizing)
	if err != nil {
		return reject(err)
	}

	// 7. Projected per-asset exposure.
	exposure := r.engine.Exposure()[params.Symbol]
	maxExposure := balance.Total * r.cfg.MaxAssetExposurePercent / 100
	if projected := exposure + size.Notional; projected > maxExposure {
		return reject(errors.NewRiskError("asset_exposure",
			projected, maxExposure, "per-asset exposure limit exceeded"))
	}

	// 8. Exit levels.
	stopLoss, err := r.calc.StopLoss(entryPrice, params.Side, params.Stop)
	if err != nil {
		return reject(err)
	}

	var takeProfits []models.TakeProfitLevel
	if params.TakeProfit != nil {
		takeProfits, err = r.calc.TakeProfits(entryPrice, params.Side, params.TakeProfit)
		if err != nil {
			return reject(err)
		}
	} else if r.cfg.DefaultTakeProfitPercent > 0 {
		takeProfits, err = r.calc.TakeProfits(entryPrice, params.Side,
			exits.FixedTarget{Percent: r.cfg.DefaultTakeProfitPercent})
		if err != nil {
			return reject(err)
		}
	}

	// 9. Execution. The engine either creates the order/position atomically
	// or mutates nothing.
	pos, order, err := r.engine.OpenPosition(engine.OpenRequest{
		Symbol:      params.Symbol,
		Side:        params.Side,
		Type:        params.OrderType,
		LimitPrice:  params.LimitPrice,
		Quantity:    size.Quantity,
		StopLoss:    stopLoss,
		TakeProfits: takeProfits,
	})
	if err != nil {
		return reject(err)
	}

	return OpenResult{Success: true, Position: pos, Order: order}
}

// ClosePosition realizes P&L for a position at the given exit price.
func (r *Enforcer) ClosePosition(id string, exitPrice float64) (*models.ClosedTrade, error) {
	return r.engine.ClosePosition(id, exitPrice)
}

// GetStats returns aggregate exposure, open-position count and daily P&L.
func (r *Enforcer) GetStats() Stats {
	return Stats{
		OpenPositions:    r.engine.OpenPositionCount(),
		ExposureBySymbol: r.engine.Exposure(),
		DailyPnL:         r.engine.DailyPnL(),
	}
}
