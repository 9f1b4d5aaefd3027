package engine

import (
	"math"

	"paper-trader/internal/models"
)

// Stats aggregates performance of all closed trades plus the drawdown and
// daily P&L tracked by the engine.
func (e *Engine) Stats() models.TradeStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := models.TradeStats{
		TotalTrades: len(e.closed),
		DailyPnL:    e.dailyPnL,
		MaxDrawdown: e.maxDrawdown * 100,
	}
	if stats.TotalTrades == 0 {
		return stats
	}

	var totalWins, totalLosses float64
	returns := make([]float64, 0, len(e.closed))

	for _, trade := range e.closed {
		stats.TotalPnL += trade.PnL
		returns = append(returns, trade.PnLPercent/100)
		if trade.PnL > 0 {
			stats.WinningTrades++
			totalWins += trade.PnL
		} else {
			stats.LosingTrades++
			totalLosses += -trade.PnL
		}
	}

	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100

	if stats.WinningTrades > 0 {
		stats.AverageWin = totalWins / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AverageLoss = -totalLosses / float64(stats.LosingTrades)
	}
	if totalLosses > 0 {
		stats.ProfitFactor = totalWins / totalLosses
	}

	stats.SharpeRatio = sharpeFromReturns(returns)
	return stats
}

// sharpeFromReturns is a risk-adjusted return measure: mean per-trade return
// divided by its standard deviation. Not annualized; trades have no fixed
// holding period in the simulation.
func sharpeFromReturns(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var meanReturn float64
	for _, r := range returns {
		meanReturn += r
	}
	meanReturn /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - meanReturn) * (r - meanReturn)
	}
	variance /= float64(len(returns))

	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}
	return meanReturn / stdDev
}
