package exits

import (
	"time"

	"paper-trader/internal/config"
	"paper-trader/internal/models"
)

// ActionType describes what the caller should do with an open position.
type ActionType string

const (
	ActionUpdateStop ActionType = "update_stop"
	ActionClose      ActionType = "close"
)

// Action is a single exit instruction produced by Evaluate. The lifecycle
// manager never mutates balance or position state itself; the caller applies
// actions through the execution engine.
type Action struct {
	Type     ActionType
	NewStop  float64
	Step     int // stepped-trailing index reached, -1 otherwise
	Rule     string
	Reason   models.ExitReason
	Trailing bool // marks standard-trailing activation
}

// Evaluation is the result of evaluating one position against one tick.
type Evaluation struct {
	Actions     []Action
	ShouldClose bool
	CloseReason models.ExitReason
}

// Manager evaluates open positions against the configured exit rules.
type Manager struct {
	cfg config.ExitConfig
}

// NewManager creates an exit lifecycle manager.
func NewManager(cfg config.ExitConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Evaluate runs the exit rules for a position at the current price. Rules are
// checked in fixed priority order and the first rule that produces an action
// short-circuits the rest: emergency exit, time-based exit, breakeven,
// stepped trailing, standard trailing.
func (m *Manager) Evaluate(pos *models.Position, price float64, now time.Time) Evaluation {
	if !pos.IsOpen() {
		return Evaluation{}
	}

	profit := pos.ProfitPercent(price)

	// 1. Emergency exit overrides everything else.
	if m.cfg.EmergencyEnabled && profit <= -m.cfg.EmergencyLossPercent {
		return Evaluation{
			Actions:     []Action{{Type: ActionClose, Rule: "emergency", Reason: models.ExitReasonEmergency, Step: -1}},
			ShouldClose: true,
			CloseReason: models.ExitReasonEmergency,
		}
	}

	// 2. Time-based exit: held too long without reaching minimum profit.
	if m.cfg.TimeExitEnabled && m.cfg.MaxHoldingTime > 0 &&
		pos.Age(now) > m.cfg.MaxHoldingTime && profit < m.cfg.MinProfitForTimeExit {
		return Evaluation{
			Actions:     []Action{{Type: ActionClose, Rule: "time_based", Reason: models.ExitReasonTimeBased, Step: -1}},
			ShouldClose: true,
			CloseReason: models.ExitReasonTimeBased,
		}
	}

	// 3. Breakeven: move the stop to entry exactly once.
	if m.cfg.BreakevenEnabled && !pos.BreakevenSet && profit >= m.cfg.BreakevenActivation {
		if stopBehindEntry(pos) {
			return Evaluation{Actions: []Action{{
				Type:    ActionUpdateStop,
				NewStop: pos.EntryPrice,
				Rule:    "breakeven",
				Step:    -1,
			}}}
		}
	}

	// 4. Stepped trailing: advance to the highest satisfied step. The step
	// index is monotonic; a pullback never retreats it.
	if m.cfg.SteppedTrailingEnabled && len(m.cfg.TrailingSteps) > 0 {
		step := highestStep(m.cfg.TrailingSteps, profit)
		if step > pos.TrailingStep {
			newStop := steppedStop(pos, m.cfg.TrailingSteps[step])
			if improves(pos, newStop) {
				return Evaluation{Actions: []Action{{
					Type:    ActionUpdateStop,
					NewStop: newStop,
					Rule:    "stepped_trailing",
					Step:    step,
				}}}
			}
		}
	}

	// 5. Standard trailing: once activated, the stop follows price at a
	// fixed distance, moving only in the favorable direction.
	if m.cfg.TrailingEnabled {
		active := pos.TrailingActive || profit >= m.cfg.TrailingActivationPercent
		if active {
			newStop := trailingStop(pos, price, m.cfg.TrailingDistancePercent)
			if improves(pos, newStop) {
				return Evaluation{Actions: []Action{{
					Type:     ActionUpdateStop,
					NewStop:  newStop,
					Rule:     "trailing",
					Step:     -1,
					Trailing: true,
				}}}
			}
			if !pos.TrailingActive {
				// Activation with no stop improvement yet still needs to be
				// recorded so later ticks keep trailing.
				return Evaluation{Actions: []Action{{
					Type:     ActionUpdateStop,
					NewStop:  pos.StopLoss,
					Rule:     "trailing",
					Step:     -1,
					Trailing: true,
				}}}
			}
		}
	}

	return Evaluation{}
}

// stopBehindEntry reports whether the stop has not yet reached entry.
func stopBehindEntry(pos *models.Position) bool {
	if pos.Side == models.SideLong {
		return pos.StopLoss < pos.EntryPrice
	}
	return pos.StopLoss == 0 || pos.StopLoss > pos.EntryPrice
}

// highestStep returns the index of the highest step whose profit threshold is
// met, or -1.
func highestStep(steps []config.TrailingStep, profit float64) int {
	best := -1
	for i, step := range steps {
		if profit >= step.ProfitPercent {
			best = i
		}
	}
	return best
}

// steppedStop computes the stop for a trailing step relative to entry.
func steppedStop(pos *models.Position, step config.TrailingStep) float64 {
	if pos.Side == models.SideLong {
		return pos.EntryPrice * (1 + step.StopLossPercent/100)
	}
	return pos.EntryPrice * (1 - step.StopLossPercent/100)
}

// trailingStop computes the stop trailing price at a fixed distance.
func trailingStop(pos *models.Position, price, distancePercent float64) float64 {
	if pos.Side == models.SideLong {
		return price * (1 - distancePercent/100)
	}
	return price * (1 + distancePercent/100)
}

// improves reports whether newStop tightens the stop in the favorable
// direction only.
func improves(pos *models.Position, newStop float64) bool {
	if pos.StopLoss == 0 {
		return true
	}
	if pos.Side == models.SideLong {
		return newStop > pos.StopLoss
	}
	return newStop < pos.StopLoss
}
