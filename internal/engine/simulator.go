// Package engine simulates order execution against a virtual ledger. It owns
// the balance, the pending order book, open positions and the closed trade
// log. All mutation happens under a single lock; order matching and exit
// evaluation are order-dependent, so ticks for an engine instance are
// processed strictly sequentially.
package engine

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"paper-trader/internal/config"
	"paper-trader/internal/errors"
	"paper-trader/internal/exits"
	"paper-trader/internal/models"
	"paper-trader/internal/stream"
)

// quantityEpsilon guards float comparisons on remaining quantity.
const quantityEpsilon = 1e-9

// ledgerEpsilon is the tolerance for the available+locked==total invariant.
const ledgerEpsilon = 1e-6

// Config holds execution simulation parameters.
type Config struct {
	InitialBalance  float64
	Currency        string
	MakerFeePercent float64
	TakerFeePercent float64
	SlippagePercent float64
}

// OpenRequest describes a fully sized and levelled position entry. It is
// produced by the risk enforcer after sizing and exit level calculation.
type OpenRequest struct {
	Symbol      string
	Side        models.Side
	Type        models.OrderType
	LimitPrice  float64 // required for limit entries
	Quantity    float64
	StopLoss    float64
	TakeProfits []models.TakeProfitLevel
}

// Engine is the execution simulator.
type Engine struct {
	mu sync.Mutex

	cfg       Config
	lifecycle *exits.Manager
	logger    zerolog.Logger
	hub       *stream.Hub

	balance   models.Balance
	ticks     map[string]models.Tick
	orders    map[string]*models.Order
	positions map[string]*models.Position
	closed    []models.ClosedTrade

	// pendingEntries maps entry order IDs to their open request so a later
	// crossing tick can create the position.
	pendingEntries map[string]OpenRequest

	peakEquity  float64
	maxDrawdown float64 // fraction of peak equity
	dailyPnL    float64
	currentDay  time.Time

	now func() time.Time
}

// New creates an execution engine with the given configuration.
func New(cfg Config, exitCfg config.ExitConfig, logger zerolog.Logger) *Engine {
	e := &Engine{
		cfg:            cfg,
		lifecycle:      exits.NewManager(exitCfg),
		logger:         logger,
		ticks:          make(map[string]models.Tick),
		orders:         make(map[string]*models.Order),
		positions:      make(map[string]*models.Position),
		pendingEntries: make(map[string]OpenRequest),
		balance: models.Balance{
			Currency:  cfg.Currency,
			Total:     cfg.InitialBalance,
			Available: cfg.InitialBalance,
			Equity:    cfg.InitialBalance,
		},
		peakEquity: cfg.InitialBalance,
		now:        time.Now,
	}
	return e
}

// SetHub attaches an event hub; engine events are broadcast to it.
func (e *Engine) SetHub(hub *stream.Hub) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hub = hub
}

// SetClock overrides the engine clock. Intended for tests and replays.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// OpenPosition places an entry order. Market orders fill immediately against
// the latest tick; limit orders stay pending until a tick crosses the limit.
// On any failure no state is mutated.
func (e *Engine) OpenPosition(req OpenRequest) (*models.Position, *models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.Quantity <= 0 {
		return nil, nil, errors.NewValidationError("quantity", req.Quantity, "must be positive")
	}
	if req.Type == models.OrderTypeLimit && req.LimitPrice <= 0 {
		return nil, nil, errors.NewValidationError("limitPrice", req.LimitPrice, "required for limit orders")
	}

	tick, ok := e.ticks[req.Symbol]
	if !ok {
		return nil, nil, errors.Wrapf(errors.ErrNoMarketData, "open %s", req.Symbol)
	}

	now := e.now()
	order := &models.Order{
		ID:       uuid.NewString(),
		Symbol:   req.Symbol,
		Side:     entrySide(req.Side),
		Type:     req.Type,
		Status:   models.OrderStatusPending,
		Price:    req.LimitPrice,
		Quantity: req.Quantity,
		PlacedAt: now,
	}

	if req.Type == models.OrderTypeMarket {
		execPrice := e.slippedPrice(tick.Price, order.Side)
		notional := execPrice * req.Quantity
		fee := notional * e.cfg.TakerFeePercent / 100
		if e.balance.Available < notional+fee {
			return nil, nil, errors.Wrapf(errors.ErrInsufficientBalance,
				"need %.2f, have %.2f", notional+fee, e.balance.Available)
		}

		// Lock the notional, pay the fee out of the ledger.
		e.balance.Available -= notional + fee
		e.balance.Locked += notional
		e.balance.Total -= fee

		order.Status = models.OrderStatusFilled
		order.FilledQuantity = req.Quantity
		order.AveragePrice = execPrice
		order.Fees = fee
		order.Slippage = math.Abs(execPrice-tick.Price) * req.Quantity
		order.FilledAt = now

		pos := e.createPosition(req, order, execPrice, fee, now)
		e.orders[order.ID] = order
		e.assertLedger()

		e.publish(stream.Event{Type: stream.EventOrderFilled, Symbol: req.Symbol,
			OrderID: order.ID, PositionID: pos.ID, Price: execPrice, Quantity: req.Quantity, Timestamp: now})
		e.publish(stream.Event{Type: stream.EventPositionOpened, Symbol: req.Symbol,
			PositionID: pos.ID, Price: execPrice, Quantity: req.Quantity, Timestamp: now})
		return pos, order, nil
	}

	// Limit entry: reserve the notional now so a crossing tick can always
	// fill; the fee is charged at fill time.
	notional := req.LimitPrice * req.Quantity
	fee := notional * e.cfg.MakerFeePercent / 100
	if e.balance.Available < notional+fee {
		return nil, nil, errors.Wrapf(errors.ErrInsufficientBalance,
			"need %.2f, have %.2f", notional+fee, e.balance.Available)
	}
	e.balance.Available -= notional
	e.balance.Locked += notional

	e.orders[order.ID] = order
	e.pendingEntries[order.ID] = req
	e.assertLedger()

	e.logger.Debug().Str("order_id", order.ID).Str("symbol", req.Symbol).
		Float64("limit", req.LimitPrice).Msg("Limit entry pending")
	return nil, order, nil
}

// UpdateMarketPrice processes one tick: pending orders are matched first,
// then open positions for the symbol are marked, checked against their stop
// and take-profit levels, and run through the exit lifecycle rules.
func (e *Engine) UpdateMarketPrice(symbol string, price float64) {
	e.ProcessTick(models.Tick{Symbol: symbol, Price: price, Timestamp: e.now()})
}

// ProcessTick is UpdateMarketPrice with a full tick payload.
func (e *Engine) ProcessTick(tick models.Tick) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if tick.Timestamp.IsZero() {
		tick.Timestamp = e.now()
	}
	e.rollDay(tick.Timestamp)
	e.ticks[tick.Symbol] = tick

	e.matchPendingOrders(tick)

	for _, pos := range e.positions {
		if pos.Symbol != tick.Symbol || !pos.IsOpen() {
			continue
		}
		pos.MarkPrice(tick.Price, tick.Timestamp)

		if e.checkStopLoss(pos, tick) {
			continue
		}
		if e.checkTakeProfits(pos, tick) {
			continue
		}
		e.runLifecycle(pos, tick)
	}

	e.updateEquity()
	e.assertLedger()
}

// ClosePosition closes the remaining quantity of a position at the given
// exit price. The price is taken as-is (no slippage); the taker fee applies.
func (e *Engine) ClosePosition(id string, exitPrice float64) (*models.ClosedTrade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrPositionNotFound, "close %s", id)
	}
	if !pos.IsOpen() {
		return nil, errors.Wrapf(errors.ErrPositionClosed, "close %s", id)
	}
	if exitPrice <= 0 {
		return nil, errors.NewValidationError("exitPrice", exitPrice, "must be positive")
	}

	trade := e.closeQuantity(pos, pos.RemainingQuantity, exitPrice, e.cfg.TakerFeePercent, 0, models.ExitReasonManual, e.now())
	e.updateEquity()
	e.assertLedger()
	return trade, nil
}

// CancelOrder cancels a pending order and releases any funds it locked.
func (e *Engine) CancelOrder(id, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[id]
	if !ok {
		return errors.Wrapf(errors.ErrOrderNotFound, "cancel %s", id)
	}
	if !order.IsCancellable() {
		return errors.NewOrderError(id, order.Symbol, "cancel", string(order.Status), errors.ErrOrderNotCancellable)
	}

	if _, isEntry := e.pendingEntries[id]; isEntry {
		notional := order.Price * order.Quantity
		e.balance.Locked -= notional
		e.balance.Available += notional
		delete(e.pendingEntries, id)
	}

	now := e.now()
	order.Status = models.OrderStatusCancelled
	order.CancelledAt = now
	e.assertLedger()

	e.logger.Info().Str("order_id", id).Str("reason", reason).Msg("Order cancelled")
	e.publish(stream.Event{Type: stream.EventOrderCancelled, Symbol: order.Symbol,
		OrderID: id, Reason: reason, Timestamp: now})
	return nil
}

// Balance returns a snapshot of the ledger with equity marked to the latest
// ticks.
func (e *Engine) Balance() models.Balance {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateEquity()
	return e.balance
}

// Positions returns snapshots of all positions, open and closed.
func (e *Engine) Positions() []models.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Position, 0, len(e.positions))
	for _, pos := range e.positions {
		p := *pos
		p.TakeProfits = append([]models.TakeProfitLevel(nil), pos.TakeProfits...)
		out = append(out, p)
	}
	return out
}

// OpenPositionCount returns the number of open positions.
func (e *Engine) OpenPositionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for _, pos := range e.positions {
		if pos.IsOpen() {
			count++
		}
	}
	return count
}

// Orders returns snapshots of all orders.
func (e *Engine) Orders() []models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	return out
}

// ClosedTrades returns the closed trade log.
func (e *Engine) ClosedTrades() []models.ClosedTrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.ClosedTrade(nil), e.closed...)
}

// LastPrice returns the latest tick price for a symbol.
func (e *Engine) LastPrice(symbol string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tick, ok := e.ticks[symbol]
	if !ok {
		return 0, errors.Wrapf(errors.ErrNoMarketData, "price %s", symbol)
	}
	return tick.Price, nil
}

// Exposure returns the open entry notional per symbol.
func (e *Engine) Exposure() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]float64)
	for _, pos := range e.positions {
		if pos.IsOpen() {
			out[pos.Symbol] += pos.EntryPrice * pos.RemainingQuantity
		}
	}
	return out
}

// OpenSymbols returns the symbols with open positions.
func (e *Engine) OpenSymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, pos := range e.positions {
		if pos.IsOpen() && !seen[pos.Symbol] {
			seen[pos.Symbol] = true
			out = append(out, pos.Symbol)
		}
	}
	return out
}

// DailyPnL returns realized P&L since the start of the current UTC day.
func (e *Engine) DailyPnL() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dailyPnL
}

// --- internals (lock held) ---

func entrySide(side models.Side) models.OrderSide {
	if side == models.SideLong {
		return models.OrderSideBuy
	}
	return models.OrderSideSell
}

// slippedPrice applies adverse slippage: buys pay up, sells receive less.
func (e *Engine) slippedPrice(price float64, side models.OrderSide) float64 {
	slip := e.cfg.SlippagePercent / 100
	if side == models.OrderSideBuy {
		return price * (1 + slip)
	}
	return price * (1 - slip)
}

func (e *Engine) createPosition(req OpenRequest, order *models.Order, entryPrice, entryFee float64, now time.Time) *models.Position {
	pos := &models.Position{
		ID:                uuid.NewString(),
		Symbol:            req.Symbol,
		Side:              req.Side,
		Status:            models.PositionStatusOpen,
		EntryPrice:        entryPrice,
		CurrentPrice:      entryPrice,
		Quantity:          req.Quantity,
		RemainingQuantity: req.Quantity,
		StopLoss:          req.StopLoss,
		TakeProfits:       append([]models.TakeProfitLevel(nil), req.TakeProfits...),
		TrailingStep:      -1,
		EntryFee:          entryFee,
		OpenedAt:          now,
		UpdatedAt:         now,
	}
	order.PositionID = pos.ID
	e.positions[pos.ID] = pos
	return pos
}

// matchPendingOrders fills pending limit entry orders crossed by the tick.
// Limit orders execute at the limit price, not the triggering tick price.
func (e *Engine) matchPendingOrders(tick models.Tick) {
	for id, order := range e.orders {
		if order.Status != models.OrderStatusPending || order.Symbol != tick.Symbol {
			continue
		}
		if !order.Crosses(tick.Price) {
			continue
		}

		req, isEntry := e.pendingEntries[id]
		if !isEntry {
			continue
		}

		notional := order.Price * order.Quantity
		fee := notional * e.cfg.MakerFeePercent / 100
		if e.balance.Available < fee {
			// The maker fee can no longer be paid; release the reservation.
			e.balance.Locked -= notional
			e.balance.Available += notional
			order.Status = models.OrderStatusCancelled
			order.CancelledAt = tick.Timestamp
			delete(e.pendingEntries, id)
			e.logger.Warn().Str("order_id", id).Msg("Limit fill abandoned, fee unaffordable")
			continue
		}
		e.balance.Available -= fee
		e.balance.Total -= fee

		order.Status = models.OrderStatusFilled
		order.FilledQuantity = order.Quantity
		order.AveragePrice = order.Price
		order.Fees = fee
		order.FilledAt = tick.Timestamp
		delete(e.pendingEntries, id)

		pos := e.createPosition(req, order, order.Price, fee, tick.Timestamp)
		pos.MarkPrice(tick.Price, tick.Timestamp)

		e.logger.Info().Str("order_id", id).Str("symbol", order.Symbol).
			Float64("price", order.Price).Msg("Limit order filled")
		e.publish(stream.Event{Type: stream.EventOrderFilled, Symbol: order.Symbol,
			OrderID: id, PositionID: pos.ID, Price: order.Price, Quantity: order.Quantity, Timestamp: tick.Timestamp})
		e.publish(stream.Event{Type: stream.EventPositionOpened, Symbol: order.Symbol,
			PositionID: pos.ID, Price: order.Price, Quantity: order.Quantity, Timestamp: tick.Timestamp})
	}
}

// checkStopLoss closes the whole remaining position at the stop price when
// the tick crosses it. Returns true when the position was closed.
func (e *Engine) checkStopLoss(pos *models.Position, tick models.Tick) bool {
	if pos.StopLoss <= 0 {
		return false
	}
	hit := false
	if pos.Side == models.SideLong {
		hit = tick.Price <= pos.StopLoss
	} else {
		hit = tick.Price >= pos.StopLoss
	}
	if !hit {
		return false
	}
	e.closeQuantity(pos, pos.RemainingQuantity, pos.StopLoss, e.cfg.TakerFeePercent, 0, models.ExitReasonStopLoss, tick.Timestamp)
	return true
}

// checkTakeProfits fills crossed take-profit levels as partial closes at the
// level price. Returns true when the position was fully closed.
func (e *Engine) checkTakeProfits(pos *models.Position, tick models.Tick) bool {
	for i := range pos.TakeProfits {
		level := &pos.TakeProfits[i]
		if level.Filled {
			continue
		}
		crossed := false
		if pos.Side == models.SideLong {
			crossed = tick.Price >= level.Price
		} else {
			crossed = tick.Price <= level.Price
		}
		if !crossed {
			continue
		}

		level.Filled = true
		qty := pos.Quantity * level.ClosePercent / 100
		if qty > pos.RemainingQuantity || allFilled(pos.TakeProfits) {
			qty = pos.RemainingQuantity
		}
		e.closeQuantity(pos, qty, level.Price, e.cfg.MakerFeePercent, 0, models.ExitReasonTakeProfit, tick.Timestamp)
		if !pos.IsOpen() {
			return true
		}
	}
	return !pos.IsOpen()
}

// allFilled reports whether every take-profit level is now filled.
func allFilled(levels []models.TakeProfitLevel) bool {
	for _, lvl := range levels {
		if !lvl.Filled {
			return false
		}
	}
	return true
}

// runLifecycle evaluates the exit rules and applies the resulting actions.
func (e *Engine) runLifecycle(pos *models.Position, tick models.Tick) {
	eval := e.lifecycle.Evaluate(pos, tick.Price, tick.Timestamp)

	if eval.ShouldClose {
		side := models.OrderSideSell
		if pos.Side == models.SideShort {
			side = models.OrderSideBuy
		}
		execPrice := e.slippedPrice(tick.Price, side)
		slippage := math.Abs(execPrice-tick.Price) * pos.RemainingQuantity
		e.closeQuantity(pos, pos.RemainingQuantity, execPrice, e.cfg.TakerFeePercent, slippage, eval.CloseReason, tick.Timestamp)
		return
	}

	for _, action := range eval.Actions {
		if action.Type != exits.ActionUpdateStop {
			continue
		}
		if action.Rule == "breakeven" {
			pos.BreakevenSet = true
		}
		if action.Step > pos.TrailingStep {
			pos.TrailingStep = action.Step
		}
		if action.Trailing {
			pos.TrailingActive = true
		}
		if action.NewStop != pos.StopLoss && action.NewStop > 0 {
			pos.StopLoss = action.NewStop
			e.logger.Debug().Str("position_id", pos.ID).Str("rule", action.Rule).
				Float64("stop", pos.StopLoss).Msg("Stop updated")
			e.publish(stream.Event{Type: stream.EventStopUpdated, Symbol: pos.Symbol,
				PositionID: pos.ID, Price: pos.StopLoss, Reason: action.Rule, Timestamp: tick.Timestamp})
		}
	}
}

// closeQuantity realizes qty of a position at execPrice. It releases the
// proportional locked entry notional, credits the exit proceeds net of the
// exit fee, and appends a ClosedTrade carrying the full fee burden
// (proportional entry fee plus exit fee).
func (e *Engine) closeQuantity(pos *models.Position, qty, execPrice, feePercent, slippage float64, reason models.ExitReason, now time.Time) *models.ClosedTrade {
	if qty > pos.RemainingQuantity {
		qty = pos.RemainingQuantity
	}

	entryNotional := pos.EntryPrice * qty
	exitNotional := execPrice * qty
	exitFee := exitNotional * feePercent / 100
	entryFeeShare := 0.0
	if pos.Quantity > 0 {
		entryFeeShare = pos.EntryFee * qty / pos.Quantity
	}

	grossPnL := exitNotional - entryNotional
	if pos.Side == models.SideShort {
		grossPnL = entryNotional - exitNotional
	}

	e.balance.Locked -= entryNotional
	e.balance.Available += entryNotional + grossPnL - exitFee
	e.balance.Total += grossPnL - exitFee

	pnl := grossPnL - exitFee - entryFeeShare
	pnlPercent := 0.0
	if pos.EntryPrice > 0 {
		pnlPercent = (execPrice - pos.EntryPrice) / pos.EntryPrice * 100
		if pos.Side == models.SideShort {
			pnlPercent = -pnlPercent
		}
	}

	pos.RemainingQuantity -= qty
	pos.RealizedPnL += pnl
	pos.UpdatedAt = now
	if pos.RemainingQuantity <= quantityEpsilon {
		pos.RemainingQuantity = 0
		pos.UnrealizedPnL = 0
		pos.Status = models.PositionStatusClosed
		pos.ClosedAt = now
	} else {
		pos.MarkPrice(pos.CurrentPrice, now)
	}

	trade := models.ClosedTrade{
		ID:         uuid.NewString(),
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  execPrice,
		EntryTime:  pos.OpenedAt,
		ExitTime:   now,
		Quantity:   qty,
		PnL:        pnl,
		PnLPercent: pnlPercent,
		Fees:       exitFee + entryFeeShare,
		Slippage:   slippage,
		ExitReason: reason,
	}
	e.closed = append(e.closed, trade)
	e.dailyPnL += pnl

	e.logger.Info().Str("position_id", pos.ID).Str("symbol", pos.Symbol).
		Str("reason", string(reason)).Float64("quantity", qty).
		Float64("price", execPrice).Float64("pnl", pnl).Msg("Position exit")
	e.publish(stream.Event{Type: stream.EventPositionClosed, Symbol: pos.Symbol,
		PositionID: pos.ID, Price: execPrice, Quantity: qty, Reason: string(reason), Timestamp: now})

	return &trade
}

// updateEquity recomputes equity from total plus unrealized P&L and tracks
// peak equity and max drawdown.
func (e *Engine) updateEquity() {
	equity := e.balance.Total
	for _, pos := range e.positions {
		if pos.IsOpen() {
			equity += pos.UnrealizedPnL
		}
	}
	e.balance.Equity = equity

	if equity > e.peakEquity {
		e.peakEquity = equity
	}
	if e.peakEquity > 0 {
		drawdown := (e.peakEquity - equity) / e.peakEquity
		if drawdown > e.maxDrawdown {
			e.maxDrawdown = drawdown
		}
	}
}

// rollDay resets the daily P&L counter when the UTC day changes.
func (e *Engine) rollDay(ts time.Time) {
	day := ts.UTC().Truncate(24 * time.Hour)
	if e.currentDay.IsZero() {
		e.currentDay = day
		return
	}
	if day.After(e.currentDay) {
		e.currentDay = day
		e.dailyPnL = 0
	}
}

// assertLedger verifies available+locked==total. A violation means ledger
// corruption, which is a programming error, not a recoverable condition.
func (e *Engine) assertLedger() {
	diff := e.balance.Available + e.balance.Locked - e.balance.Total
	if math.Abs(diff) > ledgerEpsilon {
		e.logger.Error().
			Float64("available", e.balance.Available).
			Float64("locked", e.balance.Locked).
			Float64("total", e.balance.Total).
			Float64("diff", diff).
			Msg("Ledger invariant violated")
		panic("engine: ledger invariant violated: available+locked != total")
	}
}

func (e *Engine) publish(event stream.Event) {
	if e.hub != nil {
		e.hub.Publish(event)
	}
}
