// Package store persists closed trades and session summaries to SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"paper-trader/internal/models"
)

// Journal is a SQLite-backed trade journal.
type Journal struct {
	db *sql.DB
}

// TradeFilter narrows trade queries.
type TradeFilter struct {
	Symbol    string
	Side      models.Side
	Reason    models.ExitReason
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// SessionRecord is one completed simulation run.
type SessionRecord struct {
	ID           string
	StartedAt    time.Time
	EndedAt      time.Time
	StartBalance float64
	EndBalance   float64
	Stats        models.TradeStats
}

// NewJournal opens (or creates) the journal database at dbPath.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	-- Closed trades, one row per full or partial position close
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		position_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		entry_time DATETIME NOT NULL,
		exit_time DATETIME NOT NULL,
		pnl REAL NOT NULL,
		pnl_percent REAL NOT NULL,
		fees REAL NOT NULL,
		slippage REAL NOT NULL,
		exit_reason TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Completed simulation sessions
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL,
		start_balance REAL NOT NULL,
		end_balance REAL NOT NULL,
		total_trades INTEGER NOT NULL,
		winning_trades INTEGER NOT NULL,
		losing_trades INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		profit_factor REAL NOT NULL,
		total_pnl REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		sharpe_ratio REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
	CREATE INDEX IF NOT EXISTS idx_trades_position ON trades(position_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
	`

	_, err := j.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// LogTrade saves one closed trade.
func (j *Journal) LogTrade(ctx context.Context, t models.ClosedTrade) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades (id, position_id, symbol, side, quantity, entry_price, exit_price, entry_time, exit_time, pnl, pnl_percent, fees, slippage, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.PositionID, t.Symbol, string(t.Side), t.Quantity, t.EntryPrice, t.ExitPrice, t.EntryTime, t.ExitTime, t.PnL, t.PnLPercent, t.Fees, t.Slippage, string(t.ExitReason))
	if err != nil {
		return fmt.Errorf("failed to log trade: %w", err)
	}
	return nil
}

// LogTrades saves a batch of closed trades in one transaction.
func (j *Journal) LogTrades(ctx context.Context, trades []models.ClosedTrade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO trades (id, position_id, symbol, side, quantity, entry_price, exit_price, entry_time, exit_time, pnl, pnl_percent, fees, slippage, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		_, err := stmt.ExecContext(ctx, t.ID, t.PositionID, t.Symbol, string(t.Side), t.Quantity, t.EntryPrice, t.ExitPrice, t.EntryTime, t.ExitTime, t.PnL, t.PnLPercent, t.Fees, t.Slippage, string(t.ExitReason))
		if err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetTrades retrieves closed trades matching the filter, newest first.
func (j *Journal) GetTrades(ctx context.Context, filter TradeFilter) ([]models.ClosedTrade, error) {
	query := "SELECT id, position_id, symbol, side, quantity, entry_price, exit_price, entry_time, exit_time, pnl, pnl_percent, fees, slippage, exit_reason FROM trades WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Side != "" {
		query += " AND side = ?"
		args = append(args, string(filter.Side))
	}
	if filter.Reason != "" {
		query += " AND exit_reason = ?"
		args = append(args, string(filter.Reason))
	}
	if !filter.StartTime.IsZero() {
		query += " AND exit_time >= ?"
		args = append(args, filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		query += " AND exit_time <= ?"
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY exit_time DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.ClosedTrade
	for rows.Next() {
		var t models.ClosedTrade
		var side, reason string
		if err := rows.Scan(&t.ID, &t.PositionID, &t.Symbol, &side, &t.Quantity, &t.EntryPrice, &t.ExitPrice, &t.EntryTime, &t.ExitTime, &t.PnL, &t.PnLPercent, &t.Fees, &t.Slippage, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = models.Side(side)
		t.ExitReason = models.ExitReason(reason)
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// SaveSession records a completed simulation session summary.
func (j *Journal) SaveSession(ctx context.Context, s SessionRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (id, started_at, ended_at, start_balance, end_balance, total_trades, winning_trades, losing_trades, win_rate, profit_factor, total_pnl, max_drawdown, sharpe_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.StartedAt, s.EndedAt, s.StartBalance, s.EndBalance,
		s.Stats.TotalTrades, s.Stats.WinningTrades, s.Stats.LosingTrades,
		s.Stats.WinRate, s.Stats.ProfitFactor, s.Stats.TotalPnL,
		s.Stats.MaxDrawdown, s.Stats.SharpeRatio)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSessions retrieves the most recent sessions, newest first.
func (j *Journal) GetSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	query := `
		SELECT id, started_at, ended_at, start_balance, end_balance, total_trades, winning_trades, losing_trades, win_rate, profit_factor, total_pnl, max_drawdown, sharpe_ratio
		FROM sessions ORDER BY started_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var s SessionRecord
		if err := rows.Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.StartBalance, &s.EndBalance,
			&s.Stats.TotalTrades, &s.Stats.WinningTrades, &s.Stats.LosingTrades,
			&s.Stats.WinRate, &s.Stats.ProfitFactor, &s.Stats.TotalPnL,
			&s.Stats.MaxDrawdown, &s.Stats.SharpeRatio); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// SymbolPnL returns net realized PnL grouped by symbol.
func (j *Journal) SymbolPnL(ctx context.Context) (map[string]float64, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT symbol, SUM(pnl) FROM trades GROUP BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbol pnl: %w", err)
	}
	defer rows.Close()

	pnl := make(map[string]float64)
	for rows.Next() {
		var symbol string
		var sum sql.NullFloat64
		if err := rows.Scan(&symbol, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan symbol pnl: %w", err)
		}
		if sum.Valid {
			pnl[symbol] = sum.Float64
		}
	}

	return pnl, rows.Err()
}
