package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trader/internal/models"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	journal, err := NewJournal(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })
	return journal
}

func sampleTrade(symbol string, pnl float64, exitTime time.Time) models.ClosedTrade {
	return models.ClosedTrade{
		ID:         uuid.NewString(),
		PositionID: uuid.NewString(),
		Symbol:     symbol,
		Side:       models.SideLong,
		EntryPrice: 100,
		ExitPrice:  100 + pnl,
		EntryTime:  exitTime.Add(-time.Hour),
		ExitTime:   exitTime,
		Quantity:   1,
		PnL:        pnl,
		PnLPercent: pnl,
		Fees:       0.1,
		ExitReason: models.ExitReasonTakeProfit,
	}
}

func TestJournalTradeRoundTrip(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	trade := sampleTrade("BTCUSDT", 50, time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC))
	trade.ExitReason = models.ExitReasonStopLoss
	require.NoError(t, journal.LogTrade(ctx, trade))

	got, err := journal.GetTrades(ctx, TradeFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, trade.ID, got[0].ID)
	assert.Equal(t, trade.Symbol, got[0].Symbol)
	assert.Equal(t, models.SideLong, got[0].Side)
	assert.Equal(t, models.ExitReasonStopLoss, got[0].ExitReason)
	assert.InDelta(t, trade.PnL, got[0].PnL, 1e-9)
	assert.True(t, got[0].ExitTime.Equal(trade.ExitTime))
}

func TestJournalTradeFilters(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []models.ClosedTrade{
		sampleTrade("BTCUSDT", 10, base.Add(1*time.Hour)),
		sampleTrade("ETHUSDT", -5, base.Add(2*time.Hour)),
		sampleTrade("BTCUSDT", 20, base.Add(3*time.Hour)),
	}
	require.NoError(t, journal.LogTrades(ctx, trades))

	bySymbol, err := journal.GetTrades(ctx, TradeFilter{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	assert.Len(t, bySymbol, 2)

	byTime, err := journal.GetTrades(ctx, TradeFilter{StartTime: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, byTime, 2)

	limited, err := journal.GetTrades(ctx, TradeFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, trades[2].ID, limited[0].ID, "newest first")
}

func TestJournalSessionRoundTrip(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	record := SessionRecord{
		ID:           uuid.NewString(),
		StartedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndedAt:      time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC),
		StartBalance: 10000,
		EndBalance:   10500,
		Stats: models.TradeStats{
			TotalTrades:   12,
			WinningTrades: 7,
			LosingTrades:  5,
			WinRate:       58.33,
			ProfitFactor:  1.4,
			TotalPnL:      500,
			MaxDrawdown:   3.2,
			SharpeRatio:   0.21,
		},
	}
	require.NoError(t, journal.SaveSession(ctx, record))

	sessions, err := journal.GetSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	assert.Equal(t, record.ID, sessions[0].ID)
	assert.InDelta(t, 10500, sessions[0].EndBalance, 1e-9)
	assert.Equal(t, 12, sessions[0].Stats.TotalTrades)
	assert.InDelta(t, 1.4, sessions[0].Stats.ProfitFactor, 1e-9)
}

func TestJournalSymbolPnL(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, journal.LogTrades(ctx, []models.ClosedTrade{
		sampleTrade("BTCUSDT", 10, base),
		sampleTrade("BTCUSDT", -4, base.Add(time.Hour)),
		sampleTrade("ETHUSDT", 7, base.Add(2*time.Hour)),
	}))

	pnl, err := journal.SymbolPnL(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 6, pnl["BTCUSDT"], 1e-9)
	assert.InDelta(t, 7, pnl["ETHUSDT"], 1e-9)
}

func TestJournalEmptyBatch(t *testing.T) {
	journal := newTestJournal(t)
	assert.NoError(t, journal.LogTrades(context.Background(), nil))
}
