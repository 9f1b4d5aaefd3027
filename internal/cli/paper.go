package cli

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"paper-trader/internal/engine"
	"paper-trader/internal/exits"
	"paper-trader/internal/models"
	"paper-trader/internal/risk"
	"paper-trader/internal/sizing"
	"paper-trader/internal/store"
	"paper-trader/internal/stream"
)

// sessionOpts are the paper command flags.
type sessionOpts struct {
	symbols    []string
	ticks      int
	seed       int64
	volatility float64
	entryProb  float64
	dbPath     string
}

func newPaperCmd(app *App) *cobra.Command {
	opts := sessionOpts{}

	cmd := &cobra.Command{
		Use:   "paper",
		Short: "Run a simulated trading session on random-walk prices",
		Long: `Runs a full simulation session: random-walk ticks drive the execution
engine while a simple momentum rule opens positions through the risk
enforcer. Stops, take-profit ladders and lifecycle exits fire as prices
move. Prints a performance report at the end and optionally persists
the trades to a journal database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPaperSession(app, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.symbols, "symbols", []string{"BTCUSDT", "ETHUSDT"}, "symbols to simulate")
	cmd.Flags().IntVar(&opts.ticks, "ticks", 2000, "number of ticks to simulate")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed (0 uses current time)")
	cmd.Flags().Float64Var(&opts.volatility, "volatility", 0.15, "per-tick volatility in percent")
	cmd.Flags().Float64Var(&opts.entryProb, "entry-prob", 0.02, "per-tick entry probability per symbol")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "journal database path (empty disables persistence)")

	return cmd
}

func runPaperSession(app *App, opts sessionOpts) error {
	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	execCfg := app.Config.Execution
	eng := engine.New(engine.Config{
		InitialBalance:  execCfg.InitialBalance,
		Currency:        execCfg.Currency,
		MakerFeePercent: execCfg.MakerFeePercent,
		TakerFeePercent: execCfg.TakerFeePercent,
		SlippagePercent: execCfg.SlippagePercent,
	}, app.Config.Exit, app.Logger)

	hub := stream.NewHub()
	defer hub.Close()
	eng.SetHub(hub)

	// Simulated clock, one minute per tick.
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	eng.SetClock(func() time.Time { return clock })

	enforcer := risk.NewEnforcer(app.Config.Risk, eng, app.Logger)

	prices := make(map[string]float64, len(opts.symbols))
	momentum := make(map[string]float64, len(opts.symbols))
	for i, symbol := range opts.symbols {
		prices[symbol] = 100 * float64(i+1)
	}

	startedAt := clock
	app.Logger.Info().
		Int64("seed", seed).
		Int("ticks", opts.ticks).
		Strs("symbols", opts.symbols).
		Msg("Paper session started")

	for i := 0; i < opts.ticks; i++ {
		clock = clock.Add(time.Minute)

		for _, symbol := range opts.symbols {
			ret := rng.NormFloat64() * opts.volatility / 100
			prices[symbol] *= 1 + ret
			momentum[symbol] = 0.9*momentum[symbol] + 0.1*ret

			eng.ProcessTick(models.Tick{
				Symbol:    symbol,
				Price:     prices[symbol],
				Timestamp: clock,
			})

			if rng.Float64() < opts.entryProb && !hasOpenPosition(eng, symbol) {
				side := models.SideLong
				if momentum[symbol] < 0 {
					side = models.SideShort
				}
				enforcer.OpenPosition(risk.OpenParams{
					Symbol:    symbol,
					Side:      side,
					OrderType: models.OrderTypeMarket,
					Sizing: sizing.PercentageParams{
						RiskPerTradePercent: 1,
						StopLossPercent:     app.Config.Risk.DefaultStopLossPercent,
					},
					Stop: exits.FixedStop{Percent: app.Config.Risk.DefaultStopLossPercent},
					TakeProfit: exits.MultiTarget{Levels: []exits.TargetLevel{
						{Percent: 2, ClosePercent: 50},
						{Percent: 4, ClosePercent: 30},
						{Percent: 8, ClosePercent: 20},
					}},
				})
			}
		}
	}

	// Flatten remaining positions at the last seen price.
	for _, pos := range eng.Positions() {
		if pos.IsOpen() {
			if _, err := enforcer.ClosePosition(pos.ID, prices[pos.Symbol]); err != nil {
				app.Logger.Warn().Err(err).Str("position_id", pos.ID).Msg("Failed to flatten position")
			}
		}
	}

	printSessionReport(eng, execCfg.InitialBalance, execCfg.Currency)

	published, dropped := hub.Metrics()
	app.Logger.Info().
		Uint64("events_published", published).
		Uint64("events_dropped", dropped).
		Msg("Paper session finished")

	if opts.dbPath != "" {
		if err := persistSession(app, eng, opts.dbPath, startedAt, clock, execCfg.InitialBalance); err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}
		color.Green("✓ Session saved to %s", opts.dbPath)
	}

	return nil
}

func hasOpenPosition(eng *engine.Engine, symbol string) bool {
	for _, s := range eng.OpenSymbols() {
		if s == symbol {
			return true
		}
	}
	return false
}

func printSessionReport(eng *engine.Engine, initialBalance float64, currency string) {
	stats := eng.Stats()
	balance := eng.Balance()

	color.Cyan("📊 Session Report")
	fmt.Printf("  Balance        %.2f %s (start %.2f)\n", balance.Total, currency, initialBalance)
	fmt.Printf("  Equity         %.2f %s\n", balance.Equity, currency)
	fmt.Printf("  Trades         %d (%d wins / %d losses)\n", stats.TotalTrades, stats.WinningTrades, stats.LosingTrades)
	fmt.Printf("  Win rate       %.1f%%\n", stats.WinRate)
	fmt.Printf("  Profit factor  %.2f\n", stats.ProfitFactor)
	fmt.Printf("  Avg win/loss   %.2f / %.2f\n", stats.AverageWin, stats.AverageLoss)
	fmt.Printf("  Max drawdown   %.2f%%\n", stats.MaxDrawdown)
	fmt.Printf("  Sharpe         %.3f\n", stats.SharpeRatio)

	if stats.TotalPnL >= 0 {
		color.Green("  Total PnL      +%.2f %s", stats.TotalPnL, currency)
	} else {
		color.Red("  Total PnL      %.2f %s", stats.TotalPnL, currency)
	}
}

func persistSession(app *App, eng *engine.Engine, dbPath string, startedAt, endedAt time.Time, startBalance float64) error {
	journal, err := store.NewJournal(dbPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	ctx := context.Background()
	if err := journal.LogTrades(ctx, eng.ClosedTrades()); err != nil {
		return err
	}

	return journal.SaveSession(ctx, store.SessionRecord{
		ID:           uuid.NewString(),
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		StartBalance: startBalance,
		EndBalance:   eng.Balance().Total,
		Stats:        eng.Stats(),
	})
}

func newJournalCmd(app *App) *cobra.Command {
	var dbPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent trades and sessions from the journal database",
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := store.NewJournal(dbPath)
			if err != nil {
				return err
			}
			defer journal.Close()

			ctx := context.Background()

			sessions, err := journal.GetSessions(ctx, limit)
			if err != nil {
				return err
			}
			color.Cyan("📒 Sessions")
			if len(sessions) == 0 {
				fmt.Println("  (none)")
			}
			for _, s := range sessions {
				fmt.Printf("  %s  %s  balance %.2f -> %.2f  trades %d  win rate %.1f%%\n",
					s.ID[:8], s.StartedAt.Format("2006-01-02 15:04"),
					s.StartBalance, s.EndBalance, s.Stats.TotalTrades, s.Stats.WinRate)
			}

			trades, err := journal.GetTrades(ctx, store.TradeFilter{Limit: limit})
			if err != nil {
				return err
			}
			color.Cyan("📒 Recent Trades")
			if len(trades) == 0 {
				fmt.Println("  (none)")
			}
			for _, t := range trades {
				line := fmt.Sprintf("  %s %-10s %-5s qty %.4f  %.2f -> %.2f  pnl %+.2f  %s",
					t.ExitTime.Format("01-02 15:04"), t.Symbol, strings.ToUpper(string(t.Side)),
					t.Quantity, t.EntryPrice, t.ExitPrice, t.PnL, t.ExitReason)
				if t.PnL >= 0 {
					color.Green("%s", line)
				} else {
					color.Red("%s", line)
				}
			}

			pnl, err := journal.SymbolPnL(ctx)
			if err != nil {
				return err
			}
			if len(pnl) > 0 {
				color.Cyan("📒 PnL by Symbol")
				for symbol, sum := range pnl {
					fmt.Printf("  %-10s %+.2f\n", symbol, sum)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "trader.db", "journal database path")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show")

	return cmd
}
