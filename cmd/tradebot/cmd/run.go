package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/tradebot/bus"
	"github.com/rustyeddy/tradebot/config"
	"github.com/rustyeddy/tradebot/engine"
	"github.com/rustyeddy/tradebot/journal"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/notify"
	"github.com/rustyeddy/tradebot/orders"
	"github.com/rustyeddy/tradebot/position"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/signal"
	"github.com/rustyeddy/tradebot/strategy"
	"github.com/rustyeddy/tradebot/venue/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a paper trading session from a config file",
	Long: `Run a trading session against the simulated venue.

The config file specifies instruments, strategy rules, risk parameters and
journaling. Bars are generated as a seeded random walk so sessions are
reproducible.

Example:
  tradebot run -f tradebot.yaml --bars 200`,
	RunE: runRun,
}

var (
	runConfigPath string
	runBars       int
	runSeed       int64
	runBasePrice  float64
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "file", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.Flags().IntVar(&runBars, "bars", 200, "number of bars to simulate per instrument")
	runCmd.Flags().Int64Var(&runSeed, "seed", 1, "random walk seed")
	runCmd.Flags().Float64Var(&runBasePrice, "base-price", 100, "starting price for generated bars")
	runCmd.MarkFlagRequired("file")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	events := bus.New(log)

	strat, err := strategy.FromConfig(cfg.Strategy.Name, cfg.Strategy.Params, cfg.Strategy.Entry, cfg.Strategy.Exit)
	if err != nil {
		return fmt.Errorf("build strategy: %w", err)
	}

	v := sim.New(cfg.Trading.FeeRate)
	v.Deposit(cfg.Account.QuoteCurrency, cfg.Venue.SimBalance)

	var limiter *rate.Limiter
	if cfg.Venue.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Venue.RatePerSecond), 1)
	}

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if j != nil {
		defer j.Close()
		_, unsub := journal.NewRecorder(j, events, log)
		defer unsub()
	}

	evaluator := signal.NewEvaluator(v, strat, events, cfg.Trading.Interval,
		cfg.Trading.Lookback, cfg.Trading.MinDataPoints, log)
	ledger := position.NewLedger(v, events, log)
	dispatcher := orders.New(v, v, events, limiter, log)
	monitor := risk.NewMonitor(events, log)

	eng, err := engine.New(engine.Config{
		Instruments:      cfg.Trading.Instruments,
		QuoteCurrency:    cfg.Account.QuoteCurrency,
		MaxSlots:         cfg.Trading.MaxSlots,
		FeeRate:          cfg.Trading.FeeRate,
		MinOrderAmount:   cfg.Trading.MinOrderAmount,
		Risk:             cfg.Risk,
		RecoverPositions: cfg.Recovery.Enabled,
	}, engine.Deps{
		Balances:   v,
		Prices:     v,
		Signals:    evaluator,
		Ledger:     ledger,
		Dispatcher: dispatcher,
		Monitor:    monitor,
		Events:     events,
		Notifier:   notify.NewLogNotifier(log),
		Log:        log,
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	ctx := context.Background()
	publishSystem(events, bus.SystemStarted, "paper session started")

	rng := rand.New(rand.NewSource(runSeed))
	start := time.Now().UTC().Add(-time.Duration(runBars+cfg.Trading.Lookback) * 24 * time.Hour)

	// Seed enough history for the evaluator's warm-up window.
	walks := make(map[string]float64, len(cfg.Trading.Instruments))
	for _, instrument := range cfg.Trading.Instruments {
		walks[instrument] = runBasePrice
		var hist market.Series
		for i := 0; i < cfg.Trading.Lookback; i++ {
			b := nextBar(rng, walks, instrument, start.Add(time.Duration(i)*24*time.Hour))
			hist = append(hist, b)
		}
		v.SetBars(instrument, hist)
		last, _ := hist.Last()
		v.SetPrice(instrument, last.Close)
	}

	eng.RecoverPositions(ctx)
	eng.DailyReset(ctx)

	for i := 0; i < runBars; i++ {
		ts := start.Add(time.Duration(cfg.Trading.Lookback+i) * 24 * time.Hour)
		for _, instrument := range cfg.Trading.Instruments {
			b := nextBar(rng, walks, instrument, ts)
			v.PushBar(instrument, b)
			eng.OnBar(ctx, instrument, b)
		}
		eng.DailyReset(ctx)
	}

	publishSystem(events, bus.SystemStopped, "paper session finished")

	bal, _ := v.GetBalance(ctx, cfg.Account.QuoteCurrency)
	fmt.Printf("\nSession complete: %d bars x %d instruments\n", runBars, len(cfg.Trading.Instruments))
	fmt.Printf("  Quote balance: %.2f %s\n", bal.Available, cfg.Account.QuoteCurrency)
	for _, instrument := range cfg.Trading.Instruments {
		if p := ledger.Get(instrument); p != nil {
			px, _ := v.GetCurrentPrice(ctx, instrument)
			abs, pct := ledger.UnrealizedPnL(instrument, px)
			fmt.Printf("  Open %s: qty=%.6f entry=%.2f now=%.2f pnl=%.2f (%.2f%%)\n",
				instrument, p.Quantity, p.EntryPrice, px, abs, pct)
		}
	}
	return nil
}

func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "csv":
		return journal.NewCSV(cfg.TradesFile, cfg.EventsFile)
	case "sqlite":
		return journal.NewSQLite(cfg.DBPath)
	default:
		return nil, nil
	}
}

func publishSystem(events *bus.Bus, t bus.EventType, msg string) {
	ev := bus.NewEvent(t, "cmd.run")
	ev.System = &bus.SystemPayload{Message: msg}
	events.Publish(ev)
}

// nextBar advances the instrument's random walk one day.
func nextBar(rng *rand.Rand, walks map[string]float64, instrument string, ts time.Time) market.Bar {
	open := walks[instrument]
	drift := 1 + (rng.Float64()-0.48)*0.04
	cls := open * drift
	high := cls
	if open > cls {
		high = open
	}
	high *= 1 + rng.Float64()*0.01
	low := cls
	if open < cls {
		low = open
	}
	low *= 1 - rng.Float64()*0.01
	walks[instrument] = cls

	return market.Bar{
		Time:   ts,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  cls,
		Volume: 1000 + rng.Float64()*5000,
	}
}
