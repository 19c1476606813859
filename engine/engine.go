// Package engine is the top-level execution orchestrator. On each market
// update it checks armed risk orders, then the exit rules, then the entry
// rules, sizing and placing orders and keeping the position ledger and risk
// monitor in step.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rustyeddy/tradebot/bus"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/notify"
	"github.com/rustyeddy/tradebot/orders"
	"github.com/rustyeddy/tradebot/position"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/signal"
	"github.com/rustyeddy/tradebot/venue"
)

// Config carries the orchestration knobs.
type Config struct {
	Instruments    []string
	QuoteCurrency  string  // funding currency for buys
	MaxSlots       int     // max simultaneous open positions
	FeeRate        float64 // venue taker fee, fraction
	MinOrderAmount float64 // venue minimum notional, in quote currency
	Risk           risk.Config

	// RecoverPositions reconstructs positions from venue balances at
	// startup using the *current* market price as a synthetic entry price.
	// That entry price is an approximation, not the true historical one.
	RecoverPositions bool
}

// Engine drives one trading cycle per market update. Updates for different
// instruments may run concurrently; each instrument's state is serialized
// behind its own lock.
type Engine struct {
	cfg        Config
	balances   venue.BalanceReader
	prices     market.PriceProvider
	signals    *signal.Evaluator
	ledger     *position.Ledger
	dispatcher *orders.Dispatcher
	monitor    *risk.Monitor
	events     *bus.Bus
	notifier   notify.Notifier
	log        *slog.Logger

	mu      sync.Mutex
	targets map[string]float64    // instrument -> precomputed entry target
	locks   map[string]*sync.Mutex // instrument-keyed serialization
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Balances   venue.BalanceReader
	Prices     market.PriceProvider
	Signals    *signal.Evaluator
	Ledger     *position.Ledger
	Dispatcher *orders.Dispatcher
	Monitor    *risk.Monitor
	Events     *bus.Bus
	Notifier   notify.Notifier
	Log        *slog.Logger
}

// New wires an engine. Every collaborator is passed in explicitly so tests
// can run isolated instances.
func New(cfg Config, d Deps) (*Engine, error) {
	if cfg.MaxSlots <= 0 {
		return nil, fmt.Errorf("engine: max slots must be positive, got %d", cfg.MaxSlots)
	}
	if d.Signals == nil || d.Ledger == nil || d.Dispatcher == nil || d.Monitor == nil {
		return nil, fmt.Errorf("engine: signals, ledger, dispatcher and monitor are required")
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		balances:   d.Balances,
		prices:     d.Prices,
		signals:    d.Signals,
		ledger:     d.Ledger,
		dispatcher: d.Dispatcher,
		monitor:    d.Monitor,
		events:     d.Events,
		notifier:   notify.NewBestEffort(d.Notifier, log),
		log:        log,
		targets:    make(map[string]float64),
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// OnBar handles one market update for one instrument. Holding: risk orders
// are checked before the exit signal; a trigger or exit sells, closes the
// position and cancels the instrument's remaining risk orders. Flat: the
// entry rules are checked against the bar's close and the cached target.
func (e *Engine) OnBar(ctx context.Context, instrument string, bar market.Bar) {
	lock := e.instrumentLock(instrument)
	lock.Lock()
	defer lock.Unlock()

	if e.ledger.Has(instrument) {
		if triggered := e.monitor.Check(instrument, bar.Close, bar.Low, bar.High, bar.Time); len(triggered) > 0 {
			t := triggered[0]
			e.closePosition(ctx, instrument, t.TriggerPrice, string(t.TriggerKind))
			return
		}
		if e.signals.CheckExit(ctx, instrument) {
			e.closePosition(ctx, instrument, bar.Close, "exit_signal")
		}
		return
	}

	e.tryEnter(ctx, instrument, bar)
}

// DailyReset closes every held instrument whose exit signal fires, then
// recomputes each instrument's entry target for the next session.
func (e *Engine) DailyReset(ctx context.Context) {
	for _, instrument := range e.ledger.Instruments() {
		lock := e.instrumentLock(instrument)
		lock.Lock()
		if e.signals.CheckExit(ctx, instrument) {
			e.closePosition(ctx, instrument, 0, "daily_exit")
		}
		lock.Unlock()
	}

	for _, instrument := range e.cfg.Instruments {
		m, err := e.signals.CalculateMetrics(ctx, instrument, 0)
		if err != nil {
			e.log.Debug("target recompute skipped", "instrument", instrument, "err", err)
			continue
		}
		e.mu.Lock()
		e.targets[instrument] = m.TargetPrice
		e.mu.Unlock()
		e.log.Info("entry target recomputed",
			"instrument", instrument, "target", m.TargetPrice, "last_close", m.LastClose)
	}
}

// Target returns the cached entry target for an instrument (0 when none).
func (e *Engine) Target(instrument string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.targets[instrument]
}

// RecoverPositions synthesizes positions from venue base-currency balances
// at startup. The entry price recorded is the price right now, not the true
// historical entry; PnL against recovered positions is approximate. Gated
// by config and logged loudly.
func (e *Engine) RecoverPositions(ctx context.Context) {
	if !e.cfg.RecoverPositions {
		return
	}
	for _, instrument := range e.cfg.Instruments {
		if e.ledger.Has(instrument) {
			continue
		}
		bal, err := e.balances.GetBalance(ctx, venue.Base(instrument))
		if err != nil {
			e.log.Warn("recovery balance lookup failed", "instrument", instrument, "err", err)
			continue
		}
		if bal.Available <= 0 {
			continue
		}
		price, err := e.prices.GetCurrentPrice(ctx, instrument)
		if err != nil || price <= 0 {
			e.log.Warn("recovery price lookup failed", "instrument", instrument, "err", err)
			continue
		}
		if bal.Available*price < e.cfg.MinOrderAmount {
			// Dust left over from fees, not a position.
			continue
		}

		e.log.Warn("recovering position from venue balance; entry price is the current price, not the original",
			"instrument", instrument, "qty", bal.Available, "synthetic_entry", price)
		e.ledger.Open(instrument, price, bal.Available, time.Now().UTC())
		e.monitor.Arm(instrument, price, time.Now().UTC(), bal.Available, e.cfg.Risk)
	}
}

// tryEnter runs the flat-side of the cycle: entry check, sizing, buy, open,
// arm.
func (e *Engine) tryEnter(ctx context.Context, instrument string, bar market.Bar) {
	target := e.Target(instrument)
	if !e.signals.CheckEntry(ctx, instrument, bar.Close, target) {
		return
	}

	slots := e.cfg.MaxSlots - e.ledger.OpenCount()
	if slots <= 0 {
		e.log.Debug("entry skipped: no free slots", "instrument", instrument)
		return
	}
	bal, err := e.balances.GetBalance(ctx, e.cfg.QuoteCurrency)
	if err != nil {
		e.log.Warn("entry aborted: balance lookup failed", "instrument", instrument, "err", err)
		return
	}

	amount := bal.Available / float64(slots) * (1 - e.cfg.FeeRate)
	if amount <= e.cfg.MinOrderAmount {
		e.log.Debug("entry skipped: sized amount at or below minimum",
			"instrument", instrument, "amount", amount, "min", e.cfg.MinOrderAmount)
		return
	}

	o := e.dispatcher.PlaceBuy(ctx, instrument, amount, e.cfg.MinOrderAmount)
	if o == nil {
		return
	}

	entryPrice, qty := fillOf(o, bar.Close, amount)
	e.ledger.Open(instrument, entryPrice, qty, bar.Time)
	e.monitor.Arm(instrument, entryPrice, bar.Time, qty, e.cfg.Risk)

	e.notifier.SendTradeSignal("BUY", instrument, entryPrice, map[string]string{
		"amount": fmt.Sprintf("%.2f", amount),
		"qty":    fmt.Sprintf("%.8f", qty),
		"target": fmt.Sprintf("%.2f", target),
	})
}

// closePosition sells the full holding and, only after the sell succeeds,
// closes the ledger entry and cancels the instrument's remaining risk
// orders. A failed venue call leaves every piece of state untouched.
func (e *Engine) closePosition(ctx context.Context, instrument string, price float64, reason string) {
	o := e.dispatcher.SellAll(ctx, instrument, e.cfg.MinOrderAmount)
	if o == nil {
		e.log.Warn("close aborted: sell did not go through; position kept",
			"instrument", instrument, "reason", reason)
		return
	}

	exitPrice := o.FilledPrice
	if exitPrice <= 0 {
		exitPrice = price
	}
	closed := e.ledger.Close(ctx, instrument, exitPrice)
	e.monitor.CancelAll(instrument)

	fields := map[string]string{"reason": reason}
	if closed != nil {
		abs := (exitPrice - closed.EntryPrice) * closed.Quantity
		fields["entry"] = fmt.Sprintf("%.2f", closed.EntryPrice)
		fields["pnl"] = fmt.Sprintf("%.2f", abs)
	}
	e.notifier.SendTradeSignal("SELL", instrument, exitPrice, fields)
}

func (e *Engine) instrumentLock(instrument string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[instrument]
	if !ok {
		l = &sync.Mutex{}
		e.locks[instrument] = l
	}
	return l
}

// fillOf extracts entry price and quantity from a fill, estimating from the
// bar price when the venue reported a pending order.
func fillOf(o *venue.Order, barPrice, quoteAmount float64) (price, qty float64) {
	price = o.FilledPrice
	qty = o.FilledQty
	if price <= 0 {
		price = barPrice
	}
	if qty <= 0 && price > 0 {
		qty = quoteAmount / price
	}
	return price, qty
}
