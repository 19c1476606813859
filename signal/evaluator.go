// Package signal pulls bar history for one instrument, asks the strategy
// rule engine for the latest confirmed entry/exit decision, and publishes
// signal events for decisions that fire.
package signal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/tradebot/bus"
	"github.com/rustyeddy/tradebot/indicators"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/strategy"
)

// Metrics is the indicator snapshot for one instrument, computed from
// confirmed bars only.
type Metrics struct {
	Instrument  string
	TargetPrice float64
	MAShort     float64
	MALong      float64
	RSI         float64
	LastClose   float64
	Bars        int
	ComputedAt  time.Time
}

// Evaluator evaluates the strategy against confirmed bar history.
//
// Look-ahead avoidance: the in-progress bar is always dropped; indicator
// windows and rule history end at the last closed bar. The live current
// price only ever substitutes for the decision price itself.
type Evaluator struct {
	bars     market.BarProvider
	strat    *strategy.Strategy
	events   *bus.Bus
	log      *slog.Logger
	interval string
	lookback int // bars fetched per evaluation
	minData  int // confirmed bars required before any signal
}

// NewEvaluator wires an evaluator. lookback bounds the history fetched per
// call; minDataPoints below which every check answers "no signal".
func NewEvaluator(bars market.BarProvider, strat *strategy.Strategy, events *bus.Bus,
	interval string, lookback, minDataPoints int, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{
		bars:     bars,
		strat:    strat,
		events:   events,
		log:      log,
		interval: interval,
		lookback: lookback,
		minData:  minDataPoints,
	}
}

// CheckEntry reports whether the entry rules fire for the instrument at
// currentPrice. targetPrice <= 0 means "compute it here". Insufficient
// history is "no signal", not an error. A true decision publishes a
// SIGNAL_ENTRY event before returning.
func (e *Evaluator) CheckEntry(ctx context.Context, instrument string, currentPrice, targetPrice float64) bool {
	confirmed, ok := e.history(ctx, instrument)
	if !ok {
		return false
	}

	last, _ := confirmed.Last()
	if targetPrice <= 0 {
		targetPrice = e.target(confirmed)
	}

	// The decision price is live; everything else stays on closed bars.
	evalBar := last
	if currentPrice > 0 {
		evalBar.Close = currentPrice
	}

	sig := e.strat.Evaluate(evalBar, confirmed, strategy.Indicators{
		strategy.IndicatorTarget: targetPrice,
	})
	if !sig.Entry {
		return false
	}

	e.publish(bus.SignalEntry, instrument, "buy", currentPrice, targetPrice, "entry rules satisfied")
	return true
}

// CheckExit reports whether the exit rules fire for the instrument on its
// last confirmed bar. A true decision publishes a SIGNAL_EXIT event before
// returning.
func (e *Evaluator) CheckExit(ctx context.Context, instrument string) bool {
	confirmed, ok := e.history(ctx, instrument)
	if !ok {
		return false
	}

	last, _ := confirmed.Last()
	sig := e.strat.Evaluate(last, confirmed, nil)
	if !sig.Exit {
		return false
	}

	e.publish(bus.SignalExit, instrument, "sell", last.Close, 0, "exit rules satisfied")
	return true
}

// CalculateMetrics computes the indicator snapshot over the last lookback
// confirmed bars. Short history returns a market.ErrNotEnoughData error.
func (e *Evaluator) CalculateMetrics(ctx context.Context, instrument string, lookback int) (Metrics, error) {
	if lookback <= 0 {
		lookback = e.lookback
	}
	raw, err := e.bars.GetOHLCV(ctx, instrument, e.interval, lookback+1)
	if err != nil {
		return Metrics{}, fmt.Errorf("signal: fetch bars for %s: %w", instrument, err)
	}
	confirmed := raw.Confirmed()
	if len(confirmed) < e.minData {
		return Metrics{}, fmt.Errorf("signal: %s has %d confirmed bars, need %d: %w",
			instrument, len(confirmed), e.minData, market.ErrNotEnoughData)
	}

	p := e.strat.Params()
	last, _ := confirmed.Last()
	m := Metrics{
		Instrument:  instrument,
		TargetPrice: e.target(confirmed),
		LastClose:   last.Close,
		Bars:        len(confirmed),
		ComputedAt:  time.Now().UTC(),
	}
	// Secondary indicators are best-effort; a window longer than the
	// available history just leaves the field zero.
	m.MAShort, _ = indicators.MA(confirmed, p.ShortPeriod)
	m.MALong, _ = indicators.MA(confirmed, p.LongPeriod)
	m.RSI, _ = indicators.RSI(confirmed, p.RSIPeriod)
	return m, nil
}

// history fetches and confirms the evaluation window, answering ok=false
// (logged, no error) when the instrument is short on data.
func (e *Evaluator) history(ctx context.Context, instrument string) (market.Series, bool) {
	raw, err := e.bars.GetOHLCV(ctx, instrument, e.interval, e.lookback+1)
	if err != nil {
		e.log.Warn("bar fetch failed", "instrument", instrument, "err", err)
		return nil, false
	}
	confirmed := raw.Confirmed()
	if len(confirmed) < e.minData {
		e.log.Debug("no signal: not enough confirmed bars",
			"instrument", instrument, "have", len(confirmed), "need", e.minData)
		return nil, false
	}
	return confirmed, true
}

// target derives the volatility-breakout entry target for the upcoming
// period from the last confirmed bar: close plus k times its range.
func (e *Evaluator) target(confirmed market.Series) float64 {
	last, ok := confirmed.Last()
	if !ok {
		return 0
	}
	return indicators.BreakoutTarget(last, last.Close, e.strat.Params().BreakoutK)
}

func (e *Evaluator) publish(t bus.EventType, instrument, action string, price, target float64, reason string) {
	if e.events == nil {
		return
	}
	ev := bus.NewEvent(t, "signal.evaluator")
	ev.Signal = &bus.SignalPayload{
		Instrument:  instrument,
		Action:      action,
		Price:       price,
		TargetPrice: target,
		Reason:      reason,
	}
	e.events.Publish(ev)
}
