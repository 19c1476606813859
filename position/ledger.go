// Package position tracks the zero-or-one open position per instrument and
// publishes open/close events with the price/PnL snapshot at that moment.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rustyeddy/tradebot/bus"
	"github.com/rustyeddy/tradebot/market"
)

// Position is one open holding. Created only by a successful buy settlement
// (or startup reconciliation), destroyed only by Close.
type Position struct {
	Instrument string
	EntryPrice float64
	EntryTime  time.Time
	Quantity   float64
}

// Ledger enforces the at-most-one-position-per-instrument invariant.
// All methods are safe under concurrent calls.
type Ledger struct {
	mu        sync.Mutex
	positions map[string]Position
	prices    market.PriceProvider // optional; used for close snapshots
	events    *bus.Bus
	log       *slog.Logger
}

// NewLedger builds an empty ledger. prices may be nil; close events then
// carry a zero price snapshot when the caller supplies none.
func NewLedger(prices market.PriceProvider, events *bus.Bus, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{
		positions: make(map[string]Position),
		prices:    prices,
		events:    events,
		log:       log,
	}
}

// Has reports whether the instrument holds an open position.
func (l *Ledger) Has(instrument string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.positions[instrument]
	return ok
}

// Get returns a copy of the open position, or nil.
func (l *Ledger) Get(instrument string) *Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[instrument]
	if !ok {
		return nil
	}
	return &p
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// Instruments lists the instruments with open positions.
func (l *Ledger) Instruments() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.positions))
	for k := range l.positions {
		out = append(out, k)
	}
	return out
}

// Open records a new position and publishes POSITION_OPENED.
//
// Opening an instrument that already holds a position is a sequencing
// defect in the caller, never a runtime condition: it panics instead of
// overwriting.
func (l *Ledger) Open(instrument string, entryPrice, qty float64, entryTime time.Time) Position {
	l.mu.Lock()
	if _, exists := l.positions[instrument]; exists {
		l.mu.Unlock()
		panic(fmt.Sprintf("position: Open(%s) with a position already open", instrument))
	}
	p := Position{
		Instrument: instrument,
		EntryPrice: entryPrice,
		EntryTime:  entryTime,
		Quantity:   qty,
	}
	l.positions[instrument] = p
	l.mu.Unlock()

	l.log.Info("position opened",
		"instrument", instrument, "entry_price", entryPrice, "qty", qty)
	l.publish(bus.PositionOpened, p, entryPrice)
	return p
}

// Close removes the position and publishes POSITION_CLOSED with a PnL
// snapshot at exitPrice. Pass exitPrice <= 0 to have the ledger look the
// price up itself. Returns nil when nothing was open.
func (l *Ledger) Close(ctx context.Context, instrument string, exitPrice float64) *Position {
	l.mu.Lock()
	p, ok := l.positions[instrument]
	if !ok {
		l.mu.Unlock()
		return nil
	}
	delete(l.positions, instrument)
	l.mu.Unlock()

	if exitPrice <= 0 && l.prices != nil {
		px, err := l.prices.GetCurrentPrice(ctx, instrument)
		if err != nil {
			l.log.Warn("close snapshot price lookup failed",
				"instrument", instrument, "err", err)
		} else {
			exitPrice = px
		}
	}

	abs, pct := pnl(p, exitPrice)
	l.log.Info("position closed",
		"instrument", instrument, "entry_price", p.EntryPrice,
		"exit_price", exitPrice, "pnl", abs, "pnl_pct", pct)
	l.publish(bus.PositionClosed, p, exitPrice)
	return &p
}

// UnrealizedPnL returns the absolute and percentage PnL at currentPrice.
// Non-positive prices on either side yield (0, 0) instead of a division
// fault.
func (l *Ledger) UnrealizedPnL(instrument string, currentPrice float64) (float64, float64) {
	l.mu.Lock()
	p, ok := l.positions[instrument]
	l.mu.Unlock()
	if !ok {
		return 0, 0
	}
	return pnl(p, currentPrice)
}

func pnl(p Position, currentPrice float64) (float64, float64) {
	if currentPrice <= 0 || p.EntryPrice <= 0 {
		return 0, 0
	}
	abs := (currentPrice - p.EntryPrice) * p.Quantity
	pct := (currentPrice - p.EntryPrice) / p.EntryPrice * 100
	return abs, pct
}

func (l *Ledger) publish(t bus.EventType, p Position, price float64) {
	if l.events == nil {
		return
	}
	abs, pct := pnl(p, price)
	ev := bus.NewEvent(t, "position.ledger")
	ev.Position = &bus.PositionPayload{
		Instrument:   p.Instrument,
		EntryPrice:   p.EntryPrice,
		CurrentPrice: price,
		Quantity:     p.Quantity,
		PnL:          abs,
		PnLPercent:   pct,
	}
	l.events.Publish(ev)
}
