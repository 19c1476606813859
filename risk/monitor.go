package risk

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rustyeddy/tradebot/bus"
	"github.com/rustyeddy/tradebot/pkg/id"
)

// Monitor holds the active conditional orders per instrument and evaluates
// them against incoming bars. Orders are checked in insertion order.
type Monitor struct {
	mu     sync.Mutex
	orders map[string][]*Order // instrument -> insertion-ordered orders
	events *bus.Bus
	log    *slog.Logger
}

// NewMonitor builds an empty monitor.
func NewMonitor(events *bus.Bus, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		orders: make(map[string][]*Order),
		events: events,
		log:    log,
	}
}

// Arm creates the conditional orders cfg declares for a freshly opened
// position. Percentage thresholds are resolved to absolute prices once,
// at arm time: stop = entry*(1-pct), target = entry*(1+pct). Returns
// copies of the created orders.
func (m *Monitor) Arm(instrument string, entryPrice float64, entryDate time.Time, qty float64, cfg Config) []Order {
	var created []*Order

	if stop := resolveDown(entryPrice, cfg.StopLossPrice, cfg.StopLossPct); stop > 0 {
		created = append(created, &Order{
			ID:         id.New(),
			Instrument: instrument,
			Kind:       StopLoss,
			EntryPrice: entryPrice,
			EntryDate:  entryDate,
			Qty:        qty,
			StopPrice:  stop,
			Active:     true,
		})
	}
	if target := resolveUp(entryPrice, cfg.TakeProfitPrice, cfg.TakeProfitPct); target > 0 {
		created = append(created, &Order{
			ID:          id.New(),
			Instrument:  instrument,
			Kind:        TakeProfit,
			EntryPrice:  entryPrice,
			EntryDate:   entryDate,
			Qty:         qty,
			TargetPrice: target,
			Active:      true,
		})
	}
	if cfg.TrailingStopPct > 0 {
		created = append(created, &Order{
			ID:           id.New(),
			Instrument:   instrument,
			Kind:         TrailingStop,
			EntryPrice:   entryPrice,
			EntryDate:    entryDate,
			Qty:          qty,
			TrailPct:     cfg.TrailingStopPct,
			HighestPrice: entryPrice,
			StopPrice:    entryPrice * (1 - cfg.TrailingStopPct),
			Active:       true,
		})
	}

	m.mu.Lock()
	m.orders[instrument] = append(m.orders[instrument], created...)
	m.mu.Unlock()

	out := make([]Order, len(created))
	for i, o := range created {
		out[i] = *o
		m.log.Info("risk order armed",
			"id", o.ID, "instrument", instrument, "kind", string(o.Kind),
			"stop", o.StopPrice, "target", o.TargetPrice)
	}
	return out
}

// Check evaluates every active order on the instrument against the bar's
// low/high, in insertion order. Trailing stops first ratchet their
// threshold up from periodHigh, never down. At most one rule fires per
// order; stop-loss wins over take-profit when both would fire. Triggered
// orders transition to their terminal state and are returned as copies.
func (m *Monitor) Check(instrument string, currentPrice, periodLow, periodHigh float64, date time.Time) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var triggered []Order
	for _, o := range m.orders[instrument] {
		if !o.Active || o.Triggered {
			continue
		}

		if o.Kind == TrailingStop {
			if periodHigh > o.HighestPrice {
				o.HighestPrice = periodHigh
			}
			if s := o.HighestPrice * (1 - o.TrailPct); s > o.StopPrice {
				o.StopPrice = s
			}
		}

		switch {
		case o.StopPrice > 0 && periodLow <= o.StopPrice:
			m.trigger(o, o.StopPrice, stopKind(o.Kind), date)
			triggered = append(triggered, *o)
		case o.TargetPrice > 0 && periodHigh >= o.TargetPrice:
			m.trigger(o, o.TargetPrice, TakeProfit, date)
			triggered = append(triggered, *o)
		}
	}
	return triggered
}

// CancelAll deactivates every active, untriggered order for instrument;
// an empty instrument matches everything. Returns the number cancelled.
func (m *Monitor) CancelAll(instrument string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for instr, orders := range m.orders {
		if instrument != "" && instr != instrument {
			continue
		}
		for _, o := range orders {
			if o.Active && !o.Triggered {
				o.Active = false
				n++
			}
		}
	}
	if n > 0 {
		m.log.Info("risk orders cancelled", "instrument", instrument, "count", n)
	}
	return n
}

// ActiveOrders returns copies of the active, untriggered orders for the
// instrument, in insertion order.
func (m *Monitor) ActiveOrders(instrument string) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Order
	for _, o := range m.orders[instrument] {
		if o.Active && !o.Triggered {
			out = append(out, *o)
		}
	}
	return out
}

// trigger transitions o to its terminal Triggered state and publishes the
// risk-trigger signal. Caller holds the lock.
func (m *Monitor) trigger(o *Order, price float64, kind Kind, date time.Time) {
	o.Triggered = true
	o.Active = false
	o.TriggeredAt = date
	o.TriggerPrice = price
	o.TriggerKind = kind

	m.log.Info("risk order triggered",
		"id", o.ID, "instrument", o.Instrument, "kind", string(kind),
		"trigger_price", price, "entry_price", o.EntryPrice)

	if m.events != nil {
		ev := bus.NewEvent(bus.SignalRiskTrigger, "risk.monitor")
		ev.Signal = &bus.SignalPayload{
			Instrument: o.Instrument,
			Action:     "sell",
			Price:      price,
			Reason:     string(kind),
		}
		m.events.Publish(ev)
	}
}

// stopKind maps a stop threshold hit back to the kind reported on the
// trigger: trailing orders report trailing_stop, everything else stop_loss.
func stopKind(k Kind) Kind {
	if k == TrailingStop {
		return TrailingStop
	}
	return StopLoss
}

// resolveDown picks the absolute price if set, else derives entry*(1-pct).
func resolveDown(entry, abs, pct float64) float64 {
	if abs > 0 {
		return abs
	}
	if pct > 0 {
		return entry * (1 - pct)
	}
	return 0
}

// resolveUp picks the absolute price if set, else derives entry*(1+pct).
func resolveUp(entry, abs, pct float64) float64 {
	if abs > 0 {
		return abs
	}
	if pct > 0 {
		return entry * (1 + pct)
	}
	return 0
}
