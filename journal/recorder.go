package journal

import (
	"fmt"
	"log/slog"

	"github.com/rustyeddy/tradebot/bus"
)

// Recorder subscribes to the event bus and journals what flows over it:
// filled orders become trade rows, everything else an event row. Journal
// failures are logged and dropped; the bus dispatch never sees them.
type Recorder struct {
	j   Journal
	log *slog.Logger
}

// NewRecorder attaches a recorder to the bus and returns it with its
// unsubscribe function.
func NewRecorder(j Journal, b *bus.Bus, log *slog.Logger) (*Recorder, func()) {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{j: j, log: log}
	return r, b.SubscribeAll(r.handle)
}

func (r *Recorder) handle(ev bus.Event) {
	if ev.Type == bus.OrderFilled && ev.Order != nil {
		err := r.j.RecordTrade(TradeRecord{
			OrderID:     ev.Order.OrderID,
			Instrument:  ev.Order.Instrument,
			Side:        ev.Order.Side,
			Requested:   ev.Order.Requested,
			FilledQty:   ev.Order.FilledQty,
			FilledPrice: ev.Order.FilledPrice,
			Status:      ev.Order.Status,
			Time:        ev.Time,
		})
		if err != nil {
			r.log.Warn("journal trade write failed", "order_id", ev.Order.OrderID, "err", err)
		}
		return
	}

	rec := EventRecord{
		Type:   string(ev.Type),
		Source: ev.Source,
		Time:   ev.Time,
	}
	switch {
	case ev.Signal != nil:
		rec.Instrument = ev.Signal.Instrument
		rec.Detail = fmt.Sprintf("action=%s price=%g reason=%s", ev.Signal.Action, ev.Signal.Price, ev.Signal.Reason)
	case ev.Order != nil:
		rec.Instrument = ev.Order.Instrument
		rec.Detail = fmt.Sprintf("order=%s side=%s status=%s", ev.Order.OrderID, ev.Order.Side, ev.Order.Status)
	case ev.Position != nil:
		rec.Instrument = ev.Position.Instrument
		rec.Detail = fmt.Sprintf("entry=%g current=%g pnl=%g", ev.Position.EntryPrice, ev.Position.CurrentPrice, ev.Position.PnL)
	case ev.System != nil:
		rec.Detail = ev.System.Message
	case ev.Error != nil:
		rec.Instrument = ""
		rec.Detail = fmt.Sprintf("component=%s msg=%s", ev.Error.Component, ev.Error.Message)
	}

	if err := r.j.RecordEvent(rec); err != nil {
		r.log.Warn("journal event write failed", "type", rec.Type, "err", err)
	}
}
