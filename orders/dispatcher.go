// Package orders submits buy/sell orders to the venue, normalizes the
// responses, and publishes order lifecycle events exactly once per observed
// status transition.
package orders

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/rustyeddy/tradebot/bus"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/venue"
)

// Dispatcher wraps the venue order surface. Venue failures never escape as
// errors: callers get nil and the failure is logged, classified as
// insufficient-balance or generic rejection.
type Dispatcher struct {
	venue   venueOps
	prices  market.PriceProvider // sell notional valuation
	events  *bus.Bus
	limiter *rate.Limiter // venue call pacing; nil disables
	log     *slog.Logger

	mu    sync.Mutex
	cache map[string]venue.Order // last observed state per order ID
}

type venueOps interface {
	venue.BalanceReader
	venue.OrderPlacer
	venue.OrderReader
	venue.OrderCanceler
}

// New builds a dispatcher. limiter may be nil for unpaced venues (sim).
func New(v venueOps, prices market.PriceProvider, events *bus.Bus, limiter *rate.Limiter, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		venue:   v,
		prices:  prices,
		events:  events,
		limiter: limiter,
		log:     log,
		cache:   make(map[string]venue.Order),
	}
}

// PlaceBuy submits a market buy of quoteAmount. Requests below
// minOrderAmount are skipped locally without touching the venue. Returns
// nil on skip or failure.
func (d *Dispatcher) PlaceBuy(ctx context.Context, instrument string, quoteAmount, minOrderAmount float64) *venue.Order {
	if quoteAmount < minOrderAmount {
		d.log.Debug("buy skipped: below minimum order amount",
			"instrument", instrument, "amount", quoteAmount, "min", minOrderAmount)
		return nil
	}
	if !d.pace(ctx) {
		return nil
	}

	o, err := d.venue.BuyMarket(ctx, instrument, quoteAmount)
	if err != nil {
		d.logOrderFailure("buy", instrument, err)
		return nil
	}
	return d.accept(o)
}

// PlaceSell submits a market sell of baseAmount. The notional value at the
// current price must reach minOrderAmount or the request is skipped locally.
func (d *Dispatcher) PlaceSell(ctx context.Context, instrument string, baseAmount, minOrderAmount float64) *venue.Order {
	px, err := d.prices.GetCurrentPrice(ctx, instrument)
	if err != nil {
		d.log.Warn("sell aborted: price lookup failed", "instrument", instrument, "err", err)
		return nil
	}
	if baseAmount*px < minOrderAmount {
		d.log.Debug("sell skipped: notional below minimum order amount",
			"instrument", instrument, "amount", baseAmount, "notional", baseAmount*px, "min", minOrderAmount)
		return nil
	}
	if !d.pace(ctx) {
		return nil
	}

	o, err := d.venue.SellMarket(ctx, instrument, baseAmount)
	if err != nil {
		d.logOrderFailure("sell", instrument, err)
		return nil
	}
	return d.accept(o)
}

// SellAll sells the full available base-currency balance for instrument.
// A zero or negative balance is a no-op.
func (d *Dispatcher) SellAll(ctx context.Context, instrument string, minOrderAmount float64) *venue.Order {
	bal, err := d.venue.GetBalance(ctx, venue.Base(instrument))
	if err != nil {
		d.log.Warn("sell-all aborted: balance lookup failed", "instrument", instrument, "err", err)
		return nil
	}
	if bal.Available <= 0 {
		d.log.Debug("sell-all skipped: no balance", "instrument", instrument)
		return nil
	}
	return d.PlaceSell(ctx, instrument, bal.Available, minOrderAmount)
}

// GetStatus fetches the order's current state, diffs it against the cached
// state, and publishes exactly one lifecycle event per observed transition.
// Repeated polls of an unchanged status publish nothing. Returns nil when
// the venue lookup fails or the order is unknown.
func (d *Dispatcher) GetStatus(ctx context.Context, orderID string) *venue.Order {
	if !d.pace(ctx) {
		return nil
	}
	fresh, err := d.venue.GetOrderStatus(ctx, orderID)
	if err != nil {
		d.log.Warn("order status lookup failed", "order_id", orderID, "err", err)
		return nil
	}

	d.mu.Lock()
	prev, known := d.cache[orderID]
	if known && prev.Status.Terminal() {
		// Terminal states never advance; ignore whatever the venue says.
		d.mu.Unlock()
		return &prev
	}
	changed := !known || prev.Status != fresh.Status
	d.cache[orderID] = fresh
	d.mu.Unlock()

	if changed && known {
		d.publishTransition(fresh)
	}
	return &fresh
}

// Cancel cancels a pending order, updating the cache and publishing
// ORDER_CANCELLED when the venue confirms.
func (d *Dispatcher) Cancel(ctx context.Context, orderID string) bool {
	if !d.pace(ctx) {
		return false
	}
	ok, err := d.venue.CancelOrder(ctx, orderID)
	if err != nil {
		d.log.Warn("order cancel failed", "order_id", orderID, "err", err)
		return false
	}
	if !ok {
		return false
	}

	d.mu.Lock()
	o, known := d.cache[orderID]
	if known && !o.Status.Terminal() {
		o.Status = venue.StatusCancelled
		d.cache[orderID] = o
	}
	d.mu.Unlock()

	if known {
		d.publishTransition(o)
	}
	return true
}

// Cached returns the last observed state of an order, or nil.
func (d *Dispatcher) Cached(orderID string) *venue.Order {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.cache[orderID]
	if !ok {
		return nil
	}
	return &o
}

// accept caches a freshly placed order and publishes ORDER_PLACED.
func (d *Dispatcher) accept(o venue.Order) *venue.Order {
	d.mu.Lock()
	d.cache[o.ID] = o
	d.mu.Unlock()

	d.log.Info("order placed",
		"order_id", o.ID, "instrument", o.Instrument, "side", string(o.Side),
		"requested", o.Requested, "status", string(o.Status))
	d.publish(bus.OrderPlaced, o)
	return &o
}

func (d *Dispatcher) publishTransition(o venue.Order) {
	var t bus.EventType
	switch o.Status {
	case venue.StatusFilled:
		t = bus.OrderFilled
	case venue.StatusCancelled:
		t = bus.OrderCancelled
	case venue.StatusFailed:
		t = bus.OrderFailed
	default:
		// Partial fills and venue-specific intermediate states fall back
		// to the placement event type.
		t = bus.OrderPlaced
	}
	d.publish(t, o)
}

func (d *Dispatcher) publish(t bus.EventType, o venue.Order) {
	if d.events == nil {
		return
	}
	ev := bus.NewEvent(t, "orders.dispatcher")
	ev.Order = &bus.OrderPayload{
		OrderID:     o.ID,
		Instrument:  o.Instrument,
		Side:        string(o.Side),
		Status:      string(o.Status),
		Requested:   o.Requested,
		FilledQty:   o.FilledQty,
		FilledPrice: o.FilledPrice,
	}
	d.events.Publish(ev)
}

// logOrderFailure distinguishes insufficient-balance rejections from
// generic venue failures so operators can tell them apart.
func (d *Dispatcher) logOrderFailure(side, instrument string, err error) {
	switch {
	case errors.Is(err, venue.ErrInsufficientBalance):
		d.log.Warn("order rejected: insufficient balance",
			"side", side, "instrument", instrument, "err", err)
	case errors.Is(err, venue.ErrOrderRejected):
		d.log.Error("order rejected by venue",
			"side", side, "instrument", instrument, "err", err)
	default:
		d.log.Error("order failed",
			"side", side, "instrument", instrument, "err", err)
	}
}

func (d *Dispatcher) pace(ctx context.Context) bool {
	if d.limiter == nil {
		return true
	}
	if err := d.limiter.Wait(ctx); err != nil {
		d.log.Warn("venue call aborted", "err", err)
		return false
	}
	return true
}
