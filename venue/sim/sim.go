// Package sim provides an in-memory venue used for paper trading and tests.
// It implements the venue client interfaces and the market data provider
// interfaces over settable balances, prices and bar history.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/pkg/id"
	"github.com/rustyeddy/tradebot/venue"
)

// Calls counts venue invocations so tests can assert "never called".
type Calls struct {
	Balance int
	Buy     int
	Sell    int
	Status  int
	Cancel  int
}

// Venue is a simulated exchange. All methods are safe under concurrent
// calls.
type Venue struct {
	mu       sync.Mutex
	balances map[string]float64 // currency -> available
	locked   map[string]float64
	prices   map[string]float64     // instrument -> last price
	bars     map[string]market.Series
	orders   map[string]venue.Order
	fee      float64
	deferred bool  // when set, orders settle via Settle instead of at once
	failNext error // injected error for the next order call
	calls    Calls
	now      func() time.Time
}

// New builds a venue with the given taker fee rate (e.g. 0.0005).
func New(feeRate float64) *Venue {
	return &Venue{
		balances: make(map[string]float64),
		locked:   make(map[string]float64),
		prices:   make(map[string]float64),
		bars:     make(map[string]market.Series),
		orders:   make(map[string]venue.Order),
		fee:      feeRate,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Deposit credits available funds in one currency.
func (v *Venue) Deposit(currency string, amount float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[currency] += amount
}

// SetPrice sets the last traded price for an instrument.
func (v *Venue) SetPrice(instrument string, price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prices[instrument] = price
}

// SetBars replaces the bar history served by GetOHLCV.
func (v *Venue) SetBars(instrument string, bars market.Series) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bars[instrument] = append(market.Series(nil), bars...)
}

// PushBar appends one bar and moves the last price to its close.
func (v *Venue) PushBar(instrument string, b market.Bar) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bars[instrument] = append(v.bars[instrument], b)
	v.prices[instrument] = b.Close
}

// DeferFills makes new orders settle as pending; tests then drive the
// lifecycle with Settle / ForceStatus.
func (v *Venue) DeferFills() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deferred = true
}

// FailNext injects err into the next Buy/Sell call.
func (v *Venue) FailNext(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failNext = err
}

// CallCounts returns a snapshot of the invocation counters.
func (v *Venue) CallCounts() Calls {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

// GetBalance implements venue.BalanceReader.
func (v *Venue) GetBalance(_ context.Context, currency string) (venue.Balance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls.Balance++
	return venue.Balance{
		Currency:  currency,
		Available: v.balances[currency],
		Locked:    v.locked[currency],
	}, nil
}

// BuyMarket implements venue.OrderPlacer. quoteAmount is spent from the
// quote currency; the filled base quantity is net of the fee.
func (v *Venue) BuyMarket(_ context.Context, instrument string, quoteAmount float64) (venue.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls.Buy++

	if err := v.takeFailure(); err != nil {
		return venue.Order{}, err
	}

	quoteCur := venue.Quote(instrument)
	if v.balances[quoteCur] < quoteAmount {
		return venue.Order{}, venue.RejectInsufficient(instrument, venue.SideBuy, "available balance below order amount")
	}
	price := v.prices[instrument]
	if price <= 0 {
		return venue.Order{}, venue.RejectOrder(instrument, venue.SideBuy, "no market price")
	}

	now := v.now()
	o := venue.Order{
		ID:         id.New(),
		Instrument: instrument,
		Side:       venue.SideBuy,
		Kind:       venue.KindMarket,
		Requested:  quoteAmount,
		Status:     venue.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	v.balances[quoteCur] -= quoteAmount
	v.locked[quoteCur] += quoteAmount

	if !v.deferred {
		v.settleLocked(&o)
	}
	v.orders[o.ID] = o
	return o, nil
}

// SellMarket implements venue.OrderPlacer. baseAmount is sold from the base
// currency; proceeds land in the quote currency net of the fee.
func (v *Venue) SellMarket(_ context.Context, instrument string, baseAmount float64) (venue.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls.Sell++

	if err := v.takeFailure(); err != nil {
		return venue.Order{}, err
	}

	baseCur := venue.Base(instrument)
	if v.balances[baseCur] < baseAmount {
		return venue.Order{}, venue.RejectInsufficient(instrument, venue.SideSell, "available balance below order amount")
	}
	price := v.prices[instrument]
	if price <= 0 {
		return venue.Order{}, venue.RejectOrder(instrument, venue.SideSell, "no market price")
	}

	now := v.now()
	o := venue.Order{
		ID:         id.New(),
		Instrument: instrument,
		Side:       venue.SideSell,
		Kind:       venue.KindMarket,
		Requested:  baseAmount,
		Status:     venue.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	v.balances[baseCur] -= baseAmount
	v.locked[baseCur] += baseAmount

	if !v.deferred {
		v.settleLocked(&o)
	}
	v.orders[o.ID] = o
	return o, nil
}

// GetOrderStatus implements venue.OrderReader.
func (v *Venue) GetOrderStatus(_ context.Context, orderID string) (venue.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls.Status++
	o, ok := v.orders[orderID]
	if !ok {
		return venue.Order{}, venue.RejectOrder("", "", "unknown order "+orderID)
	}
	return o, nil
}

// CancelOrder implements venue.OrderCanceler. Terminal orders cannot be
// cancelled.
func (v *Venue) CancelOrder(_ context.Context, orderID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls.Cancel++
	o, ok := v.orders[orderID]
	if !ok || o.Status.Terminal() {
		return false, nil
	}
	v.releaseLocked(o)
	o.Status = venue.StatusCancelled
	o.UpdatedAt = v.now()
	v.orders[orderID] = o
	return true, nil
}

// Settle fills a pending order at the current market price (deferred mode).
func (v *Venue) Settle(orderID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderID]
	if !ok || o.Status.Terminal() {
		return false
	}
	v.settleLocked(&o)
	v.orders[orderID] = o
	return true
}

// ForceStatus overrides an order's status without balance movement; a test
// hook for exercising lifecycle transitions the sim does not reach itself.
func (v *Venue) ForceStatus(orderID string, s venue.OrderStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderID]
	if !ok {
		return
	}
	o.Status = s
	o.UpdatedAt = v.now()
	v.orders[orderID] = o
}

// GetCurrentPrice implements market.PriceProvider.
func (v *Venue) GetCurrentPrice(_ context.Context, instrument string) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.prices[instrument]
	if !ok {
		return 0, venue.ErrConnection
	}
	return p, nil
}

// GetOHLCV implements market.BarProvider, returning up to count most recent
// bars, oldest first.
func (v *Venue) GetOHLCV(_ context.Context, instrument, _ string, count int) (market.Series, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	bars := v.bars[instrument]
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return append(market.Series(nil), bars...), nil
}

// settleLocked fills o at the current price and moves the locked funds.
func (v *Venue) settleLocked(o *venue.Order) {
	price := v.prices[o.Instrument]
	baseCur, quoteCur := venue.Base(o.Instrument), venue.Quote(o.Instrument)

	switch o.Side {
	case venue.SideBuy:
		v.locked[quoteCur] -= o.Requested
		o.FilledQty = o.Requested * (1 - v.fee) / price
		v.balances[baseCur] += o.FilledQty
	case venue.SideSell:
		v.locked[baseCur] -= o.Requested
		o.FilledQty = o.Requested
		v.balances[quoteCur] += o.Requested * price * (1 - v.fee)
	}
	o.FilledPrice = price
	o.Status = venue.StatusFilled
	o.UpdatedAt = v.now()
}

// releaseLocked returns an unfilled order's locked funds.
func (v *Venue) releaseLocked(o venue.Order) {
	switch o.Side {
	case venue.SideBuy:
		cur := venue.Quote(o.Instrument)
		v.locked[cur] -= o.Requested
		v.balances[cur] += o.Requested
	case venue.SideSell:
		cur := venue.Base(o.Instrument)
		v.locked[cur] -= o.Requested
		v.balances[cur] += o.Requested
	}
}

func (v *Venue) takeFailure() error {
	if v.failNext != nil {
		err := v.failNext
		v.failNext = nil
		return err
	}
	return nil
}
