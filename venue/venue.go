package venue

import (
	"context"
	"strings"
	"time"
)

// Instruments are named BASE_QUOTE ("BTC_USD"). Base and Quote split the
// two sides; Quote is empty for malformed names.

// Base returns the base currency of an instrument name.
func Base(instrument string) string {
	if i := strings.IndexByte(instrument, '_'); i >= 0 {
		return instrument[:i]
	}
	return instrument
}

// Quote returns the quote currency of an instrument name.
func Quote(instrument string) string {
	if i := strings.IndexByte(instrument, '_'); i >= 0 {
		return instrument[i+1:]
	}
	return ""
}

// Balance is the venue's view of funds in one currency.
type Balance struct {
	Currency  string
	Available float64
	Locked    float64
}

// OrderStatus is the venue-side lifecycle state of an order.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusFilled          OrderStatus = "filled"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusFailed          OrderStatus = "failed"
)

// Terminal reports whether no further status transitions are possible.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Side distinguishes buy from sell orders.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Kind distinguishes market from limit orders.
type Kind string

const (
	KindMarket Kind = "market"
	KindLimit  Kind = "limit"
)

// Order is the normalized view of a venue order. The Order Dispatcher builds
// these from whatever the venue client returns.
type Order struct {
	ID          string
	Instrument  string
	Side        Side
	Kind        Kind
	Requested   float64 // quote amount for buys, base amount for sells
	FilledQty   float64
	FilledPrice float64
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// The venue client is consumed through narrow per-role interfaces so
// strategies and tests only depend on the capability they use.

// BalanceReader looks up funds for one currency.
type BalanceReader interface {
	GetBalance(ctx context.Context, currency string) (Balance, error)
}

// OrderPlacer submits market orders. Buy amounts are denominated in the
// quote currency, sell amounts in the base currency.
type OrderPlacer interface {
	BuyMarket(ctx context.Context, instrument string, quoteAmount float64) (Order, error)
	SellMarket(ctx context.Context, instrument string, baseAmount float64) (Order, error)
}

// OrderReader fetches the current state of a previously placed order.
type OrderReader interface {
	GetOrderStatus(ctx context.Context, id string) (Order, error)
}

// OrderCanceler cancels a pending order.
type OrderCanceler interface {
	CancelOrder(ctx context.Context, id string) (bool, error)
}

// Client is the full venue surface, for wiring code that holds one handle.
type Client interface {
	BalanceReader
	OrderPlacer
	OrderReader
	OrderCanceler
}
