// Package journal persists the trading record: one row per completed order
// and one row per bus event worth keeping. Journaling is best-effort: a
// journal error is logged by the caller, never allowed to block trading.
package journal

import "time"

// TradeRecord is one settled order.
type TradeRecord struct {
	OrderID     string
	Instrument  string
	Side        string
	Requested   float64
	FilledQty   float64
	FilledPrice float64
	Status      string
	Time        time.Time
}

// EventRecord is one bus event flattened for storage.
type EventRecord struct {
	Type       string
	Source     string
	Instrument string
	Detail     string
	Time       time.Time
}

// Journal is the persistence interface. SQLite and CSV implementations are
// provided; both are safe for use from a single recorder goroutine.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEvent(EventRecord) error
	Close() error
}
