package bus

import "time"

// EventType tags the kind of event flowing over the bus.
type EventType string

const (
	// Signal events: an entry/exit/risk decision fired.
	SignalEntry        EventType = "SIGNAL_ENTRY"
	SignalExit         EventType = "SIGNAL_EXIT"
	SignalRiskTrigger  EventType = "SIGNAL_RISK_TRIGGER"

	// Order lifecycle events.
	OrderPlaced    EventType = "ORDER_PLACED"
	OrderFilled    EventType = "ORDER_FILLED"
	OrderCancelled EventType = "ORDER_CANCELLED"
	OrderFailed    EventType = "ORDER_FAILED"

	// Position lifecycle events.
	PositionOpened EventType = "POSITION_OPENED"
	PositionClosed EventType = "POSITION_CLOSED"

	// System and error events.
	SystemStarted EventType = "SYSTEM_STARTED"
	SystemStopped EventType = "SYSTEM_STOPPED"
	ErrorOccurred EventType = "ERROR"
)

// Event is an immutable value dispatched over the bus. Exactly one of the
// payload pointers is set, matching Type. The bus does not retain events
// after dispatch.
type Event struct {
	Type   EventType
	Time   time.Time
	Source string

	Signal   *SignalPayload
	Order    *OrderPayload
	Position *PositionPayload
	System   *SystemPayload
	Error    *ErrorPayload
}

// SignalPayload describes an entry/exit/risk-trigger decision.
type SignalPayload struct {
	Instrument  string
	Action      string // "buy", "sell"
	Price       float64
	TargetPrice float64
	Reason      string
}

// OrderPayload describes one order lifecycle transition.
type OrderPayload struct {
	OrderID     string
	Instrument  string
	Side        string
	Status      string
	Requested   float64
	FilledQty   float64
	FilledPrice float64
}

// PositionPayload describes a position open or close with the price/PnL
// snapshot taken at that moment.
type PositionPayload struct {
	Instrument   string
	EntryPrice   float64
	CurrentPrice float64
	Quantity     float64
	PnL          float64
	PnLPercent   float64
}

// SystemPayload carries free-form lifecycle detail.
type SystemPayload struct {
	Message string
}

// ErrorPayload carries a component error surfaced for observers.
type ErrorPayload struct {
	Component string
	Message   string
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(t EventType, source string) Event {
	return Event{Type: t, Time: time.Now().UTC(), Source: source}
}
