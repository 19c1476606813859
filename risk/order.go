// Package risk owns the conditional exit orders (stop-loss, take-profit,
// trailing-stop) armed against each open position, and evaluates them
// against each new bar's low/high.
package risk

import (
	"fmt"
	"time"
)

// Kind identifies the conditional order type.
type Kind string

const (
	StopLoss     Kind = "stop_loss"
	TakeProfit   Kind = "take_profit"
	TrailingStop Kind = "trailing_stop"
)

// Order is one conditional exit order. Its state machine is
// Active -> Triggered or Active -> Cancelled; both are terminal.
type Order struct {
	ID         string
	Instrument string
	Kind       Kind
	EntryPrice float64
	EntryDate  time.Time
	Qty        float64

	// Thresholds. StopPrice applies to stop-loss and trailing orders,
	// TargetPrice to take-profit. An order may carry both; stop-loss wins
	// a tie within one check.
	StopPrice   float64
	TargetPrice float64

	// Trailing state: the stop follows HighestPrice down by TrailPct and
	// only ever moves up.
	TrailPct     float64
	HighestPrice float64

	Active    bool
	Triggered bool

	TriggeredAt  time.Time
	TriggerPrice float64
	TriggerKind  Kind // which threshold fired, for orders carrying both
}

// Config declares which conditional orders Arm creates. Percentages are
// fractions (0.05 = 5%); absolute prices take precedence over percentages
// for the same kind.
type Config struct {
	StopLossPct     float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	StopLossPrice   float64 `json:"stop_loss_price" yaml:"stop_loss_price"`
	TakeProfitPct   float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	TakeProfitPrice float64 `json:"take_profit_price" yaml:"take_profit_price"`
	TrailingStopPct float64 `json:"trailing_stop_pct" yaml:"trailing_stop_pct"`
}

// Enabled reports whether the config produces at least one order.
func (c Config) Enabled() bool {
	return c.StopLossPct > 0 || c.StopLossPrice > 0 ||
		c.TakeProfitPct > 0 || c.TakeProfitPrice > 0 ||
		c.TrailingStopPct > 0
}

// Validate rejects nonsense percentages.
func (c Config) Validate() error {
	for _, p := range []struct {
		name string
		v    float64
	}{
		{"stop_loss_pct", c.StopLossPct},
		{"take_profit_pct", c.TakeProfitPct},
		{"trailing_stop_pct", c.TrailingStopPct},
	} {
		if p.v < 0 || p.v >= 1 {
			return fmt.Errorf("risk: %s must be in [0, 1), got %g", p.name, p.v)
		}
	}
	return nil
}
