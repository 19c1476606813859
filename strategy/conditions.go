package strategy

import (
	"fmt"
	"math"

	"github.com/rustyeddy/tradebot/indicators"
	"github.com/rustyeddy/tradebot/market"
)

// IndicatorTarget is the Indicators key conditions read the precomputed
// entry target price from.
const IndicatorTarget = "target"

// TargetBreakout fires when the bar's close crosses the precomputed entry
// target price. The target is supplied through the indicator snapshot, not
// recomputed here, so the evaluator controls the look-ahead boundary.
type TargetBreakout struct{}

// NewTargetBreakout builds the volatility-breakout entry condition.
func NewTargetBreakout() Condition { return TargetBreakout{} }

// NewTargetCross is a deprecated alias for NewTargetBreakout kept for old
// strategy configs; it produces the identical condition.
//
// Deprecated: use NewTargetBreakout.
func NewTargetCross() Condition { return NewTargetBreakout() }

func (TargetBreakout) Name() string { return "target_breakout" }

func (TargetBreakout) Evaluate(bar market.Bar, _ market.Series, ind Indicators) bool {
	target, ok := ind[IndicatorTarget]
	if !ok || target <= 0 {
		return false
	}
	return bar.Close >= target
}

func (c TargetBreakout) EvaluateBatch(history market.Series, ind BatchIndicators) []bool {
	return batchBySingle(c, history, ind)
}

// MAAbove fires while the close sits above its own simple moving average.
type MAAbove struct {
	Period int
}

func NewMAAbove(period int) Condition { return MAAbove{Period: period} }

func (c MAAbove) Name() string { return fmt.Sprintf("ma_above_%d", c.Period) }

func (c MAAbove) Evaluate(bar market.Bar, history market.Series, _ Indicators) bool {
	ma, err := indicators.MA(history, c.Period)
	if err != nil {
		return false
	}
	return bar.Close > ma
}

func (c MAAbove) EvaluateBatch(history market.Series, _ BatchIndicators) []bool {
	out := make([]bool, len(history))
	mas := indicators.MASeries(history, c.Period)
	for i, b := range history {
		out[i] = !math.IsNaN(mas[i]) && b.Close > mas[i]
	}
	return out
}

// MABelow fires while the close sits below its simple moving average; the
// usual trend-gone exit companion to MAAbove.
type MABelow struct {
	Period int
}

func NewMABelow(period int) Condition { return MABelow{Period: period} }

func (c MABelow) Name() string { return fmt.Sprintf("ma_below_%d", c.Period) }

func (c MABelow) Evaluate(bar market.Bar, history market.Series, _ Indicators) bool {
	ma, err := indicators.MA(history, c.Period)
	if err != nil {
		return false
	}
	return bar.Close < ma
}

func (c MABelow) EvaluateBatch(history market.Series, _ BatchIndicators) []bool {
	out := make([]bool, len(history))
	mas := indicators.MASeries(history, c.Period)
	for i, b := range history {
		out[i] = !math.IsNaN(mas[i]) && b.Close < mas[i]
	}
	return out
}

// RSIBelow gates entries to bars whose RSI is under a threshold.
type RSIBelow struct {
	Period    int
	Threshold float64
}

func NewRSIBelow(period int, threshold float64) Condition {
	return RSIBelow{Period: period, Threshold: threshold}
}

func (c RSIBelow) Name() string { return fmt.Sprintf("rsi_below_%d_%g", c.Period, c.Threshold) }

func (c RSIBelow) Evaluate(_ market.Bar, history market.Series, _ Indicators) bool {
	rsi, err := indicators.RSI(history, c.Period)
	if err != nil {
		return false
	}
	return rsi < c.Threshold
}

func (c RSIBelow) EvaluateBatch(history market.Series, _ BatchIndicators) []bool {
	out := make([]bool, len(history))
	col := indicators.RSISeries(history, c.Period)
	for i := range history {
		out[i] = !math.IsNaN(col[i]) && col[i] < c.Threshold
	}
	return out
}

// RSIAbove fires when RSI crosses over a threshold; the overbought exit.
type RSIAbove struct {
	Period    int
	Threshold float64
}

func NewRSIAbove(period int, threshold float64) Condition {
	return RSIAbove{Period: period, Threshold: threshold}
}

func (c RSIAbove) Name() string { return fmt.Sprintf("rsi_above_%d_%g", c.Period, c.Threshold) }

func (c RSIAbove) Evaluate(_ market.Bar, history market.Series, _ Indicators) bool {
	rsi, err := indicators.RSI(history, c.Period)
	if err != nil {
		return false
	}
	return rsi > c.Threshold
}

func (c RSIAbove) EvaluateBatch(history market.Series, _ BatchIndicators) []bool {
	out := make([]bool, len(history))
	col := indicators.RSISeries(history, c.Period)
	for i := range history {
		out[i] = !math.IsNaN(col[i]) && col[i] > c.Threshold
	}
	return out
}

// VolumeSurge fires when the bar's volume exceeds a multiple of the average
// volume over the preceding window.
type VolumeSurge struct {
	Period int
	Mult   float64
}

func NewVolumeSurge(period int, mult float64) Condition {
	return VolumeSurge{Period: period, Mult: mult}
}

func (c VolumeSurge) Name() string { return fmt.Sprintf("volume_surge_%d_%g", c.Period, c.Mult) }

func (c VolumeSurge) Evaluate(bar market.Bar, history market.Series, _ Indicators) bool {
	// The window excludes the current bar so a surge compares against the
	// preceding baseline.
	if len(history) < c.Period+1 {
		return false
	}
	window := history[len(history)-c.Period-1 : len(history)-1]
	sum := 0.0
	for _, b := range window {
		sum += b.Volume
	}
	avg := sum / float64(c.Period)
	return avg > 0 && bar.Volume > avg*c.Mult
}

func (c VolumeSurge) EvaluateBatch(history market.Series, ind BatchIndicators) []bool {
	return batchBySingle(c, history, ind)
}

// GapDown fires when the bar opens at least Pct below the previous close,
// the overnight-crash exit.
type GapDown struct {
	Pct float64
}

func NewGapDown(pct float64) Condition { return GapDown{Pct: pct} }

func (c GapDown) Name() string { return fmt.Sprintf("gap_down_%g", c.Pct) }

func (c GapDown) Evaluate(bar market.Bar, history market.Series, _ Indicators) bool {
	if len(history) < 2 {
		return false
	}
	prev := history[len(history)-2]
	if prev.Close <= 0 {
		return false
	}
	return bar.Open <= prev.Close*(1-c.Pct)
}

func (c GapDown) EvaluateBatch(history market.Series, ind BatchIndicators) []bool {
	return batchBySingle(c, history, ind)
}

// Known condition names accepted by FromName. Parameterized conditions take
// their parameters from Params.
const (
	NameTargetBreakout = "target_breakout"
	NameMAAbove        = "ma_above"
	NameMABelow        = "ma_below"
	NameRSIBelow       = "rsi_below"
	NameRSIAbove       = "rsi_above"
	NameVolumeSurge    = "volume_surge"
	NameGapDown        = "gap_down"
)

// FromName constructs a built-in condition from its config name. Unknown
// names are an error, never a silent no-op.
func FromName(name string, p Params) (Condition, error) {
	switch name {
	case NameTargetBreakout:
		return NewTargetBreakout(), nil
	case NameMAAbove:
		return NewMAAbove(p.LongPeriod), nil
	case NameMABelow:
		return NewMABelow(p.LongPeriod), nil
	case NameRSIBelow:
		return NewRSIBelow(p.RSIPeriod, p.RSIEntryMax), nil
	case NameRSIAbove:
		return NewRSIAbove(p.RSIPeriod, p.RSIExitMin), nil
	case NameVolumeSurge:
		return NewVolumeSurge(p.ShortPeriod, p.VolumeMult), nil
	case NameGapDown:
		return NewGapDown(p.GapDownPct), nil
	default:
		return nil, fmt.Errorf("strategy: unknown condition %q", name)
	}
}
