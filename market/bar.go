package market

import (
	"errors"
	"time"
)

// ErrNotEnoughData is returned when a computation needs more bar history
// than the provider could supply.
var ErrNotEnoughData = errors.New("market: not enough data")

// Bar represents one OHLCV sample for one instrument over one interval.
// Bars are value objects; once produced by a data provider they are never
// mutated.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is an ordered run of bars, oldest first. The final bar may be the
// in-progress (unconfirmed) bar depending on the provider; callers that must
// avoid look-ahead should use Confirmed.
type Series []Bar

// Last returns the most recent bar. ok is false for an empty series.
func (s Series) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// Confirmed drops the trailing in-progress bar and returns the remainder.
// A series of fewer than two bars has no confirmed bar.
func (s Series) Confirmed() Series {
	if len(s) < 2 {
		return nil
	}
	return s[:len(s)-1]
}

// Closes returns the close price of every bar, oldest first.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Highs returns the high price of every bar, oldest first.
func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.High
	}
	return out
}

// Lows returns the low price of every bar, oldest first.
func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Low
	}
	return out
}

// Volumes returns the volume of every bar, oldest first.
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Volume
	}
	return out
}

// Range returns High-Low for the bar.
func (b Bar) Range() float64 {
	return b.High - b.Low
}
