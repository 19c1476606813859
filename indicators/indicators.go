// Package indicators provides the technical computations the rule engine
// and signal evaluator consume. All functions work on closed bars only.
package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/tradebot/market"
)

// MA calculates the Simple Moving Average of the close over the last
// `period` bars.
func MA(bars market.Series, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(bars) < period {
		return 0, fmt.Errorf("%w: need %d bars, got %d", market.ErrNotEnoughData, period, len(bars))
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period), nil
}

// EMA calculates the Exponential Moving Average of the close, seeded with
// the SMA of the first `period` bars.
func EMA(bars market.Series, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(bars) < period {
		return 0, fmt.Errorf("%w: need %d bars, got %d", market.ErrNotEnoughData, period, len(bars))
	}

	multiplier := 2.0 / float64(period+1)

	sma := 0.0
	for i := 0; i < period; i++ {
		sma += bars[i].Close
	}
	ema := sma / float64(period)

	for i := period; i < len(bars); i++ {
		ema = (bars[i].Close-ema)*multiplier + ema
	}
	return ema, nil
}

// ATR calculates the Average True Range with Wilder's smoothing.
func ATR(bars market.Series, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(bars) < period+1 {
		return 0, fmt.Errorf("%w: need %d bars, got %d", market.ErrNotEnoughData, period+1, len(bars))
	}

	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += trueRange(bars[i], bars[i-1])
	}
	atr /= float64(period)

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + trueRange(bars[i], bars[i-1])) / float64(period)
	}
	return atr, nil
}

// RSI calculates the Relative Strength Index with Wilder's smoothing.
func RSI(bars market.Series, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(bars) < period+1 {
		return 0, fmt.Errorf("%w: need %d bars, got %d", market.ErrNotEnoughData, period+1, len(bars))
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := bars[i].Close - bars[i-1].Close
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(bars); i++ {
		d := bars[i].Close - bars[i-1].Close
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	return rsiFrom(avgGain, avgLoss), nil
}

// BreakoutTarget returns the volatility-breakout entry target for the bar
// following `prev`: next open plus k times the previous bar's range.
func BreakoutTarget(prev market.Bar, nextOpen, k float64) float64 {
	return nextOpen + prev.Range()*k
}

// MASeries returns the simple moving average at every row of the series.
// Rows before warmup hold NaN so batch evaluation can align with raw bars.
func MASeries(bars market.Series, period int) []float64 {
	out := make([]float64, len(bars))
	sum := 0.0
	for i, b := range bars {
		sum += b.Close
		if i >= period {
			sum -= bars[i-period].Close
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// RSISeries returns the Wilder RSI at every row; warmup rows hold NaN.
func RSISeries(bars market.Series, period int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(bars) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := bars[i].Close - bars[i-1].Close
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFrom(avgGain, avgLoss)

	for i := period + 1; i < len(bars); i++ {
		d := bars[i].Close - bars[i-1].Close
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiFrom(avgGain, avgLoss)
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func trueRange(cur, prev market.Bar) float64 {
	a := cur.High - cur.Low
	b := math.Abs(cur.High - prev.Close)
	c := math.Abs(cur.Low - prev.Close)
	return math.Max(a, math.Max(b, c))
}
