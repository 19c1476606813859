package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(closes ...float64) Series {
	out := make(Series, len(closes))
	for i, c := range closes {
		out[i] = Bar{Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return out
}

func TestSeriesLast(t *testing.T) {
	t.Parallel()

	_, ok := Series(nil).Last()
	assert.False(t, ok)

	last, ok := series(1, 2, 3).Last()
	require.True(t, ok)
	assert.InDelta(t, 3.0, last.Close, 1e-9)
}

func TestSeriesConfirmed(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Series(nil).Confirmed())
	assert.Nil(t, series(1).Confirmed(), "a single bar may still be in progress")

	c := series(1, 2, 3).Confirmed()
	require.Len(t, c, 2)
	assert.InDelta(t, 2.0, c[1].Close, 1e-9)
}

func TestSeriesColumns(t *testing.T) {
	t.Parallel()

	s := series(10, 20)
	assert.Equal(t, []float64{10, 20}, s.Closes())
	assert.Equal(t, []float64{11, 21}, s.Highs())
	assert.Equal(t, []float64{9, 19}, s.Lows())
	assert.Equal(t, []float64{10, 10}, s.Volumes())
}

func TestBarRange(t *testing.T) {
	t.Parallel()

	b := Bar{High: 105, Low: 95}
	assert.InDelta(t, 10.0, b.Range(), 1e-9)
}
