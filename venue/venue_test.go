package venue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseQuote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		instrument string
		base       string
		quote      string
	}{
		{"BTC_USD", "BTC", "USD"},
		{"ETH_KRW", "ETH", "KRW"},
		{"MALFORMED", "MALFORMED", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.instrument, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.base, Base(tt.instrument))
			assert.Equal(t, tt.quote, Quote(tt.instrument))
		})
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusPartiallyFilled.Terminal())
	assert.True(t, StatusFilled.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestOrderErrorClassification(t *testing.T) {
	t.Parallel()

	err := RejectInsufficient("BTC_USD", SideBuy, "available balance below order amount")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.ErrorIs(t, err, ErrOrderRejected, "insufficient balance is a rejection subtype")
	assert.Contains(t, err.Error(), "BTC_USD")

	err = RejectOrder("BTC_USD", SideSell, "no market price")
	assert.ErrorIs(t, err, ErrOrderRejected)
	assert.NotErrorIs(t, err, ErrInsufficientBalance)

	var oe *OrderError
	assert.True(t, errors.As(err, &oe))
	assert.Equal(t, "no market price", oe.Reason)
}
