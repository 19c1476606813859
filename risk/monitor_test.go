package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebot/bus"
)

var day = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestArmResolvesThresholds(t *testing.T) {
	t.Parallel()

	m := NewMonitor(nil, nil)
	orders := m.Arm("BTC_USD", 100, day, 1.0, Config{
		StopLossPct:     0.05,
		TakeProfitPct:   0.15,
		TrailingStopPct: 0.05,
	})
	require.Len(t, orders, 3)

	byKind := map[Kind]Order{}
	for _, o := range orders {
		byKind[o.Kind] = o
	}

	assert.InDelta(t, 95.0, byKind[StopLoss].StopPrice, 1e-9)
	assert.InDelta(t, 115.0, byKind[TakeProfit].TargetPrice, 1e-9)

	trail := byKind[TrailingStop]
	assert.InDelta(t, 100.0, trail.HighestPrice, 1e-9)
	assert.InDelta(t, 95.0, trail.StopPrice, 1e-9)
}

func TestArmAbsolutePricesWin(t *testing.T) {
	t.Parallel()

	m := NewMonitor(nil, nil)
	orders := m.Arm("BTC_USD", 100, day, 1.0, Config{
		StopLossPct:     0.05,
		StopLossPrice:   90,
		TakeProfitPct:   0.15,
		TakeProfitPrice: 130,
	})
	require.Len(t, orders, 2)
	assert.InDelta(t, 90.0, orders[0].StopPrice, 1e-9)
	assert.InDelta(t, 130.0, orders[1].TargetPrice, 1e-9)
}

func TestStopLossTriggersAtResolvedPrice(t *testing.T) {
	t.Parallel()

	b := bus.New(nil)
	var got []bus.Event
	b.Subscribe(bus.SignalRiskTrigger, func(ev bus.Event) { got = append(got, ev) })

	m := NewMonitor(b, nil)
	m.Arm("BTC_USD", 100, day, 1.0, Config{StopLossPct: 0.05, TakeProfitPct: 0.15})

	// Bar stays inside both thresholds: nothing fires.
	assert.Empty(t, m.Check("BTC_USD", 100, 96, 101, day))

	// Low of 94 pierces the 95 stop.
	triggered := m.Check("BTC_USD", 96, 94, 101, day.Add(24*time.Hour))
	require.Len(t, triggered, 1)
	assert.Equal(t, StopLoss, triggered[0].Kind)
	assert.Equal(t, StopLoss, triggered[0].TriggerKind)
	assert.InDelta(t, 95.0, triggered[0].TriggerPrice, 1e-9, "exit price is the threshold, not the bar low")
	assert.True(t, triggered[0].Triggered)
	assert.False(t, triggered[0].Active)

	require.Len(t, got, 1)
	require.NotNil(t, got[0].Signal)
	assert.Equal(t, "sell", got[0].Signal.Action)
	assert.Equal(t, string(StopLoss), got[0].Signal.Reason)

	// Terminal orders never fire again.
	assert.Empty(t, m.Check("BTC_USD", 90, 80, 91, day.Add(48*time.Hour)))

	// The untouched take-profit is still armed.
	active := m.ActiveOrders("BTC_USD")
	require.Len(t, active, 1)
	assert.Equal(t, TakeProfit, active[0].Kind)
}

func TestTakeProfitTriggersOnHigh(t *testing.T) {
	t.Parallel()

	m := NewMonitor(nil, nil)
	m.Arm("BTC_USD", 100, day, 1.0, Config{TakeProfitPct: 0.15})

	triggered := m.Check("BTC_USD", 112, 108, 116, day)
	require.Len(t, triggered, 1)
	assert.Equal(t, TakeProfit, triggered[0].TriggerKind)
	assert.InDelta(t, 115.0, triggered[0].TriggerPrice, 1e-9)
}

func TestStopWinsOverTakeProfit(t *testing.T) {
	t.Parallel()

	m := NewMonitor(nil, nil)
	m.Arm("BTC_USD", 100, day, 1.0, Config{StopLossPct: 0.05, TakeProfitPct: 0.05})

	// One wild bar crosses both thresholds. Each order fires through its
	// own rule, stop first in insertion order.
	triggered := m.Check("BTC_USD", 100, 90, 110, day)
	require.Len(t, triggered, 2)
	assert.Equal(t, StopLoss, triggered[0].TriggerKind)
	assert.Equal(t, TakeProfit, triggered[1].TriggerKind)

	// An order carrying both thresholds resolves the tie in favor of the
	// stop: only the stop rule fires, at the stop price.
	m2 := NewMonitor(nil, nil)
	m2.orders["ETH_USD"] = []*Order{{
		ID: "both", Instrument: "ETH_USD", Kind: StopLoss,
		EntryPrice: 100, StopPrice: 95, TargetPrice: 115, Active: true,
	}}
	hit := m2.Check("ETH_USD", 100, 90, 120, day)
	require.Len(t, hit, 1)
	assert.Equal(t, StopLoss, hit[0].TriggerKind)
	assert.InDelta(t, 95.0, hit[0].TriggerPrice, 1e-9)
}

func TestTrailingStopRatchet(t *testing.T) {
	t.Parallel()

	m := NewMonitor(nil, nil)
	m.Arm("BTC_USD", 100, day, 1.0, Config{TrailingStopPct: 0.05})

	// Bar 1: high 110 lifts the threshold to 104.50; low 105 stays above it.
	assert.Empty(t, m.Check("BTC_USD", 108, 105, 110, day))
	active := m.ActiveOrders("BTC_USD")
	require.Len(t, active, 1)
	assert.InDelta(t, 110.0, active[0].HighestPrice, 1e-9)
	assert.InDelta(t, 104.5, active[0].StopPrice, 1e-9)

	// A lower high never lowers the threshold.
	assert.Empty(t, m.Check("BTC_USD", 106, 105, 107, day.Add(24*time.Hour)))
	active = m.ActiveOrders("BTC_USD")
	require.Len(t, active, 1)
	assert.InDelta(t, 104.5, active[0].StopPrice, 1e-9)

	// Bar 3: low 103 pierces 104.50.
	triggered := m.Check("BTC_USD", 104, 103, 106, day.Add(48*time.Hour))
	require.Len(t, triggered, 1)
	assert.Equal(t, TrailingStop, triggered[0].TriggerKind)
	assert.InDelta(t, 104.5, triggered[0].TriggerPrice, 1e-9)
}

func TestCancelAll(t *testing.T) {
	t.Parallel()

	m := NewMonitor(nil, nil)
	m.Arm("BTC_USD", 100, day, 1.0, Config{StopLossPct: 0.05, TakeProfitPct: 0.15})
	m.Arm("ETH_USD", 50, day, 2.0, Config{StopLossPct: 0.05})

	assert.Equal(t, 2, m.CancelAll("BTC_USD"))
	assert.Empty(t, m.ActiveOrders("BTC_USD"))
	require.Len(t, m.ActiveOrders("ETH_USD"), 1)

	// Cancelled orders do not fire.
	assert.Empty(t, m.Check("BTC_USD", 50, 40, 60, day))

	assert.Equal(t, 1, m.CancelAll(""))
	assert.Empty(t, m.ActiveOrders("ETH_USD"))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero_value", Config{}, false},
		{"typical", Config{StopLossPct: 0.05, TakeProfitPct: 0.15, TrailingStopPct: 0.03}, false},
		{"stop_pct_too_high", Config{StopLossPct: 1.0}, true},
		{"negative_pct", Config{TakeProfitPct: -0.1}, true},
		{"trailing_out_of_range", Config{TrailingStopPct: 1.5}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
