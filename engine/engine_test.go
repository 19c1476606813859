package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebot/bus"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/orders"
	"github.com/rustyeddy/tradebot/position"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/signal"
	"github.com/rustyeddy/tradebot/strategy"
	"github.com/rustyeddy/tradebot/venue"
	"github.com/rustyeddy/tradebot/venue/sim"
)

type tradeSignal struct {
	action     string
	instrument string
	price      float64
	fields     map[string]string
}

type recordingNotifier struct {
	mu      sync.Mutex
	signals []tradeSignal
}

func (n *recordingNotifier) Send(string) {}

func (n *recordingNotifier) SendTradeSignal(action, instrument string, price float64, fields map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = append(n.signals, tradeSignal{action, instrument, price, fields})
}

func (n *recordingNotifier) all() []tradeSignal {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]tradeSignal(nil), n.signals...)
}

type fixture struct {
	engine  *Engine
	venue   *sim.Venue
	bus     *bus.Bus
	ledger  *position.Ledger
	monitor *risk.Monitor
	notes   *recordingNotifier
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	v := sim.New(cfg.FeeRate)
	b := bus.New(nil)

	strat, err := strategy.New("vb", strategy.DefaultParams(),
		[]strategy.Condition{strategy.NewTargetBreakout()}, nil)
	require.NoError(t, err)

	eval := signal.NewEvaluator(v, strat, b, "1d", 30, 5, nil)
	ledger := position.NewLedger(v, b, nil)
	disp := orders.New(v, v, b, nil, nil)
	mon := risk.NewMonitor(b, nil)
	notes := &recordingNotifier{}

	e, err := New(cfg, Deps{
		Balances:   v,
		Prices:     v,
		Signals:    eval,
		Ledger:     ledger,
		Dispatcher: disp,
		Monitor:    mon,
		Events:     b,
		Notifier:   notes,
	})
	require.NoError(t, err)

	return &fixture{engine: e, venue: v, bus: b, ledger: ledger, monitor: mon, notes: notes}
}

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// seedHistory pushes n confirmed bars closing at px with a 2-point range, so
// the derived breakout target is px+1.
func seedHistory(v *sim.Venue, instrument string, n int, px float64) {
	for i := 0; i < n; i++ {
		v.PushBar(instrument, market.Bar{
			Time: t0.Add(time.Duration(i) * 24 * time.Hour),
			Open: px, High: px + 1, Low: px - 1, Close: px,
			Volume: 100,
		})
	}
}

func barAt(i int, open, high, low, cls float64) market.Bar {
	return market.Bar{
		Time: t0.Add(time.Duration(i) * 24 * time.Hour),
		Open: open, High: high, Low: low, Close: cls,
		Volume: 100,
	}
}

func defaultConfig() Config {
	return Config{
		Instruments:    []string{"BTC_USD"},
		QuoteCurrency:  "USD",
		MaxSlots:       4,
		FeeRate:        0.0005,
		MinOrderAmount: 10,
		Risk:           risk.Config{StopLossPct: 0.05, TakeProfitPct: 0.15},
	}
}

// enter drives the fixture through a breakout entry at price 100 against a
// 97-flat history (target 98).
func enter(t *testing.T, f *fixture) {
	t.Helper()
	seedHistory(f.venue, "BTC_USD", 10, 97)
	bar := barAt(10, 99, 100.5, 99, 100)
	f.venue.PushBar("BTC_USD", bar)
	f.engine.OnBar(context.Background(), "BTC_USD", bar)
	require.True(t, f.ledger.Has("BTC_USD"), "entry did not open a position")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxSlots: 0}, Deps{})
	assert.Error(t, err)

	_, err = New(Config{MaxSlots: 1}, Deps{})
	assert.Error(t, err, "missing collaborators must be rejected")
}

func TestEntrySizesAndArms(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	f.venue.Deposit("USD", 400000)
	enter(t, f)

	// 400,000 over 4 slots less the fee buffer.
	wantAmount := 400000.0 / 4 * (1 - 0.0005)

	pos := f.ledger.Get("BTC_USD")
	require.NotNil(t, pos)
	assert.InDelta(t, 100.0, pos.EntryPrice, 1e-9)
	assert.InDelta(t, wantAmount*(1-0.0005)/100, pos.Quantity, 1e-6)

	usd, err := f.venue.GetBalance(context.Background(), "USD")
	require.NoError(t, err)
	assert.InDelta(t, 400000-wantAmount, usd.Available, 1e-6)

	// Risk orders resolved off the fill price.
	active := f.monitor.ActiveOrders("BTC_USD")
	require.Len(t, active, 2)
	assert.Equal(t, risk.StopLoss, active[0].Kind)
	assert.InDelta(t, 95.0, active[0].StopPrice, 1e-9)
	assert.Equal(t, risk.TakeProfit, active[1].Kind)
	assert.InDelta(t, 115.0, active[1].TargetPrice, 1e-9)

	sigs := f.notes.all()
	require.Len(t, sigs, 1)
	assert.Equal(t, "BUY", sigs[0].action)
}

func TestEntrySkippedWhenSizedBelowMinimum(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	f.venue.Deposit("USD", 30) // 30/4 sizes under the 10 minimum
	seedHistory(f.venue, "BTC_USD", 10, 97)
	bar := barAt(10, 99, 100.5, 99, 100)
	f.venue.PushBar("BTC_USD", bar)

	f.engine.OnBar(context.Background(), "BTC_USD", bar)

	assert.False(t, f.ledger.Has("BTC_USD"))
	assert.Zero(t, f.venue.CallCounts().Buy, "undersized entries never reach the venue")
}

func TestEntrySkippedWithoutSignal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	f.venue.Deposit("USD", 400000)
	seedHistory(f.venue, "BTC_USD", 10, 97)

	// Close of 97.5 stays under the 98 target.
	bar := barAt(10, 97, 97.8, 96.5, 97.5)
	f.venue.PushBar("BTC_USD", bar)
	f.engine.OnBar(context.Background(), "BTC_USD", bar)

	assert.False(t, f.ledger.Has("BTC_USD"))
	assert.Zero(t, f.venue.CallCounts().Buy)
}

func TestStopLossClosesPosition(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	f.venue.Deposit("USD", 400000)
	enter(t, f)

	// The next bar's low pierces the 95 stop.
	bar := barAt(11, 99, 101, 94, 96)
	f.venue.PushBar("BTC_USD", bar)
	f.engine.OnBar(context.Background(), "BTC_USD", bar)

	assert.False(t, f.ledger.Has("BTC_USD"))
	assert.Empty(t, f.monitor.ActiveOrders("BTC_USD"), "remaining risk orders are cancelled on close")

	btc, err := f.venue.GetBalance(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Zero(t, btc.Available, "the full holding was sold")

	sigs := f.notes.all()
	require.Len(t, sigs, 2)
	assert.Equal(t, "SELL", sigs[1].action)
	assert.Equal(t, string(risk.StopLoss), sigs[1].fields["reason"])
}

func TestTrailingStopRatchetAndTrigger(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Risk = risk.Config{TrailingStopPct: 0.05}
	f := newFixture(t, cfg)
	f.venue.Deposit("USD", 400000)
	enter(t, f)

	// Bar 1: high 110 lifts the trailing threshold to 104.50; the position
	// survives the bar.
	bar := barAt(11, 106, 110, 105, 108)
	f.venue.PushBar("BTC_USD", bar)
	f.engine.OnBar(context.Background(), "BTC_USD", bar)
	require.True(t, f.ledger.Has("BTC_USD"))

	active := f.monitor.ActiveOrders("BTC_USD")
	require.Len(t, active, 1)
	assert.InDelta(t, 104.5, active[0].StopPrice, 1e-9)

	// Bar 2: low 103 pierces the ratcheted threshold.
	bar = barAt(12, 105, 106, 103, 104)
	f.venue.PushBar("BTC_USD", bar)
	f.engine.OnBar(context.Background(), "BTC_USD", bar)

	assert.False(t, f.ledger.Has("BTC_USD"))
	sigs := f.notes.all()
	require.Len(t, sigs, 2)
	assert.Equal(t, string(risk.TrailingStop), sigs[1].fields["reason"])
}

func TestFailedSellKeepsPosition(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	f.venue.Deposit("USD", 400000)
	enter(t, f)

	f.venue.FailNext(venue.ErrConnection)
	bar := barAt(11, 99, 101, 94, 96)
	f.venue.PushBar("BTC_USD", bar)
	f.engine.OnBar(context.Background(), "BTC_USD", bar)

	assert.True(t, f.ledger.Has("BTC_USD"), "a failed sell must not drop the position record")
	for _, s := range f.notes.all() {
		assert.NotEqual(t, "SELL", s.action)
	}
}

func TestNoFreeSlots(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.MaxSlots = 1
	cfg.Instruments = []string{"BTC_USD", "ETH_USD"}
	f := newFixture(t, cfg)
	f.venue.Deposit("USD", 400000)
	enter(t, f)

	seedHistory(f.venue, "ETH_USD", 10, 97)
	bar := barAt(10, 99, 100.5, 99, 100)
	f.venue.PushBar("ETH_USD", bar)
	f.engine.OnBar(context.Background(), "ETH_USD", bar)

	assert.False(t, f.ledger.Has("ETH_USD"), "the single slot is taken")
}

func TestDailyResetCachesTarget(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	seedHistory(f.venue, "BTC_USD", 10, 97)
	f.venue.PushBar("BTC_USD", barAt(10, 97, 97.5, 96.5, 97))

	assert.Zero(t, f.engine.Target("BTC_USD"))
	f.engine.DailyReset(context.Background())
	assert.InDelta(t, 98.0, f.engine.Target("BTC_USD"), 1e-9)
}

func TestRecoverPositions(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.RecoverPositions = true
	f := newFixture(t, cfg)
	f.venue.Deposit("BTC", 2)
	f.venue.SetPrice("BTC_USD", 100)

	f.engine.RecoverPositions(context.Background())

	pos := f.ledger.Get("BTC_USD")
	require.NotNil(t, pos)
	assert.InDelta(t, 100.0, pos.EntryPrice, 1e-9, "synthetic entry is the current price")
	assert.InDelta(t, 2.0, pos.Quantity, 1e-9)
	assert.Len(t, f.monitor.ActiveOrders("BTC_USD"), 2)
}

func TestRecoverPositionsGatedAndDustIgnored(t *testing.T) {
	t.Parallel()

	// Gate off: nothing recovered even with a balance present.
	f := newFixture(t, defaultConfig())
	f.venue.Deposit("BTC", 2)
	f.venue.SetPrice("BTC_USD", 100)
	f.engine.RecoverPositions(context.Background())
	assert.False(t, f.ledger.Has("BTC_USD"))

	// Gate on, but the balance values under the minimum order amount.
	cfg := defaultConfig()
	cfg.RecoverPositions = true
	f = newFixture(t, cfg)
	f.venue.Deposit("BTC", 0.05) // 5 USD at price 100
	f.venue.SetPrice("BTC_USD", 100)
	f.engine.RecoverPositions(context.Background())
	assert.False(t, f.ledger.Has("BTC_USD"))
}
