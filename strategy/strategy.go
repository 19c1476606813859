package strategy

import (
	"fmt"

	"github.com/rustyeddy/tradebot/market"
)

// Params holds the lookback and threshold knobs shared by the built-in
// conditions.
type Params struct {
	ShortPeriod int     `json:"short_period" yaml:"short_period"`
	LongPeriod  int     `json:"long_period" yaml:"long_period"`
	RSIPeriod   int     `json:"rsi_period" yaml:"rsi_period"`
	RSIEntryMax float64 `json:"rsi_entry_max" yaml:"rsi_entry_max"`
	RSIExitMin  float64 `json:"rsi_exit_min" yaml:"rsi_exit_min"`
	VolumeMult  float64 `json:"volume_mult" yaml:"volume_mult"`
	BreakoutK   float64 `json:"breakout_k" yaml:"breakout_k"`
	GapDownPct  float64 `json:"gap_down_pct" yaml:"gap_down_pct"`
}

// DefaultParams mirrors the stock volatility-breakout setup.
func DefaultParams() Params {
	return Params{
		ShortPeriod: 5,
		LongPeriod:  20,
		RSIPeriod:   14,
		RSIEntryMax: 70,
		RSIExitMin:  80,
		VolumeMult:  2.0,
		BreakoutK:   0.5,
		GapDownPct:  0.03,
	}
}

// Signal is one evaluation outcome: whether to open and whether to close.
type Signal struct {
	Entry bool
	Exit  bool
}

// Strategy owns one entry composite, one exit composite and a parameter
// set. It carries no hidden state across evaluations; the only mutation
// paths are the explicit add/remove-condition operations.
type Strategy struct {
	name   string
	params Params
	entry  *Composite
	exit   *Composite
}

// New builds a strategy, failing fast on nil conditions. Entry members fold
// with AND, exit members with OR: every entry rule must agree to open, any
// exit rule may close.
func New(name string, params Params, entry, exit []Condition) (*Strategy, error) {
	if name == "" {
		return nil, fmt.Errorf("strategy: name is required")
	}
	ec, err := NewComposite(And, entry...)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: entry: %w", name, err)
	}
	xc, err := NewComposite(Or, exit...)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: exit: %w", name, err)
	}
	return &Strategy{name: name, params: params, entry: ec, exit: xc}, nil
}

// FromConfig builds a strategy from config condition names, erroring on the
// first unknown name.
func FromConfig(name string, params Params, entryNames, exitNames []string) (*Strategy, error) {
	entry := make([]Condition, 0, len(entryNames))
	for _, n := range entryNames {
		c, err := FromName(n, params)
		if err != nil {
			return nil, err
		}
		entry = append(entry, c)
	}
	exit := make([]Condition, 0, len(exitNames))
	for _, n := range exitNames {
		c, err := FromName(n, params)
		if err != nil {
			return nil, err
		}
		exit = append(exit, c)
	}
	return New(name, params, entry, exit)
}

// Name returns the strategy's configured name.
func (s *Strategy) Name() string { return s.name }

// Params returns the parameter set the strategy was built with.
func (s *Strategy) Params() Params { return s.params }

// Evaluate computes the entry and exit decisions for one bar.
func (s *Strategy) Evaluate(bar market.Bar, history market.Series, ind Indicators) Signal {
	return Signal{
		Entry: s.entry.Evaluate(bar, history, ind),
		Exit:  s.exit.Evaluate(bar, history, ind),
	}
}

// EvaluateBatch computes entry and exit decisions for every row of a
// series. Row i sees history[:i+1], exactly as a live Evaluate would, so
// the two paths agree row for row.
func (s *Strategy) EvaluateBatch(history market.Series, ind BatchIndicators) (entry, exit []bool) {
	return s.entry.EvaluateBatch(history, ind), s.exit.EvaluateBatch(history, ind)
}

// AddEntryCondition appends a rule to the entry composite.
func (s *Strategy) AddEntryCondition(c Condition) error { return s.entry.Add(c) }

// RemoveEntryCondition drops the named rule from the entry composite.
func (s *Strategy) RemoveEntryCondition(name string) bool { return s.entry.Remove(name) }

// AddExitCondition appends a rule to the exit composite.
func (s *Strategy) AddExitCondition(c Condition) error { return s.exit.Add(c) }

// RemoveExitCondition drops the named rule from the exit composite.
func (s *Strategy) RemoveExitCondition(name string) bool { return s.exit.Remove(name) }

// EntryConditions lists entry rule names in evaluation order.
func (s *Strategy) EntryConditions() []string { return s.entry.Names() }

// ExitConditions lists exit rule names in evaluation order.
func (s *Strategy) ExitConditions() []string { return s.exit.Names() }
