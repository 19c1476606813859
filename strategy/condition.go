// Package strategy implements the composable entry/exit rule engine.
// Conditions are pure predicates over a bar and its history; a Strategy
// folds them into entry/exit decisions, one composite per side.
package strategy

import (
	"fmt"

	"github.com/rustyeddy/tradebot/market"
)

// Indicators is a snapshot of precomputed indicator values for one bar,
// keyed by name ("target", "ma_20", ...).
type Indicators map[string]float64

// BatchIndicators holds one indicator column per name, row-aligned with the
// bar series handed to EvaluateBatch.
type BatchIndicators map[string][]float64

// Row extracts the single-bar snapshot at index i.
func (b BatchIndicators) Row(i int) Indicators {
	out := make(Indicators, len(b))
	for k, col := range b {
		if i < len(col) {
			out[k] = col[i]
		}
	}
	return out
}

// Condition is a named, stateless predicate. Evaluate answers for the
// current bar given its history (closed bars up to and including the
// current one, oldest first). EvaluateBatch answers for every row of a
// series and must agree with repeated Evaluate calls row for row.
type Condition interface {
	Name() string
	Evaluate(bar market.Bar, history market.Series, ind Indicators) bool
	EvaluateBatch(history market.Series, ind BatchIndicators) []bool
}

// Combinator selects how a composite folds its members.
type Combinator int

const (
	And Combinator = iota
	Or
)

// EmptyOrResult is what an OR composite with no members evaluates to.
// Empty AND evaluates to true; empty OR has no natural identity that is
// useful for trading, so it is pinned to false here rather than decided
// ad hoc at call sites.
const EmptyOrResult = false

func (c Combinator) String() string {
	if c == And {
		return "AND"
	}
	return "OR"
}

// Composite folds an ordered list of conditions with one combinator.
// Member mutation never touches already-computed history; Evaluate reads
// the member list as it stands at call time.
type Composite struct {
	combinator Combinator
	conditions []Condition
}

// NewComposite builds a composite, failing fast on nil members so a
// misconfigured rule can never silently evaluate as always-true.
func NewComposite(comb Combinator, conds ...Condition) (*Composite, error) {
	for i, c := range conds {
		if c == nil {
			return nil, fmt.Errorf("strategy: condition %d is nil", i)
		}
	}
	return &Composite{combinator: comb, conditions: append([]Condition(nil), conds...)}, nil
}

// Add appends a condition to the member list.
func (cc *Composite) Add(c Condition) error {
	if c == nil {
		return fmt.Errorf("strategy: cannot add nil condition")
	}
	cc.conditions = append(cc.conditions, c)
	return nil
}

// Remove drops the first member with the given name and reports whether
// anything was removed.
func (cc *Composite) Remove(name string) bool {
	for i, c := range cc.conditions {
		if c.Name() == name {
			cc.conditions = append(cc.conditions[:i:i], cc.conditions[i+1:]...)
			return true
		}
	}
	return false
}

// Names lists the members in evaluation order.
func (cc *Composite) Names() []string {
	out := make([]string, len(cc.conditions))
	for i, c := range cc.conditions {
		out[i] = c.Name()
	}
	return out
}

// Len returns the member count.
func (cc *Composite) Len() int { return len(cc.conditions) }

// Evaluate folds member results for one bar. Empty AND is true; empty OR
// is EmptyOrResult.
func (cc *Composite) Evaluate(bar market.Bar, history market.Series, ind Indicators) bool {
	if len(cc.conditions) == 0 {
		if cc.combinator == And {
			return true
		}
		return EmptyOrResult
	}

	for _, c := range cc.conditions {
		got := c.Evaluate(bar, history, ind)
		if cc.combinator == And && !got {
			return false
		}
		if cc.combinator == Or && got {
			return true
		}
	}
	return cc.combinator == And
}

// EvaluateBatch folds member columns for every row of the series.
func (cc *Composite) EvaluateBatch(history market.Series, ind BatchIndicators) []bool {
	out := make([]bool, len(history))

	if len(cc.conditions) == 0 {
		v := cc.combinator == And || EmptyOrResult
		for i := range out {
			out[i] = v
		}
		return out
	}

	cols := make([][]bool, len(cc.conditions))
	for i, c := range cc.conditions {
		cols[i] = c.EvaluateBatch(history, ind)
	}

	for row := range out {
		v := cc.combinator == And
		for _, col := range cols {
			got := row < len(col) && col[row]
			if cc.combinator == And && !got {
				v = false
				break
			}
			if cc.combinator == Or && got {
				v = true
				break
			}
		}
		out[row] = v
	}
	return out
}

// batchBySingle implements EvaluateBatch by repeated single-row calls. It is
// the reference behavior every hand-vectorized condition must match.
func batchBySingle(c Condition, history market.Series, ind BatchIndicators) []bool {
	out := make([]bool, len(history))
	for i := range history {
		out[i] = c.Evaluate(history[i], history[:i+1], ind.Row(i))
	}
	return out
}
