// Package notify defines the outbound notification boundary. Delivery is
// best-effort: trading logic never blocks on, or fails because of, a
// notifier.
package notify

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Notifier is the sink for operator-facing messages. Implementations live
// outside the core (chat webhooks, email); failures are theirs to swallow.
type Notifier interface {
	Send(text string)
	SendTradeSignal(action, instrument string, price float64, fields map[string]string)
}

// Noop discards everything.
type Noop struct{}

func (Noop) Send(string) {}

func (Noop) SendTradeSignal(string, string, float64, map[string]string) {}

// LogNotifier writes notifications to the structured log; the default sink
// for paper trading.
type LogNotifier struct {
	Log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{Log: log}
}

func (n *LogNotifier) Send(text string) {
	n.Log.Info("notify", "text", text)
}

func (n *LogNotifier) SendTradeSignal(action, instrument string, price float64, fields map[string]string) {
	n.Log.Info("notify trade signal",
		"action", action, "instrument", instrument, "price", price,
		"detail", formatFields(fields))
}

// BestEffort wraps a notifier so panics are recovered and logged instead of
// propagating into trading logic.
type BestEffort struct {
	n   Notifier
	log *slog.Logger
}

func NewBestEffort(n Notifier, log *slog.Logger) *BestEffort {
	if n == nil {
		n = Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &BestEffort{n: n, log: log}
}

func (b *BestEffort) Send(text string) {
	defer b.recover()
	b.n.Send(text)
}

func (b *BestEffort) SendTradeSignal(action, instrument string, price float64, fields map[string]string) {
	defer b.recover()
	b.n.SendTradeSignal(action, instrument, price, fields)
}

func (b *BestEffort) recover() {
	if r := recover(); r != nil {
		b.log.Warn("notifier panicked", "panic", r)
	}
}

func formatFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, fields[k])
	}
	return strings.Join(parts, " ")
}
