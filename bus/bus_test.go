package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribePublish(t *testing.T) {
	t.Parallel()

	b := New(nil)

	var entries, all []Event
	b.Subscribe(SignalEntry, func(ev Event) { entries = append(entries, ev) })
	b.SubscribeAll(func(ev Event) { all = append(all, ev) })

	b.Publish(NewEvent(SignalEntry, "test"))
	b.Publish(NewEvent(SignalExit, "test"))

	require.Len(t, entries, 1)
	assert.Equal(t, SignalEntry, entries[0].Type)
	assert.Len(t, all, 2)
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	b := New(nil)

	n := 0
	off := b.Subscribe(OrderFilled, func(Event) { n++ })

	b.Publish(NewEvent(OrderFilled, "test"))
	off()
	b.Publish(NewEvent(OrderFilled, "test"))

	assert.Equal(t, 1, n)

	// Unsubscribing twice is harmless.
	off()
}

func TestDeliveryOrder(t *testing.T) {
	t.Parallel()

	b := New(nil)

	var got []int
	b.Subscribe(SystemStarted, func(Event) { got = append(got, 1) })
	b.Subscribe(SystemStarted, func(Event) { got = append(got, 2) })
	b.Subscribe(SystemStarted, func(Event) { got = append(got, 3) })

	b.Publish(NewEvent(SystemStarted, "test"))
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestPanicIsolation(t *testing.T) {
	t.Parallel()

	b := New(nil)

	var after int
	b.Subscribe(ErrorOccurred, func(Event) { panic("boom") })
	b.Subscribe(ErrorOccurred, func(Event) { after++ })

	assert.NotPanics(t, func() {
		b.Publish(NewEvent(ErrorOccurred, "test"))
	})
	assert.Equal(t, 1, after, "subscribers after the panicking one still run")
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	t.Parallel()

	b := New(nil)

	var mu sync.Mutex
	n := 0
	b.SubscribeAll(func(Event) {
		mu.Lock()
		n++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish(NewEvent(SignalEntry, "test"))
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			off := b.Subscribe(SignalEntry, func(Event) {})
			off()
		}()
	}
	wg.Wait()

	assert.Equal(t, 8*50, n)
}

func TestNewEventStampsTime(t *testing.T) {
	t.Parallel()

	ev := NewEvent(PositionOpened, "ledger")
	assert.Equal(t, PositionOpened, ev.Type)
	assert.Equal(t, "ledger", ev.Source)
	assert.False(t, ev.Time.IsZero())
}
