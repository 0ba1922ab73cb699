package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whiteboard-sdk/whiteboard.go/internal/clock"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestIntervalBelowMinimumIsRaised(t *testing.T) {
	r := NewRegistry(WithClock(clock.Fake(epoch)))

	for _, in := range []time.Duration{0, time.Millisecond, 100 * time.Millisecond, 499 * time.Millisecond, -time.Second} {
		got := r.SubscribeHighFrequency("cursor", in, func([]Event) {})
		assert.Equal(t, constants.MinHighFrequencyInterval, got, "interval %v", in)

		stored, ok := r.Interval("cursor")
		require.True(t, ok)
		assert.Equal(t, 500*time.Millisecond, stored)
	}

	got := r.SubscribeHighFrequency("cursor", 800*time.Millisecond, func([]Event) {})
	assert.Equal(t, 800*time.Millisecond, got)
}

func TestResubscribeReplaces(t *testing.T) {
	r := NewRegistry()

	var calls []string
	r.Subscribe("chat", func(Event) { calls = append(calls, "first") })
	r.Subscribe("chat", func(Event) { calls = append(calls, "second") })

	assert.Equal(t, []string{"chat"}, r.Names())
	require.True(t, r.Dispatch(Event{Name: "chat"}))
	assert.Equal(t, []string{"second"}, calls)
}

func TestResubscribeAcrossKinds(t *testing.T) {
	c := clock.Fake(epoch)
	r := NewRegistry(WithClock(c))

	var batches int
	r.SubscribeHighFrequency("cursor", time.Second, func([]Event) { batches++ })
	r.Dispatch(Event{Name: "cursor"})

	var plain int
	r.Subscribe("cursor", func(Event) { plain++ })
	c.Advance(2 * time.Second)

	assert.Equal(t, 0, batches, "pending window of replaced subscription must not fire")
	r.Dispatch(Event{Name: "cursor"})
	assert.Equal(t, 1, plain)
}

func TestUnsubscribe(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Subscribe("chat", func(Event) { called = true })

	assert.True(t, r.Unsubscribe("chat"))
	assert.False(t, r.Unsubscribe("chat"))
	assert.False(t, r.Dispatch(Event{Name: "chat"}))
	assert.False(t, called)
	assert.Empty(t, r.Names())
}

func TestHighFrequencyBatchesWithinWindow(t *testing.T) {
	c := clock.Fake(epoch)
	r := NewRegistry(WithClock(c))

	var got [][]Event
	r.SubscribeHighFrequency("cursor", 500*time.Millisecond, func(evs []Event) { got = append(got, evs) })

	for i := 0; i < 5; i++ {
		r.Dispatch(Event{Name: "cursor", Payload: i})
		c.Advance(50 * time.Millisecond)
	}
	assert.Empty(t, got)

	c.Advance(300 * time.Millisecond)
	require.Len(t, got, 1)
	require.Len(t, got[0], 5)
	for i, ev := range got[0] {
		assert.Equal(t, i, ev.Payload)
	}

	// Nothing pending, nothing delivered.
	c.Advance(time.Second)
	assert.Len(t, got, 1)

	r.Dispatch(Event{Name: "cursor", Payload: 9})
	c.Advance(500 * time.Millisecond)
	require.Len(t, got, 2)
	assert.Equal(t, 9, got[1][0].Payload)
}

func TestHighFrequencyLatestWins(t *testing.T) {
	c := clock.Fake(epoch)
	r := NewRegistry(WithClock(c), WithCoalesce(CoalesceLatest))

	var got [][]Event
	r.SubscribeHighFrequency("cursor", time.Second, func(evs []Event) { got = append(got, evs) })

	for i := 0; i < 10; i++ {
		r.Dispatch(Event{Name: "cursor", Payload: i})
	}
	c.Advance(time.Second)

	require.Len(t, got, 1)
	require.Len(t, got[0], 1)
	assert.Equal(t, 9, got[0][0].Payload)
}

func TestAtMostOneNotificationPerWindow(t *testing.T) {
	c := clock.Fake(epoch)
	r := NewRegistry(WithClock(c))

	var deliveries []time.Time
	r.SubscribeHighFrequency("cursor", 500*time.Millisecond, func([]Event) { deliveries = append(deliveries, c.Now()) })

	for i := 0; i < 100; i++ {
		r.Dispatch(Event{Name: "cursor"})
		c.Advance(20 * time.Millisecond)
	}
	c.Advance(time.Second)

	require.NotEmpty(t, deliveries)
	for i := 1; i < len(deliveries); i++ {
		assert.GreaterOrEqual(t, deliveries[i].Sub(deliveries[i-1]), 500*time.Millisecond)
	}
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	r := NewRegistry()
	r.Subscribe("a", func(Event) { panic("boom") })
	called := false
	r.Subscribe("b", func(Event) { called = true })

	assert.NotPanics(t, func() {
		r.Dispatch(Event{Name: "a"})
		r.Dispatch(Event{Name: "b"})
	})
	assert.True(t, called)
}

func TestDeliverRoutesThroughQueue(t *testing.T) {
	var mu sync.Mutex
	var queued []func()
	r := NewRegistry(WithDeliver(func(f func()) {
		mu.Lock()
		queued = append(queued, f)
		mu.Unlock()
	}))

	called := false
	r.Subscribe("chat", func(Event) { called = true })
	r.Dispatch(Event{Name: "chat"})
	assert.False(t, called)

	require.Len(t, queued, 1)
	queued[0]()
	assert.True(t, called)
}

func TestClose(t *testing.T) {
	c := clock.Fake(epoch)
	r := NewRegistry(WithClock(c))
	r.SubscribeHighFrequency("cursor", time.Second, func([]Event) { t.Fatal("delivered after close") })
	r.Dispatch(Event{Name: "cursor"})
	r.Close()
	c.Advance(2 * time.Second)
	assert.Empty(t, r.Names())
	assert.Equal(t, 0, c.Pending())
}
