package bridge

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
)

func TestBackoff(t *testing.T) {
	t.Run("grows up to max", func(t *testing.T) {
		b := &Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Factor: 2}

		for attempt, want := range []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			800 * time.Millisecond,
			time.Second,
			time.Second,
		} {
			delay, ok := b.NextDelay(attempt, nil)
			assert.True(t, ok)
			assert.Equal(t, want, delay, "attempt %d", attempt)
		}
	})

	t.Run("spread", func(t *testing.T) {
		b := NewBackoff()
		b.Rand = func() float64 { return 0 }
		delay, _ := b.NextDelay(0, nil)
		assert.Equal(t, 350*time.Millisecond, delay)

		b.Rand = func() float64 { return 0.5 }
		delay, _ = b.NextDelay(0, nil)
		assert.Equal(t, 500*time.Millisecond, delay)

		b.Rand = nil
		delay, _ = b.NextDelay(1, nil)
		assert.GreaterOrEqual(t, delay, 700*time.Millisecond)
		assert.LessOrEqual(t, delay, 1300*time.Millisecond)
	})

	t.Run("engine timeout waits longest", func(t *testing.T) {
		b := &Backoff{Initial: 100 * time.Millisecond, Max: 3 * time.Second, Factor: 2}
		timedOut := fmt.Errorf("join: %w", &Error{Code: 408, Message: "engine busy"})
		assert.True(t, errors.Is(timedOut, constants.ErrConnectionTimeout))

		delay, ok := b.NextDelay(0, timedOut)
		assert.True(t, ok)
		assert.Equal(t, 3*time.Second, delay)

		delay, _ = b.NextDelay(0, errors.New("dial refused"))
		assert.Equal(t, 100*time.Millisecond, delay)
	})

	t.Run("attempts", func(t *testing.T) {
		b := &Backoff{Initial: time.Millisecond, Max: time.Second, Factor: 2, Attempts: 3}
		for attempt := 0; attempt < 3; attempt++ {
			_, ok := b.NextDelay(attempt, nil)
			assert.True(t, ok)
		}
		_, ok := b.NextDelay(3, nil)
		assert.False(t, ok)
	})
}

func TestFixedDelay(t *testing.T) {
	f := NewFixedDelay(250*time.Millisecond, 2)

	delay, ok := f.NextDelay(0, nil)
	assert.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, delay)

	_, ok = f.NextDelay(1, nil)
	assert.True(t, ok)

	_, ok = f.NextDelay(2, nil)
	assert.False(t, ok)

	unlimited := NewFixedDelay(time.Second, 0)
	_, ok = unlimited.NextDelay(1000, nil)
	assert.True(t, ok)
}

func TestBudgetEndsWaitsAtDeadline(t *testing.T) {
	start := time.Unix(100, 0)
	b := Budget{Retryer: NewFixedDelay(time.Second, 0), Deadline: start.Add(2500 * time.Millisecond)}

	delay, ok := b.Next(start, 0, nil)
	assert.True(t, ok)
	assert.Equal(t, time.Second, delay)

	delay, ok = b.Next(start.Add(2*time.Second), 2, nil)
	assert.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, delay, "the last wait is cut to the time left")

	delay, ok = b.Next(start.Add(3*time.Second), 3, nil)
	assert.True(t, ok)
	assert.Zero(t, delay)

	limited := Budget{Retryer: NewFixedDelay(time.Second, 1), Deadline: start.Add(time.Hour)}
	_, ok = limited.Next(start, 1, nil)
	assert.False(t, ok)
}
